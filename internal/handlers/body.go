package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/strideline/storefront/internal/platform/httpx"
)

// Cart and variant payloads are tiny; anything larger is a client bug.
const maxBodySize = 64 * 1024

// decodeBody unmarshals the JSON body into out. On failure it writes the error envelope and
// returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	ctx := r.Context()
	var data []byte
	if r.Body != nil {
		var err error
		data, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge))
			return false
		}
		if err != nil {
			httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "unable to read request body"))
			return false
		}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "request body is required"))
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", fmt.Sprintf("invalid JSON body: %v", err)))
		return false
	}
	return true
}
