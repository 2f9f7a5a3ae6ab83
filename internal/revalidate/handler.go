package revalidate

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/strideline/storefront/internal/catalog"
	"github.com/strideline/storefront/internal/pagecache"
	"github.com/strideline/storefront/internal/platform/httpx"
	"github.com/strideline/storefront/internal/platform/requestctx"
)

const maxBodySize = 64 * 1024

// Document types the CMS sends.
const (
	TypeProduct    = "product"
	TypeBrand      = "brand"
	TypeCollection = "collection"
	TypeCategory   = "category"
)

// Purger drops cached upstream data, such as the CMS query cache.
type Purger interface {
	Purge()
}

// LocaleLister returns every supported locale token.
type LocaleLister interface {
	Locales() []string
}

// Deps bundles the handler collaborators.
type Deps struct {
	Secret  string
	Locales LocaleLister
	Pages   pagecache.Store
	Purgers []Purger
	Logger  *zap.Logger
	Clock   func() time.Time
}

// Handler serves POST /api/revalidate.
type Handler struct {
	secret  []byte
	locales LocaleLister
	pages   pagecache.Store
	purgers []Purger
	logger  *zap.Logger
	now     func() time.Time
}

// NewHandler validates deps and builds the webhook handler.
func NewHandler(deps Deps) (*Handler, error) {
	if deps.Locales == nil {
		return nil, errors.New("revalidate: locale lister is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Handler{
		secret:  []byte(deps.Secret),
		locales: deps.Locales,
		pages:   deps.Pages,
		purgers: deps.Purgers,
		logger:  logger,
		now:     clock,
	}, nil
}

// Payload is the webhook body. Slug may arrive as a plain string or as {"current": "..."}.
type Payload struct {
	Type   string `json:"_type"`
	Slug   Slug   `json:"slug"`
	Handle string `json:"handle"`
	Gender string `json:"gender"`
}

// Slug accepts both slug encodings.
type Slug string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Slug) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = Slug(strings.TrimSpace(v))
		return nil
	}
	var obj struct {
		Current string `json:"current"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("revalidate: slug: %w", err)
	}
	*s = Slug(strings.TrimSpace(obj.Current))
	return nil
}

type response struct {
	Revalidated bool     `json:"revalidated"`
	Paths       []string `json:"paths"`
	Purged      int      `json:"purged"`
	Now         int64    `json:"now"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.authorized(r.URL.Query().Get("secret")) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_secret", "invalid secret", http.StatusUnauthorized))
		return
	}

	payload, err := decodePayload(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", err.Error()))
		return
	}

	paths := LocalizedPaths(h.locales.Locales(), PathsFor(payload))
	purged, err := h.purge(ctx, paths)
	if err != nil {
		h.loggerFor(ctx).Error("revalidate: purge failed", zap.Strings("paths", paths), zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("revalidate_failed", "error revalidating", http.StatusInternalServerError))
		return
	}

	h.loggerFor(ctx).Info("revalidate: paths purged",
		zap.String("type", payload.Type),
		zap.Strings("paths", paths),
		zap.Int("purged", purged),
	)
	httpx.WriteJSON(w, http.StatusOK, response{
		Revalidated: true,
		Paths:       paths,
		Purged:      purged,
		Now:         h.now().UnixMilli(),
	})
}

func (h *Handler) authorized(provided string) bool {
	if len(h.secret) == 0 || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare(h.secret, []byte(provided)) == 1
}

func (h *Handler) purge(ctx context.Context, paths []string) (int, error) {
	for _, p := range h.purgers {
		if p != nil {
			p.Purge()
		}
	}
	if h.pages == nil {
		return 0, nil
	}
	return h.pages.InvalidatePaths(ctx, paths)
}

func (h *Handler) loggerFor(ctx context.Context) *zap.Logger {
	if logger := requestctx.Logger(ctx); logger != requestctx.NoopLogger() {
		return logger
	}
	return h.logger
}

func decodePayload(r *http.Request) (Payload, error) {
	var p Payload
	if r.Body == nil {
		return p, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return p, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxBodySize {
		return p, errors.New("request body exceeds allowed size")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("invalid JSON body: %w", err)
	}
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	p.Handle = strings.TrimSpace(p.Handle)
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	return p, nil
}

// PathsFor derives the unlocalized paths affected by a document change. Documents missing the
// identifier they need fall back to the home page.
func PathsFor(p Payload) []string {
	switch p.Type {
	case TypeProduct:
		handle := p.Handle
		if handle == "" {
			handle = string(p.Slug)
		}
		if handle != "" {
			return []string{"/products/" + handle}
		}
	case TypeBrand:
		if p.Slug != "" {
			return []string{"/brands/" + string(p.Slug)}
		}
	case TypeCollection:
		if p.Slug != "" {
			return []string{"/collections/" + string(p.Slug)}
		}
	case TypeCategory:
		if catalog.IsValidGender(p.Gender) {
			return []string{"/" + p.Gender}
		}
		return []string{"/" + catalog.GenderMen, "/" + catalog.GenderWomen}
	}
	return []string{"/"}
}

// LocalizedPaths prefixes every path with every locale.
func LocalizedPaths(locales, paths []string) []string {
	out := make([]string, 0, len(locales)*len(paths))
	for _, loc := range locales {
		for _, p := range paths {
			if p == "/" {
				out = append(out, "/"+loc)
				continue
			}
			out = append(out, "/"+loc+p)
		}
	}
	return out
}
