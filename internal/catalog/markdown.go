package catalog

import (
	"bytes"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	markdownOnce     sync.Once
	markdownRenderer goldmark.Markdown
	descriptionHTML  *bluemonday.Policy
)

func initMarkdown() {
	markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify))
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("figure", "figcaption")
	policy.AllowAttrs("loading").OnElements("img")
	policy.RequireNoFollowOnLinks(true)
	descriptionHTML = policy
}

// RenderDescription converts CMS-authored markdown into sanitized HTML.
func RenderDescription(markdown string) (string, error) {
	markdownOnce.Do(initMarkdown)
	if markdown == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return descriptionHTML.Sanitize(buf.String()), nil
}
