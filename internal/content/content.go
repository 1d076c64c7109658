// Package content turns user-submitted post bodies into safe stored HTML and derived text.
package content

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
)

// Format is the markup a post body was written in.
type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

// Processor renders, sanitizes and summarizes post bodies. It is safe for concurrent use.
type Processor struct {
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

// NewProcessor creates a processor with the community board HTML policy.
func NewProcessor() *Processor {
	return &Processor{
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
		policy: newPostPolicy(),
	}
}

func newPostPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("figure", "figcaption")
	policy.AllowAttrs("loading").OnElements("img")
	policy.RequireNoFollowOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	return policy
}

// RenderMarkdown converts Markdown to HTML. The result is not yet sanitized.
func (p *Processor) RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := p.markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// Sanitize strips anything outside the post policy: scripts, event handlers, unsafe URLs.
func (p *Processor) Sanitize(raw string) string {
	return strings.TrimSpace(p.policy.Sanitize(raw))
}

// Prepare renders body in the given format and returns sanitized HTML.
func (p *Processor) Prepare(body string, format Format) (string, error) {
	switch format {
	case FormatMarkdown:
		rendered, err := p.RenderMarkdown(body)
		if err != nil {
			return "", err
		}
		return p.Sanitize(rendered), nil
	case FormatHTML, "":
		return p.Sanitize(body), nil
	default:
		return "", fmt.Errorf("unknown content format %q", format)
	}
}

// Excerpt returns the first n runes of the visible text in doc.
func Excerpt(doc string, n int) string {
	text := PlainText(doc)
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:n])) + "…"
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "blockquote": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "figcaption": true,
}

// PlainText extracts visible text from an HTML fragment with whitespace collapsed.
func PlainText(doc string) string {
	if doc == "" {
		return ""
	}

	var buf strings.Builder
	z := html.NewTokenizer(strings.NewReader(doc))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseWhitespace(buf.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				skip++
			}
			if blockElements[tag] {
				buf.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			if blockElements[tag] {
				buf.WriteByte(' ')
			}
		case html.TextToken:
			if skip == 0 {
				buf.Write(z.Text())
			}
		}
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ToMarkdown converts stored HTML back to Markdown for clients that edit in Markdown.
// If conversion fails the plain text is returned.
func ToMarkdown(doc string) string {
	if doc == "" {
		return ""
	}
	md, err := htmltomarkdown.ConvertString(doc)
	if err != nil {
		return PlainText(doc)
	}
	return strings.TrimSpace(md)
}
