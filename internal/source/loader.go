package source

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// Loader reads the raw text of a document, one string per page. The
// document type is sniffed from content since exported report names carry
// unreliable extensions.
type Loader struct {
	maxBytes int64
}

// NewLoader creates a loader that refuses files larger than maxBytes
func NewLoader(maxBytes int64) *Loader {
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &Loader{maxBytes: maxBytes}
}

// Pages returns the document's text split at page breaks
func (l *Loader) Pages(ctx context.Context, doc Document) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("stat document: %w", err)
	}
	if info.Size() > l.maxBytes {
		return nil, fmt.Errorf("document too large: %d bytes", info.Size())
	}

	mtype, err := mimetype.DetectFile(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("detect type: %w", err)
	}

	switch {
	case mtype.Is("application/pdf"):
		return pdfPages(doc.Path)
	case mtype.Is("text/html"):
		data, err := os.ReadFile(doc.Path)
		if err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		return htmlPages(string(data))
	case mtype.Is("text/plain"):
		data, err := os.ReadFile(doc.Path)
		if err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		return strings.Split(string(data), "\f"), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, mtype.String())
	}
}

// pdfPages reads the text layer of each page. Pages without a text layer
// come back empty rather than failing the document.
func pdfPages(path string) (pages []string, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	// The pdf reader panics on some malformed content streams
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("read pdf: %v", rec)
		}
	}()

	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// htmlPages extracts visible text from pdftohtml output. Block elements end
// a line and <hr> or a page anchor starts a new page.
func htmlPages(content string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var pages []string
	var buf strings.Builder
	flush := func() {
		if strings.TrimSpace(buf.String()) != "" {
			pages = append(pages, buf.String())
		}
		buf.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "head", "title":
				return
			case "hr":
				flush()
				return
			case "br":
				buf.WriteString("\n")
				return
			case "a":
				if isPageAnchor(n) {
					flush()
				}
			}
		}

		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "tr", "li", "h1", "h2", "h3", "h4", "table":
				buf.WriteString("\n")
			case "td", "th":
				buf.WriteString(" ")
			}
		}
	}

	walk(doc)
	flush()
	return pages, nil
}

// isPageAnchor matches the <a name="2"></a> markers pdftohtml emits at
// the top of every page after the first
func isPageAnchor(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key == "name" && attr.Val != "" && attr.Val != "1" && strings.Trim(attr.Val, "0123456789") == "" {
			return true
		}
	}
	return false
}
