package parser

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a static page view over an HTML snapshot. It serves replays of
// saved result pages and tests; live pages come from the browser package.
type Document struct {
	doc *goquery.Document
}

func NewDocument(html string) (*Document, error) {
	return NewDocumentFromReader(strings.NewReader(html))
}

func NewDocumentFromReader(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{doc: doc}, nil
}

// FirstText returns the text of the first element matching selector, or ""
// when nothing matches. Invalid selectors match nothing.
func (d *Document) FirstText(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sel := d.doc.Find(selector)
	if sel.Length() == 0 {
		return "", nil
	}
	return sel.First().Text(), nil
}

func (d *Document) Close() error {
	return nil
}
