package extractor

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var displayNone = regexp.MustCompile(`(?i)display\s*:\s*none`)

// Snapshot is a static, parsed copy of a page's HTML. It answers the same
// queries as the live page without a browser round trip per element, which
// is all the field extractors need once the network has gone idle.
type Snapshot struct {
	doc  *goquery.Document
	base *url.URL
}

// NewSnapshot parses html. Relative image sources are resolved against
// pageURL.
func NewSnapshot(html, pageURL string) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}

	return &Snapshot{doc: doc, base: base}, nil
}

// Root returns the document node.
func (s *Snapshot) Root() Node {
	return &snapshotNode{sel: s.doc.Selection, base: s.base}
}

type snapshotNode struct {
	sel  *goquery.Selection
	base *url.URL
}

func (n *snapshotNode) QuerySelector(selector string) (Node, error) {
	found := n.sel.Find(selector).First()
	if found.Length() == 0 {
		return nil, nil
	}
	return &snapshotNode{sel: found, base: n.base}, nil
}

func (n *snapshotNode) QuerySelectorAll(selector string) ([]Node, error) {
	found := n.sel.Find(selector)
	nodes := make([]Node, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, &snapshotNode{sel: s, base: n.base})
	})
	return nodes, nil
}

func (n *snapshotNode) TextContent() (string, error) {
	return n.sel.Text(), nil
}

func (n *snapshotNode) ImageSource() (string, error) {
	src, ok := n.sel.Attr("src")
	if !ok || src == "" {
		return "", nil
	}

	ref, err := url.Parse(strings.TrimSpace(src))
	if err != nil {
		return src, nil
	}
	if n.base == nil {
		return ref.String(), nil
	}
	return n.base.ResolveReference(ref).String(), nil
}

// Displayed only sees inline styles and the hidden attribute; stylesheet
// rules are not evaluated.
func (n *snapshotNode) Displayed() (bool, error) {
	if _, hidden := n.sel.Attr("hidden"); hidden {
		return false, nil
	}
	style, _ := n.sel.Attr("style")
	return !displayNone.MatchString(style), nil
}

func (n *snapshotNode) Click() error {
	return ErrNotInteractive
}
