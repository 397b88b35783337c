// Package htmlvalidation checks and rewrites the rich-text HTML stored in
// exploration content.
package htmlvalidation

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// documentParent is the parent name reported for top-level nodes.
const documentParent = "[document]"

const (
	tagMath        = "oppia-noninteractive-math"
	tagImage       = "oppia-noninteractive-image"
	tagLink        = "oppia-noninteractive-link"
	tagVideo       = "oppia-noninteractive-video"
	tagCollapsible = "oppia-noninteractive-collapsible"
	tagTabs        = "oppia-noninteractive-tabs"
	tagSkillReview = "oppia-noninteractive-skillreview"

	componentPrefix = "oppia-noninteractive-"
	argSuffix       = "-with-value"
)

// voidElements never have children; their start tags are not kept open.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// parseFragment builds the node tree of s as written. Unlike the HTML5 tree
// builder it never moves or closes elements to repair nesting, so each
// element's parent is the element that was open when it started. An end tag
// closes the nearest open element of the same name; stray end tags are
// ignored. Top-level nodes have no parent.
func parseFragment(s string) ([]*html.Node, error) {
	z := html.NewTokenizer(strings.NewReader(s))
	var (
		top  []*html.Node
		open []*html.Node
	)
	add := func(n *html.Node) {
		if len(open) == 0 {
			top = append(top, n)
			return
		}
		open[len(open)-1].AppendChild(n)
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			return top, nil
		case html.TextToken:
			add(&html.Node{Type: html.TextNode, Data: z.Token().Data})
		case html.CommentToken:
			add(&html.Node{Type: html.CommentNode, Data: z.Token().Data})
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			n := &html.Node{Type: html.ElementNode, Data: tok.Data, DataAtom: tok.DataAtom, Attr: tok.Attr}
			add(n)
			if tt == html.StartTagToken && !voidElements[tok.Data] {
				open = append(open, n)
			}
		case html.EndTagToken:
			name := z.Token().Data
			for i := len(open) - 1; i >= 0; i-- {
				if open[i].Data == name {
					open = open[:i]
					break
				}
			}
		}
	}
}

func renderNodes(nodes []*html.Node) (string, error) {
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// tagString renders a single element for use in error reports.
func tagString(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "<" + n.Data + ">"
	}
	return buf.String()
}

// elements returns every element in nodes and their descendants, in document order.
func elements(nodes []*html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return out
}

func elementsNamed(nodes []*html.Node, name string) []*html.Node {
	var out []*html.Node
	for _, n := range elements(nodes) {
		if n.Data == name {
			out = append(out, n)
		}
	}
	return out
}

func parentName(n *html.Node) string {
	if n.Parent == nil {
		return documentParent
	}
	return n.Parent.Data
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			attrs = append(attrs, a)
		}
	}
	n.Attr = attrs
}

// jsonAttr decodes a "-with-value" attribute, whose value is JSON.
func jsonAttr(n *html.Node, key string, v any) (bool, error) {
	raw, ok := getAttr(n, key)
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal([]byte(raw), v)
}
