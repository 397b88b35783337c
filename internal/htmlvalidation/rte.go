package htmlvalidation

import (
	"strings"

	"golang.org/x/net/html"
)

// RTEFormatCKEditor is the only rich-text editor format still in use.
const RTEFormatCKEditor = "ck-editor"

const (
	ErrKeyStrings     = "strings"
	ErrKeyInvalidTags = "invalidTags"
)

var (
	inlineParents = []string{"b", "i", "li", "p", "pre"}
	blockParents  = []string{"blockquote", "li", documentParent}
)

// ckEditorAllowedParents lists, for every allowed tag, the parents it may
// appear under.
var ckEditorAllowedParents = map[string][]string{
	"p":            {"blockquote", "li", documentParent},
	"b":            {"i", "li", "p", "pre"},
	"i":            {"b", "li", "p", "pre"},
	"pre":          {"li", documentParent},
	"ul":           {documentParent, "li"},
	"ol":           {documentParent, "li"},
	"li":           {"ol", "ul"},
	"blockquote":   {documentParent},
	"br":           inlineParents,
	tagLink:        inlineParents,
	tagMath:        inlineParents,
	tagSkillReview: inlineParents,
	tagImage:       blockParents,
	tagCollapsible: blockParents,
	tagVideo:       blockParents,
	tagTabs:        blockParents,
}

// ValidateRTEFormat reports structural problems in htmlList for the given
// editor format. The result maps ErrKeyStrings to the offending HTML strings,
// ErrKeyInvalidTags to tags the editor does not support, and an allowed tag
// name to the parents it was wrongly found under. Empty categories are omitted.
func ValidateRTEFormat(htmlList []string, rteFormat string) map[string][]string {
	allowed := allowedParents(rteFormat)
	errs := map[string][]string{}

	for _, h := range htmlList {
		nodes, err := parseFragment(h)
		if err != nil {
			errs[ErrKeyStrings] = append(errs[ErrKeyStrings], h)
			continue
		}
		invalid := validateNodesForRTE(nodes, allowed, errs)

		for _, c := range elementsNamed(nodes, tagCollapsible) {
			var content string
			if ok, err := jsonAttr(c, "content"+argSuffix, &content); !ok || err != nil || content == "" {
				invalid = true
				continue
			}
			inner, err := parseFragment(content)
			if err != nil || validateNodesForRTE(inner, allowed, errs) {
				invalid = true
			}
		}

		for _, t := range elementsNamed(nodes, tagTabs) {
			var tabs []tabContent
			if ok, err := jsonAttr(t, "tab_contents"+argSuffix, &tabs); !ok || err != nil {
				invalid = true
				continue
			}
			for _, tab := range tabs {
				inner, err := parseFragment(tab.Content)
				if err != nil || validateNodesForRTE(inner, allowed, errs) {
					invalid = true
				}
			}
		}

		if invalid {
			errs[ErrKeyStrings] = append(errs[ErrKeyStrings], h)
		}
	}

	for k, v := range errs {
		if len(v) == 0 {
			delete(errs, k)
		}
	}
	return errs
}

// allowedParents returns the parent rules for rteFormat. Content from older
// editors has been converted, so every format is checked against CKEditor.
func allowedParents(string) map[string][]string {
	return ckEditorAllowedParents
}

type tabContent struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func validateNodesForRTE(nodes []*html.Node, allowed map[string][]string, errs map[string][]string) bool {
	invalid := false
	for _, n := range nodes {
		if n.Type == html.TextNode && strings.TrimSpace(n.Data) != "" {
			invalid = true
		}
	}
	for _, el := range elements(nodes) {
		parents, ok := allowed[el.Data]
		if !ok {
			errs[ErrKeyInvalidTags] = append(errs[ErrKeyInvalidTags], el.Data)
			invalid = true
			continue
		}
		parent := parentName(el)
		if !contains(parents, parent) {
			errs[el.Data] = append(errs[el.Data], parent)
			invalid = true
		}
	}
	return invalid
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
