package htmlvalidation

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/net/html"
)

// EntityTypeExploration is the asset namespace for exploration images.
const EntityTypeExploration = "exploration"

const (
	attrRawLatex    = "raw_latex" + argSuffix
	attrMathContent = "math_content" + argSuffix
)

// MathContent is the value of a math component's math_content attribute.
type MathContent struct {
	RawLatex    string `json:"raw_latex"`
	SVGFilename string `json:"svg_filename"`
}

// AssetChecker reports whether an asset object exists.
type AssetChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// AssetPath is the object path of an image asset belonging to an entity.
func AssetPath(entityType, entityID, filename string) string {
	return fmt.Sprintf("%s/%s/assets/image/%s", entityType, entityID, filename)
}

// AddMathContentToMathRTEComponents rewrites math components that still use
// the raw_latex attribute into the math_content form with an empty svg
// filename. Math components carrying neither attribute, or an empty
// raw_latex, are dropped. HTML without math components is returned as is.
func AddMathContentToMathRTEComponents(h string) (string, error) {
	nodes, err := parseFragment(h)
	if err != nil {
		return "", err
	}
	maths := elementsNamed(nodes, tagMath)
	if len(maths) == 0 {
		return h, nil
	}
	for _, m := range maths {
		raw, hasRaw := getAttr(m, attrRawLatex)
		switch {
		case hasRaw && raw == "":
			nodes = detach(nodes, m)
		case hasRaw:
			var latex string
			if err := json.Unmarshal([]byte(raw), &latex); err != nil {
				return "", fmt.Errorf("invalid raw_latex value %q: %w", raw, err)
			}
			b, err := json.Marshal(MathContent{RawLatex: latex})
			if err != nil {
				return "", err
			}
			removeAttr(m, attrRawLatex)
			setAttr(m, attrMathContent, string(b))
		default:
			if _, ok := getAttr(m, attrMathContent); !ok {
				nodes = detach(nodes, m)
			}
		}
	}
	return renderNodes(nodes)
}

// detach removes n from its parent, or from the top-level list.
func detach(nodes []*html.Node, n *html.Node) []*html.Node {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
		return nodes
	}
	out := nodes[:0]
	for _, c := range nodes {
		if c != n {
			out = append(out, c)
		}
	}
	return out
}

func mathContent(m *html.Node) (MathContent, bool) {
	raw, ok := getAttr(m, attrMathContent)
	if !ok {
		return MathContent{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return MathContent{}, false
	}
	_, hasLatex := fields["raw_latex"]
	_, hasSVG := fields["svg_filename"]
	if !hasLatex || !hasSVG {
		return MathContent{}, false
	}
	var mc MathContent
	if err := json.Unmarshal([]byte(raw), &mc); err != nil {
		return MathContent{}, false
	}
	return mc, true
}

// ValidateMathTagsInHTMLWithAttributeMathContent returns every math
// component whose math_content attribute is missing or malformed.
func ValidateMathTagsInHTMLWithAttributeMathContent(h string) []string {
	nodes, err := parseFragment(h)
	if err != nil {
		return []string{h}
	}
	var invalid []string
	for _, m := range elementsNamed(nodes, tagMath) {
		if _, ok := mathContent(m); !ok {
			invalid = append(invalid, tagString(m))
		}
	}
	return invalid
}

// GetLatexStringsWithoutSVGFromHTML returns, without duplicates and in
// document order, the LaTeX of every math component that has no svg yet.
func GetLatexStringsWithoutSVGFromHTML(h string) []string {
	nodes, err := parseFragment(h)
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, m := range elementsNamed(nodes, tagMath) {
		mc, ok := mathContent(m)
		if !ok || mc.SVGFilename != "" || seen[mc.RawLatex] {
			continue
		}
		seen[mc.RawLatex] = true
		out = append(out, mc.RawLatex)
	}
	return out
}

// ValidateSVGFilenamesInMathRichText returns every math component whose svg
// filename is empty or does not point at an existing asset of the entity.
func ValidateSVGFilenamesInMathRichText(ctx context.Context, assets AssetChecker, entityType, entityID, h string) ([]string, error) {
	nodes, err := parseFragment(h)
	if err != nil {
		return nil, err
	}
	var invalid []string
	for _, m := range elementsNamed(nodes, tagMath) {
		mc, ok := mathContent(m)
		if !ok || mc.SVGFilename == "" {
			invalid = append(invalid, tagString(m))
			continue
		}
		exists, err := assets.Exists(ctx, AssetPath(entityType, entityID, mc.SVGFilename))
		if err != nil {
			return nil, fmt.Errorf("failed to check svg %s: %w", mc.SVGFilename, err)
		}
		if !exists {
			invalid = append(invalid, tagString(m))
		}
	}
	return invalid, nil
}
