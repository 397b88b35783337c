package domain

import "strings"

// MaxSizeOfMathSVGsBatchBytes bounds the SVG bytes generated per batch.
const MaxSizeOfMathSVGsBatchBytes = 31 * 1024 * 1024

// MathRichTextInfo describes the math expressions of an exploration that
// still need SVG images.
type MathRichTextInfo struct {
	ExpID                        string
	MathImagesGenerationRequired bool
	LatexStringsWithoutSVG       []string
}

func NewMathRichTextInfo(expID string, required bool, latex []string) (*MathRichTextInfo, error) {
	info := &MathRichTextInfo{ExpID: expID, MathImagesGenerationRequired: required, LatexStringsWithoutSVG: latex}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return info, nil
}

func (m *MathRichTextInfo) Validate() error {
	if m.ExpID == "" {
		return invalidf("Expected exploration id to be non-empty")
	}
	if m.MathImagesGenerationRequired && len(m.LatexStringsWithoutSVG) == 0 {
		return invalidf("Expected latex strings for exploration %s", m.ExpID)
	}
	return nil
}

// SVGSizeInBytes approximates the size of the SVGs to generate at 1000 bytes
// per character. The \frac and \sqrt keywords do not add to the image size.
func (m *MathRichTextInfo) SVGSizeInBytes() int {
	size := 0
	for _, latex := range m.LatexStringsWithoutSVG {
		stripped := strings.NewReplacer(`\frac`, "", `\sqrt`, "").Replace(latex)
		size += len(stripped) * 1000
	}
	return size
}

// LongestLatexExpression returns the longest expression; the first wins ties.
func (m *MathRichTextInfo) LongestLatexExpression() string {
	longest := ""
	for _, latex := range m.LatexStringsWithoutSVG {
		if len(latex) > len(longest) {
			longest = latex
		}
	}
	return longest
}

