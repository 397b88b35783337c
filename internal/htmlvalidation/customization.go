package htmlvalidation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

type componentSpec struct {
	args     []string
	validate func(args map[string]any) error
}

var filepathRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]+\.(png|jpg|jpeg|gif|svg)$`)

// componentSpecs lists the arguments and checks of each rich-text component.
// Validation error strings are shown to users and become job output keys, so
// they keep their capitalization and punctuation (ST1005 does not apply).
var componentSpecs = map[string]componentSpec{
	tagImage: {
		args: []string{"filepath", "caption", "alt"},
		validate: func(args map[string]any) error {
			fp, _ := args["filepath"].(string)
			if !filepathRegex.MatchString(fp) {
				return errors.New("Invalid filepath")
			}
			if _, ok := args["caption"].(string); !ok {
				return errors.New("Expected caption to be a string")
			}
			if _, ok := args["alt"].(string); !ok {
				return errors.New("Expected alt to be a string")
			}
			return nil
		},
	},
	tagLink: {
		args: []string{"url", "text"},
		validate: func(args map[string]any) error {
			url, _ := args["url"].(string)
			if !strings.HasPrefix(url, "https://") {
				return errors.New("Invalid URL: Sanitized URL should start with 'https://'")
			}
			if _, ok := args["text"].(string); !ok {
				return errors.New("Expected text to be a string")
			}
			return nil
		},
	},
	tagMath: {
		args: []string{"math_content"},
		validate: func(args map[string]any) error {
			mc, ok := args["math_content"].(map[string]any)
			if !ok {
				return errors.New("Expected math_content to be a dict")
			}
			if latex, _ := mc["raw_latex"].(string); latex == "" {
				return errors.New("Math content should have a non-empty raw_latex")
			}
			if _, ok := mc["svg_filename"].(string); !ok {
				return errors.New("Math content should have an svg_filename")
			}
			return nil
		},
	},
	tagVideo: {
		args: []string{"video_id", "start", "end", "autoplay"},
		validate: func(args map[string]any) error {
			if id, _ := args["video_id"].(string); id == "" {
				return errors.New("Video id should not be empty")
			}
			start, ok1 := args["start"].(float64)
			end, ok2 := args["end"].(float64)
			if !ok1 || !ok2 || start < 0 || end < 0 {
				return errors.New("Start and End values should be non-negative numbers")
			}
			if end != 0 && start > end {
				return errors.New("Start value should not be greater than End value in Video tag.")
			}
			if _, ok := args["autoplay"].(bool); !ok {
				return errors.New("Expected autoplay to be a bool")
			}
			return nil
		},
	},
	tagSkillReview: {
		args: []string{"skill_id", "text"},
		validate: func(args map[string]any) error {
			if id, _ := args["skill_id"].(string); id == "" {
				return errors.New("Skill id should not be empty")
			}
			return nil
		},
	},
	tagCollapsible: {
		args: []string{"heading", "content"},
		validate: func(args map[string]any) error {
			if h, _ := args["heading"].(string); h == "" {
				return errors.New("No collapsible heading is present inside the tag.")
			}
			content, _ := args["content"].(string)
			if strings.TrimSpace(content) == "" {
				return errors.New("No collapsible content is present inside the tag.")
			}
			return checkNested(content)
		},
	},
	tagTabs: {
		args: []string{"tab_contents"},
		validate: func(args map[string]any) error {
			tabs, _ := args["tab_contents"].([]any)
			if len(tabs) == 0 {
				return errors.New("No tabs are present inside the tag.")
			}
			for _, t := range tabs {
				tab, _ := t.(map[string]any)
				if title, _ := tab["title"].(string); title == "" {
					return errors.New("No title is present inside the tab.")
				}
				content, _ := tab["content"].(string)
				if strings.TrimSpace(content) == "" {
					return errors.New("No content is present inside the tab.")
				}
				if err := checkNested(content); err != nil {
					return err
				}
			}
			return nil
		},
	},
}

// checkNested rejects tabs and collapsibles inside one another.
func checkNested(content string) error {
	nodes, err := parseFragment(content)
	if err != nil {
		return fmt.Errorf("Invalid inner content: %v", err)
	}
	for _, el := range elements(nodes) {
		if el.Data == tagTabs || el.Data == tagCollapsible {
			return errors.New("Nested tabs and collapsible")
		}
	}
	return nil
}

// ValidateCustomizationArgs validates the customization arguments of every
// rich-text component in htmlList, including components nested inside tabs
// and collapsibles. The result maps an error message to the rendered
// components that produced it.
func ValidateCustomizationArgs(htmlList []string) map[string][]string {
	errs := map[string][]string{}
	for _, h := range htmlList {
		nodes, err := parseFragment(h)
		if err != nil {
			msg := fmt.Sprintf("Invalid html: %v", err)
			errs[msg] = append(errs[msg], h)
			continue
		}
		validateComponents(nodes, errs)
	}
	return errs
}

func validateComponents(nodes []*html.Node, errs map[string][]string) {
	for _, el := range elements(nodes) {
		if !strings.HasPrefix(el.Data, componentPrefix) {
			continue
		}
		if err := validateComponent(el); err != nil {
			errs[err.Error()] = append(errs[err.Error()], tagString(el))
		}
		for _, inner := range innerContents(el) {
			innerNodes, err := parseFragment(inner)
			if err != nil {
				continue
			}
			validateComponents(innerNodes, errs)
		}
	}
}

func validateComponent(el *html.Node) error {
	spec, ok := componentSpecs[el.Data]
	if !ok {
		return fmt.Errorf("Invalid component: %s", el.Data)
	}

	args := map[string]any{}
	var extra []string
	for _, a := range el.Attr {
		name, ok := strings.CutSuffix(a.Key, argSuffix)
		if !ok {
			continue
		}
		if !contains(spec.args, name) {
			extra = append(extra, name)
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(a.Val), &v); err != nil {
			return fmt.Errorf("Invalid customization arg %s: value is not valid JSON", name)
		}
		args[name] = v
	}
	var missing []string
	for _, name := range spec.args {
		if _, ok := args[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(missing)
		sort.Strings(extra)
		return fmt.Errorf("Missing attributes: %s, Extra attributes: %s",
			strings.Join(missing, ", "), strings.Join(extra, ", "))
	}
	return spec.validate(args)
}

// innerContents returns the HTML held inside a collapsible or tabs component.
func innerContents(el *html.Node) []string {
	switch el.Data {
	case tagCollapsible:
		var content string
		if ok, err := jsonAttr(el, "content"+argSuffix, &content); ok && err == nil {
			return []string{content}
		}
	case tagTabs:
		var tabs []tabContent
		if ok, err := jsonAttr(el, "tab_contents"+argSuffix, &tabs); ok && err == nil {
			out := make([]string, 0, len(tabs))
			for _, t := range tabs {
				out = append(out, t.Content)
			}
			return out
		}
	}
	return nil
}
