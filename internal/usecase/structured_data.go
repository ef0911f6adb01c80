package usecase

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/recipe-extraction-service/internal/entity"
	"github.com/user/recipe-extraction-service/pkg/utils"
)

const imageCandidateCap = 30

// ParseStructuredRecipe scans a page's ld+json script blocks for a
// schema.org Recipe node and maps it to an ExtractedRecipe. Returns nil
// when no recipe node is present. Completeness is the caller's concern: a
// present-but-partial recipe is returned as-is so the cascade can treat it
// as incomplete and fall through.
func ParseStructuredRecipe(html string) *entity.ExtractedRecipe {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var found *entity.ExtractedRecipe
	doc.Find(`script[type='application/ld+json']`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if r := ParseStructuredRecipeJSON(s.Text()); r != nil {
			found = r
			return false
		}
		return true
	})
	return found
}

// ParseStructuredRecipeJSON parses one ld+json document, which may be a
// single object, an array, or a @graph container, and returns the first
// Recipe node found.
func ParseStructuredRecipeJSON(raw string) *entity.ExtractedRecipe {
	var data interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil
	}
	node := findRecipeNode(data)
	if node == nil {
		return nil
	}
	return mapRecipeNode(node)
}

func findRecipeNode(data interface{}) map[string]interface{} {
	switch v := data.(type) {
	case []interface{}:
		for _, item := range v {
			if node := findRecipeNode(item); node != nil {
				return node
			}
		}
	case map[string]interface{}:
		if isRecipeType(v["@type"]) {
			return v
		}
		if graph, ok := v["@graph"]; ok {
			return findRecipeNode(graph)
		}
	}
	return nil
}

func isRecipeType(t interface{}) bool {
	switch v := t.(type) {
	case string:
		return v == "Recipe"
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "Recipe" {
				return true
			}
		}
	}
	return false
}

func mapRecipeNode(node map[string]interface{}) *entity.ExtractedRecipe {
	return &entity.ExtractedRecipe{
		Title:        strings.TrimSpace(stringField(node["name"])),
		Description:  stringField(node["description"]),
		ImageURL:     imageField(node["image"]),
		Ingredients:  stringList(node["recipeIngredient"]),
		Instructions: instructionList(node["recipeInstructions"]),
		Servings:     stringField(node["recipeYield"]),
		PrepTime:     stringField(node["prepTime"]),
		CookTime:     stringField(node["cookTime"]),
		Category:     stringField(node["recipeCategory"]),
	}
}

func stringField(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case []interface{}:
		if len(s) > 0 {
			return stringField(s[0])
		}
	}
	return ""
}

func stringList(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		if s := stringField(v); s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	for _, item := range items {
		if s := strings.TrimSpace(stringField(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// instructionList handles the schema.org variants: plain strings, HowToStep
// objects with a text field, and HowToSection containers with nested
// itemListElement steps.
func instructionList(v interface{}) []string {
	var out []string
	var walk func(interface{})
	walk = func(item interface{}) {
		switch n := item.(type) {
		case string:
			if s := strings.TrimSpace(n); s != "" {
				out = append(out, s)
			}
		case []interface{}:
			for _, child := range n {
				walk(child)
			}
		case map[string]interface{}:
			if nested, ok := n["itemListElement"]; ok {
				walk(nested)
				return
			}
			if s := strings.TrimSpace(stringField(n["text"])); s != "" {
				out = append(out, s)
			}
		}
	}
	walk(v)
	return out
}

func imageField(v interface{}) string {
	switch n := v.(type) {
	case string:
		return n
	case []interface{}:
		if len(n) > 0 {
			return imageField(n[0])
		}
	case map[string]interface{}:
		return stringField(n["url"])
	}
	return ""
}

// IsWebStory reports whether a page is a video/app "web story": pages that
// require script execution, where plain-HTML AI extraction cannot succeed.
func IsWebStory(pageURL, html string) bool {
	lower := strings.ToLower(pageURL)
	if strings.Contains(lower, "/web-stories/") || strings.Contains(lower, "/web-story/") {
		return true
	}
	return strings.Contains(html, "<amp-story")
}

// CollectImageURLs pulls candidate image URLs out of page markup for the
// main-image ranking step. Relative sources are resolved against the page
// URL; unresolvable ones are skipped.
func CollectImageURLs(pageURL, html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, ok := s.Attr("src")
		if !ok || src == "" {
			src, _ = s.Attr("data-src")
		}
		if src == "" || strings.HasPrefix(src, "data:") {
			return true
		}
		abs, err := utils.ToAbsoluteURL(base, src)
		if err != nil || !strings.HasPrefix(abs, "http") {
			return true
		}
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
		return len(out) < imageCandidateCap
	})
	return out
}
