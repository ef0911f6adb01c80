package entity

import "time"

// ExtractionMethod tags which cascade sub-path produced a recipe.
type ExtractionMethod string

const (
	MethodJSONLD         ExtractionMethod = "json-ld"
	MethodAIHTML         ExtractionMethod = "ai-html"
	MethodRenderedJSONLD ExtractionMethod = "puppeteer-json-ld"
	MethodRenderedAI     ExtractionMethod = "puppeteer-ai"
)

// ExtractedRecipe mirrors the `extracted_recipes` PostgreSQL table schema.
// (job_id, title) is the de-duplication key: saving the same title twice for
// one job returns the original row's identity.
type ExtractedRecipe struct {
	ID           int64
	JobID        string
	UserID       string
	SourceURL    string
	Title        string
	Description  string
	ImageURL     string
	Ingredients  []string
	Instructions []string
	Servings     string
	PrepTime     string
	CookTime     string
	Category     string
	Method       ExtractionMethod
	CreatedAt    time.Time
}

// Complete reports whether the recipe satisfies the cascade's success
// criterion: a non-empty title plus at least one ingredient and one
// instruction. Structured data missing any of these is treated as absent.
func (r *ExtractedRecipe) Complete() bool {
	return r != nil && r.Title != "" && len(r.Ingredients) > 0 && len(r.Instructions) > 0
}
