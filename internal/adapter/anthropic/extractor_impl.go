package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/recipe-extraction-service/internal/entity"
	"github.com/user/recipe-extraction-service/internal/repository"
)

const (
	// Raw page HTML is truncated before prompting; recipe content sits well
	// within this window on real pages.
	maxHTMLLength = 60000

	notRecipeMarker = "NOT_A_RECIPE"
)

const extractSystemPrompt = `You extract recipe data from web pages. Respond with ONLY a JSON object with these keys:
{
  "title": "string",
  "description": "string",
  "image_url": "string",
  "ingredients": ["string"],
  "instructions": ["string"],
  "servings": "string",
  "prep_time": "string",
  "cook_time": "string",
  "category": "string"
}
Use empty strings or empty arrays for anything the page does not contain. No markdown, no explanation.`

const visionSystemPrompt = extractSystemPrompt + `
The input is a series of screenshots scrolling down one page, top to bottom.
If the screenshots show a CAPTCHA, an error page, or anything that is clearly
not a recipe page, respond with exactly ` + notRecipeMarker + ` instead of JSON.`

const rankImagesSystemPrompt = `You pick the main dish photo for a recipe page. Given a page URL and candidate image URLs, respond with ONLY the single best candidate URL, or an empty response if none looks like a dish photo. Prefer large hero/featured images; avoid logos, icons, avatars, and ads.`

// recipePayload is the wire shape of the model's extraction response.
type recipePayload struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	ImageURL     string   `json:"image_url"`
	Ingredients  []string `json:"ingredients"`
	Instructions []string `json:"instructions"`
	Servings     string   `json:"servings"`
	PrepTime     string   `json:"prep_time"`
	CookTime     string   `json:"cook_time"`
	Category     string   `json:"category"`
}

// ExtractorImpl implements the RecipeExtractor interface.
type ExtractorImpl struct {
	client *Client
}

// NewExtractor creates a new ExtractorImpl.
func NewExtractor(client *Client) *ExtractorImpl {
	return &ExtractorImpl{client: client}
}

// ExtractFromHTML extracts a structured recipe from raw page HTML.
func (e *ExtractorImpl) ExtractFromHTML(ctx context.Context, pageURL, html, mainImageURL string) (*entity.ExtractedRecipe, error) {
	if len(html) > maxHTMLLength {
		html = html[:maxHTMLLength]
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Page URL: %s\n", pageURL)
	if mainImageURL != "" {
		fmt.Fprintf(&prompt, "Likely main image: %s\n", mainImageURL)
	}
	prompt.WriteString("\nPage HTML:\n")
	prompt.WriteString(html)

	raw, err := e.client.complete(ctx, extractSystemPrompt, prompt.String())
	if err != nil {
		return nil, err
	}

	recipe, err := e.decodeRecipe(raw, pageURL)
	if err != nil {
		return nil, err
	}
	if recipe.ImageURL == "" {
		recipe.ImageURL = mainImageURL
	}
	return recipe, nil
}

// ExtractFromScreenshots runs the vision pass over scrolling screenshots.
// Returns repository.ErrNotRecipePage when the model reports the page is
// not a recipe, which callers treat as a skip rather than a failure.
func (e *ExtractorImpl) ExtractFromScreenshots(ctx context.Context, pageURL string, screenshots [][]byte) (*entity.ExtractedRecipe, error) {
	if len(screenshots) == 0 {
		return nil, fmt.Errorf("no screenshots to analyze for %s", pageURL)
	}

	prompt := fmt.Sprintf("Page URL: %s\nExtract the recipe shown in these screenshots.", pageURL)
	raw, err := e.client.completeVision(ctx, visionSystemPrompt, prompt, screenshots)
	if err != nil {
		return nil, err
	}
	if strings.Contains(strings.TrimSpace(raw), notRecipeMarker) {
		return nil, repository.ErrNotRecipePage
	}

	return e.decodeRecipe(raw, pageURL)
}

// RankImages asks the model to choose the main dish image among candidates.
func (e *ExtractorImpl) RankImages(ctx context.Context, pageURL string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Page URL: %s\nCandidates:\n", pageURL)
	for _, c := range candidates {
		prompt.WriteString(c)
		prompt.WriteByte('\n')
	}

	raw, err := e.client.complete(ctx, rankImagesSystemPrompt, prompt.String())
	if err != nil {
		return "", err
	}

	choice := strings.TrimSpace(cleanJSONBlock(raw))
	for _, c := range candidates {
		if c == choice {
			return c, nil
		}
	}
	// Model answered with something outside the candidate set; no winner.
	return "", nil
}

func (e *ExtractorImpl) decodeRecipe(raw, pageURL string) (*entity.ExtractedRecipe, error) {
	var payload recipePayload
	if err := json.Unmarshal([]byte(cleanJSONBlock(raw)), &payload); err != nil {
		if err := json.Unmarshal([]byte(repairJSON(raw)), &payload); err != nil {
			return nil, fmt.Errorf("extraction response is not valid JSON after repair: %w", err)
		}
	}

	return &entity.ExtractedRecipe{
		SourceURL:    pageURL,
		Title:        strings.TrimSpace(payload.Title),
		Description:  payload.Description,
		ImageURL:     payload.ImageURL,
		Ingredients:  payload.Ingredients,
		Instructions: payload.Instructions,
		Servings:     payload.Servings,
		PrepTime:     payload.PrepTime,
		CookTime:     payload.CookTime,
		Category:     payload.Category,
	}, nil
}
