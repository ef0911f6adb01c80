package repository

import (
	"context"
	"errors"

	"github.com/user/recipe-extraction-service/internal/entity"
)

// ErrNotRecipePage is returned by the vision extraction path when the model
// determines the screenshots show something other than a recipe (a CAPTCHA,
// an error page). It is a short-circuit signal, not a failure.
var ErrNotRecipePage = errors.New("page is not a recipe")

// URLClassifier defines the contract for the LLM classification endpoint:
// one sub-batch of URLs in, a boolean is-recipe verdict per URL out. Callers
// are responsible for sub-batching to the provider's ceiling and for retry.
type URLClassifier interface {
	ClassifyURLs(ctx context.Context, urls []string) (map[string]bool, error)
}

// RecipeExtractor defines the contract for the LLM extraction endpoint.
type RecipeExtractor interface {
	// ExtractFromHTML extracts a structured recipe from raw page HTML.
	// mainImageURL, when non-empty, is passed through to the result.
	ExtractFromHTML(ctx context.Context, pageURL, html, mainImageURL string) (*entity.ExtractedRecipe, error)
	// ExtractFromScreenshots runs a vision pass over scrolling page
	// screenshots. Returns ErrNotRecipePage when the model reports the page
	// is not a recipe at all.
	ExtractFromScreenshots(ctx context.Context, pageURL string, screenshots [][]byte) (*entity.ExtractedRecipe, error)
	// RankImages asks the model to pick the best candidate for the recipe's
	// main image. An empty result means no candidate stood out.
	RankImages(ctx context.Context, pageURL string, candidates []string) (string, error)
}

// SegmentMapper defines the contract for mapping recipe instructions onto a
// video's timeline. Results are unvalidated model output; callers run the
// deterministic validation pipeline over them.
type SegmentMapper interface {
	MapInstructions(ctx context.Context, videoURL string, instructions []string, totalDuration float64) ([]entity.VideoSegment, error)
}
