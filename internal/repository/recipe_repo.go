package repository

import (
	"context"

	"github.com/user/recipe-extraction-service/internal/entity"
)

// RecipeRepository defines the interface for storing and retrieving
// extracted recipes. Saves are deduplicated by (job id, title): a second
// save of the same title is a no-op that returns the original identity.
type RecipeRepository interface {
	// Save stores the recipe unless one with the same (job id, title)
	// already exists. It returns the stored row's id and whether a new row
	// was created.
	Save(ctx context.Context, recipe *entity.ExtractedRecipe) (int64, bool, error)
	// ListByJob retrieves every recipe extracted by a job.
	ListByJob(ctx context.Context, jobID string) ([]*entity.ExtractedRecipe, error)
	// DeleteByUser removes all recipes owned by (userID, communityID) and
	// returns the number deleted.
	DeleteByUser(ctx context.Context, userID, communityID string) (int64, error)
}
