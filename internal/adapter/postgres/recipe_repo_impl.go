package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/recipe-extraction-service/internal/entity"
)

// RecipeRepoImpl provides a concrete implementation for the
// RecipeRepository interface using PostgreSQL. A unique index on
// (job_id, title) backs the de-duplication contract.
type RecipeRepoImpl struct {
	db *pgxpool.Pool
}

// NewRecipeRepo creates a new instance of RecipeRepoImpl.
func NewRecipeRepo(db *pgxpool.Pool) *RecipeRepoImpl {
	return &RecipeRepoImpl{db: db}
}

// Save stores the recipe unless (job_id, title) already exists, in which
// case the existing row's id is returned and created is false.
func (r *RecipeRepoImpl) Save(ctx context.Context, recipe *entity.ExtractedRecipe) (int64, bool, error) {
	insert := `
		INSERT INTO extracted_recipes (
			job_id, user_id, source_url, title, description, image_url,
			ingredients, instructions, servings, prep_time, cook_time,
			category, method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (job_id, title) DO NOTHING
		RETURNING id;
	`
	var id int64
	err := r.db.QueryRow(ctx, insert,
		recipe.JobID,
		recipe.UserID,
		recipe.SourceURL,
		recipe.Title,
		recipe.Description,
		recipe.ImageURL,
		recipe.Ingredients,
		recipe.Instructions,
		recipe.Servings,
		recipe.PrepTime,
		recipe.CookTime,
		recipe.Category,
		recipe.Method,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, err
	}

	// Conflict: the title was already extracted for this job. Return the
	// original row's identity.
	query := `SELECT id FROM extracted_recipes WHERE job_id = $1 AND title = $2;`
	if err := r.db.QueryRow(ctx, query, recipe.JobID, recipe.Title).Scan(&id); err != nil {
		return 0, false, err
	}
	return id, false, nil
}

// ListByJob retrieves every recipe extracted by a job, oldest first.
func (r *RecipeRepoImpl) ListByJob(ctx context.Context, jobID string) ([]*entity.ExtractedRecipe, error) {
	query := `
		SELECT id, job_id, user_id, source_url, title, description, image_url,
		       ingredients, instructions, servings, prep_time, cook_time,
		       category, method, created_at
		FROM extracted_recipes
		WHERE job_id = $1
		ORDER BY created_at ASC;
	`
	rows, err := r.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recipes []*entity.ExtractedRecipe
	for rows.Next() {
		var rec entity.ExtractedRecipe
		if err := rows.Scan(
			&rec.ID,
			&rec.JobID,
			&rec.UserID,
			&rec.SourceURL,
			&rec.Title,
			&rec.Description,
			&rec.ImageURL,
			&rec.Ingredients,
			&rec.Instructions,
			&rec.Servings,
			&rec.PrepTime,
			&rec.CookTime,
			&rec.Category,
			&rec.Method,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		recipes = append(recipes, &rec)
	}
	return recipes, rows.Err()
}

// DeleteByUser removes all recipes owned by (userID, communityID).
func (r *RecipeRepoImpl) DeleteByUser(ctx context.Context, userID, communityID string) (int64, error) {
	query := `
		DELETE FROM extracted_recipes
		WHERE user_id = $1
		  AND job_id IN (SELECT id FROM extraction_jobs WHERE user_id = $1 AND community_id = $2);
	`
	tag, err := r.db.Exec(ctx, query, userID, communityID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
