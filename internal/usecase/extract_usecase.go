package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/recipe-extraction-service/internal/entity"
	"github.com/user/recipe-extraction-service/internal/repository"
	"github.com/user/recipe-extraction-service/pkg/metrics"
	"github.com/user/recipe-extraction-service/pkg/task"
)

// ErrExtractionExhausted is returned when every cascade method failed for a
// URL. Item-level and non-fatal: the batch counts it and moves on.
var ErrExtractionExhausted = errors.New("all extraction methods failed")

// ExtractionCascade extracts one recipe per URL by running strategies in
// strict order until one yields a complete recipe: embedded structured
// data, AI text extraction over the raw HTML, then a headless render
// retrying both plus a final vision pass over screenshots. Results are
// deduplicated by (job, title) and each newly saved recipe is handed off to
// downstream enrichment fire-and-forget.
type ExtractionCascade struct {
	fetcher     repository.PageFetcher
	extractor   repository.RecipeExtractor
	renderer    repository.Renderer
	recipes     repository.RecipeRepository
	enrichment  repository.EnrichmentScheduler
	jobs        repository.JobRepository
	pools       repository.URLPoolRepository
	runner      task.Runner
	concurrency int
}

// NewExtractionCascade creates a new ExtractionCascade use case.
func NewExtractionCascade(
	fetcher repository.PageFetcher,
	extractor repository.RecipeExtractor,
	renderer repository.Renderer,
	recipes repository.RecipeRepository,
	enrichment repository.EnrichmentScheduler,
	jobs repository.JobRepository,
	pools repository.URLPoolRepository,
	runner task.Runner,
	concurrency int,
) *ExtractionCascade {
	return &ExtractionCascade{
		fetcher:     fetcher,
		extractor:   extractor,
		renderer:    renderer,
		recipes:     recipes,
		enrichment:  enrichment,
		jobs:        jobs,
		pools:       pools,
		runner:      runner,
		concurrency: concurrency,
	}
}

// RunBatch extracts the job's current confirmed round: up to
// extraction_limit URLs from the filtered pool that have not already been
// extracted. Individual failures never abort siblings; progress is
// persisted once per batch to bound write amplification.
func (c *ExtractionCascade) RunBatch(ctx context.Context, jobID string) {
	job, err := c.jobs.FindByID(ctx, jobID)
	if err != nil {
		slog.Error("Cannot run extraction batch", "job_id", jobID, "error", err)
		return
	}
	if job.Status != entity.StatusExtractingData {
		slog.Info("Job not in extracting_data, skipping batch", "job_id", jobID, "status", job.Status)
		return
	}

	targets, err := c.residualTargets(ctx, job)
	if err != nil {
		slog.Error("Failed to compute extraction targets", "job_id", jobID, "error", err)
		return
	}

	var (
		mu        sync.Mutex
		extracted []string
		skipped   int
		failed    int
	)

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for _, pageURL := range targets {
		g.Go(func() error {
			_, err := c.ExtractOne(ctx, job.ID, job.UserID, pageURL)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				extracted = append(extracted, pageURL)
			case errors.Is(err, repository.ErrNotRecipePage):
				skipped++
				metrics.ExtractionsTotal.WithLabelValues("none", "skipped").Inc()
			default:
				failed++
				metrics.ExtractionsTotal.WithLabelValues("none", "failure").Inc()
				slog.Warn("URL extraction failed", "job_id", job.ID, "url", pageURL, "error", err)
			}
			// One URL's failure never aborts its siblings.
			return nil
		})
	}
	_ = g.Wait()

	if err := c.jobs.RecordBatchProgress(ctx, jobID, len(targets), len(extracted), extracted); err != nil {
		slog.Error("Failed to persist batch progress", "job_id", jobID, "error", err)
	}

	ok, err := c.jobs.Transition(ctx, jobID, entity.StatusExtractingData, entity.StatusCompleted)
	if err != nil {
		slog.Error("Failed to complete job", "job_id", jobID, "error", err)
	} else if ok {
		metrics.JobsFinishedTotal.WithLabelValues(string(entity.StatusCompleted)).Inc()
	}

	slog.Info("Extraction batch finished",
		"job_id", jobID,
		"attempted", len(targets),
		"extracted", len(extracted),
		"skipped", skipped,
		"failed", failed,
	)
}

// residualTargets returns the next round's URLs: the filtered pool minus
// the accumulated extracted-URL list, capped at the confirmed limit.
func (c *ExtractionCascade) residualTargets(ctx context.Context, job *entity.ExtractionJob) ([]string, error) {
	total, err := c.pools.FilteredLen(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}
	urls, err := c.pools.FilteredRange(ctx, job.ID, 0, total)
	if err != nil {
		return nil, err
	}

	done := make(map[string]struct{}, len(job.ExtractedURLs))
	for _, u := range job.ExtractedURLs {
		done[u] = struct{}{}
	}

	var targets []string
	for _, u := range urls {
		if _, ok := done[u]; ok {
			continue
		}
		targets = append(targets, u)
		if job.ExtractionLimit > 0 && len(targets) >= job.ExtractionLimit {
			break
		}
	}
	return targets, nil
}

// ExtractOne runs the cascade for a single URL. Returns the persisted
// recipe, repository.ErrNotRecipePage when the vision pass determined the
// page is not a recipe, or ErrExtractionExhausted when every method failed.
func (c *ExtractionCascade) ExtractOne(ctx context.Context, jobID, userID, pageURL string) (*entity.ExtractedRecipe, error) {
	start := time.Now()

	html, fetchErr := c.fetcher.FetchHTML(ctx, pageURL)
	if fetchErr == nil {
		// 1. Embedded structured data on the plain page.
		if r := ParseStructuredRecipe(html); r.Complete() {
			return c.persist(ctx, jobID, userID, pageURL, r, entity.MethodJSONLD, start)
		}

		// 2. AI text extraction. Web stories are built by scripts; their
		// plain HTML has nothing to extract, so skip straight to rendering.
		if !IsWebStory(pageURL, html) {
			mainImage := c.pickMainImage(ctx, pageURL, CollectImageURLs(pageURL, html))
			r, err := c.extractor.ExtractFromHTML(ctx, pageURL, html, mainImage)
			if err == nil && r.Complete() {
				return c.persist(ctx, jobID, userID, pageURL, r, entity.MethodAIHTML, start)
			}
			if err != nil {
				slog.Debug("AI text extraction failed, falling through to renderer", "url", pageURL, "error", err)
			}
		}
	} else {
		slog.Debug("Plain fetch failed, falling through to renderer", "url", pageURL, "error", fetchErr)
	}

	// 3. Headless rendering fallback.
	rendered, err := c.renderer.Render(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: render failed: %s", ErrExtractionExhausted, err)
	}

	// 3a. Structured data after script execution.
	for _, raw := range rendered.StructuredData {
		if r := ParseStructuredRecipeJSON(raw); r.Complete() {
			return c.persist(ctx, jobID, userID, pageURL, r, entity.MethodRenderedJSONLD, start)
		}
	}
	if r := ParseStructuredRecipe(rendered.HTML); r.Complete() {
		return c.persist(ctx, jobID, userID, pageURL, r, entity.MethodRenderedJSONLD, start)
	}

	// 3b. AI text extraction over the rendered DOM.
	mainImage := c.pickMainImage(ctx, pageURL, rendered.ImageURLs)
	r, aiErr := c.extractor.ExtractFromHTML(ctx, pageURL, rendered.HTML, mainImage)
	if aiErr == nil && r.Complete() {
		return c.persist(ctx, jobID, userID, pageURL, r, entity.MethodRenderedAI, start)
	}

	// 3c. Vision over scrolling screenshots, last resort.
	if len(rendered.Screenshots) > 0 {
		r, visErr := c.extractor.ExtractFromScreenshots(ctx, pageURL, rendered.Screenshots)
		if errors.Is(visErr, repository.ErrNotRecipePage) {
			return nil, visErr
		}
		if visErr == nil && r.Complete() {
			return c.persist(ctx, jobID, userID, pageURL, r, entity.MethodRenderedAI, start)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrExtractionExhausted, pageURL)
}

// persist saves the recipe with its method tag, deduplicated by
// (job, title), and schedules enrichment for newly created rows only.
func (c *ExtractionCascade) persist(ctx context.Context, jobID, userID, pageURL string, recipe *entity.ExtractedRecipe, method entity.ExtractionMethod, started time.Time) (*entity.ExtractedRecipe, error) {
	recipe.JobID = jobID
	recipe.UserID = userID
	recipe.SourceURL = pageURL
	recipe.Method = method

	id, created, err := c.recipes.Save(ctx, recipe)
	if err != nil {
		return nil, fmt.Errorf("failed to save recipe %q: %w", recipe.Title, err)
	}
	recipe.ID = id

	metrics.ExtractionsTotal.WithLabelValues(string(method), "success").Inc()
	metrics.ExtractionDuration.WithLabelValues(string(method)).Observe(time.Since(started).Seconds())

	if created {
		// Streaming hand-off: each recipe flows to enrichment on its own,
		// independent of the batch.
		c.runner.Go(fmt.Sprintf("enrich:%d", id), func(ctx context.Context) {
			if err := c.enrichment.ScheduleEnrichment(ctx, id); err != nil {
				slog.Warn("Enrichment hand-off failed", "recipe_id", id, "error", err)
			}
		})
	}

	return recipe, nil
}

func (c *ExtractionCascade) pickMainImage(ctx context.Context, pageURL string, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	choice, err := c.extractor.RankImages(ctx, pageURL, candidates)
	if err != nil {
		slog.Debug("Image ranking failed, using first candidate", "url", pageURL, "error", err)
		return candidates[0]
	}
	return choice
}
