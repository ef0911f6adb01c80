package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/recipe-extraction-service/internal/entity"
	"github.com/user/recipe-extraction-service/internal/repository"
	"github.com/user/recipe-extraction-service/pkg/task"
)

type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) FetchHTML(_ context.Context, url string) (string, error) {
	html, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("%w: 404", repository.ErrFetchStatus)
	}
	return html, nil
}

type fakeExtractor struct {
	mu              sync.Mutex
	htmlRecipe      *entity.ExtractedRecipe
	htmlErr         error
	visionRecipe    *entity.ExtractedRecipe
	visionErr       error
	rankChoice      string
	htmlCalls       int
	visionCalls     int
	rankCalls       int
	lastMainImage   string
	lastRankOptions []string
}

func (f *fakeExtractor) ExtractFromHTML(_ context.Context, _, _ string, mainImageURL string) (*entity.ExtractedRecipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.htmlCalls++
	f.lastMainImage = mainImageURL
	if f.htmlErr != nil {
		return nil, f.htmlErr
	}
	if f.htmlRecipe == nil {
		return &entity.ExtractedRecipe{}, nil
	}
	copied := *f.htmlRecipe
	if mainImageURL != "" {
		copied.ImageURL = mainImageURL
	}
	return &copied, nil
}

func (f *fakeExtractor) ExtractFromScreenshots(_ context.Context, _ string, _ [][]byte) (*entity.ExtractedRecipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visionCalls++
	if f.visionErr != nil {
		return nil, f.visionErr
	}
	if f.visionRecipe == nil {
		return &entity.ExtractedRecipe{}, nil
	}
	copied := *f.visionRecipe
	return &copied, nil
}

func (f *fakeExtractor) RankImages(_ context.Context, _ string, candidates []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rankCalls++
	f.lastRankOptions = candidates
	if f.rankChoice != "" {
		return f.rankChoice, nil
	}
	if len(candidates) > 0 {
		return candidates[0], nil
	}
	return "", nil
}

type fakeRenderer struct {
	mu      sync.Mutex
	results map[string]*repository.RenderResult
	err     error
	calls   int
}

func (f *fakeRenderer) Render(_ context.Context, url string) (*repository.RenderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[url]; ok {
		return r, nil
	}
	return &repository.RenderResult{}, nil
}

type fakeEnrichment struct {
	mu        sync.Mutex
	scheduled []int64
}

func (f *fakeEnrichment) ScheduleEnrichment(_ context.Context, recipeID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, recipeID)
	return nil
}

func (f *fakeEnrichment) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scheduled)
}

const completeRecipeLD = `<html><head><script type="application/ld+json">
{"@context":"https://schema.org","@type":"Recipe","name":"Pancakes",
 "description":"Fluffy.","image":"https://img.example.com/p.jpg",
 "recipeIngredient":["flour","milk"],
 "recipeInstructions":[{"@type":"HowToStep","text":"Mix."},{"@type":"HowToStep","text":"Fry."}]}
</script></head><body></body></html>`

const partialRecipeLD = `<html><head><script type="application/ld+json">
{"@context":"https://schema.org","@type":"Recipe","name":"Mystery Dish"}
</script></head><body><img src="https://img.example.com/a.jpg"><img src="/b.jpg"></body></html>`

type cascadeFixture struct {
	cascade   *ExtractionCascade
	jobs      *fakeJobRepo
	pools     *fakeURLPool
	recipes   *fakeRecipeRepo
	fetcher   *fakeFetcher
	extractor *fakeExtractor
	renderer  *fakeRenderer
	enricher  *fakeEnrichment
}

func newCascadeFixture(job *entity.ExtractionJob) *cascadeFixture {
	f := &cascadeFixture{
		jobs:      newFakeJobRepo(job),
		pools:     newFakeURLPool(),
		recipes:   newFakeRecipeRepo(),
		fetcher:   &fakeFetcher{pages: map[string]string{}},
		extractor: &fakeExtractor{},
		renderer:  &fakeRenderer{results: map[string]*repository.RenderResult{}},
		enricher:  &fakeEnrichment{},
	}
	f.cascade = NewExtractionCascade(f.fetcher, f.extractor, f.renderer, f.recipes,
		f.enricher, f.jobs, f.pools, task.Sync{}, 4)
	return f
}

func extractingJob(id string, limit int) *entity.ExtractionJob {
	return &entity.ExtractionJob{
		ID:              id,
		UserID:          "user-1",
		SourceURL:       "https://example.com",
		Kind:            entity.KindProfile,
		Status:          entity.StatusExtractingData,
		ExtractionLimit: limit,
	}
}

func TestExtractOneStructuredData(t *testing.T) {
	f := newCascadeFixture(extractingJob("job-1", 10))
	f.fetcher.pages["https://example.com/pancakes"] = completeRecipeLD

	recipe, err := f.cascade.ExtractOne(context.Background(), "job-1", "user-1", "https://example.com/pancakes")
	require.NoError(t, err)
	assert.Equal(t, "Pancakes", recipe.Title)
	assert.Equal(t, entity.MethodJSONLD, recipe.Method)
	assert.Equal(t, "https://img.example.com/p.jpg", recipe.ImageURL)
	// No AI calls, no rendering for pages with complete structured data.
	assert.Zero(t, f.extractor.htmlCalls)
	assert.Zero(t, f.renderer.calls)
	assert.Equal(t, 1, f.enricher.count())
}

func TestExtractOnePartialStructuredDataFallsThrough(t *testing.T) {
	f := newCascadeFixture(extractingJob("job-1", 10))
	f.fetcher.pages["https://example.com/mystery"] = partialRecipeLD
	f.extractor.htmlRecipe = &entity.ExtractedRecipe{
		Title:        "Mystery Dish",
		Ingredients:  []string{"secret"},
		Instructions: []string{"cook"},
	}
	f.extractor.rankChoice = "https://img.example.com/a.jpg"

	recipe, err := f.cascade.ExtractOne(context.Background(), "job-1", "user-1", "https://example.com/mystery")
	require.NoError(t, err)
	assert.Equal(t, entity.MethodAIHTML, recipe.Method)
	// The ranked main image was passed to the AI call. Relative candidates
	// were resolved against the page URL before ranking.
	assert.Equal(t, "https://img.example.com/a.jpg", f.extractor.lastMainImage)
	assert.Contains(t, f.extractor.lastRankOptions, "https://example.com/b.jpg")
	assert.Zero(t, f.renderer.calls)
}

func TestExtractOneWebStorySkipsTextExtraction(t *testing.T) {
	f := newCascadeFixture(extractingJob("job-1", 10))
	f.fetcher.pages["https://example.com/web-stories/tacos"] = "<html><body><amp-story></amp-story></body></html>"
	f.renderer.results["https://example.com/web-stories/tacos"] = &repository.RenderResult{
		StructuredData: []string{`{"@type":"Recipe","name":"Tacos","recipeIngredient":["tortilla"],"recipeInstructions":["fill"]}`},
	}

	recipe, err := f.cascade.ExtractOne(context.Background(), "job-1", "user-1", "https://example.com/web-stories/tacos")
	require.NoError(t, err)
	assert.Equal(t, entity.MethodRenderedJSONLD, recipe.Method)
	// Text extraction over the raw HTML must have been skipped entirely.
	assert.Zero(t, f.extractor.htmlCalls)
	assert.Equal(t, 1, f.renderer.calls)
}

func TestExtractOneVisionNotARecipe(t *testing.T) {
	f := newCascadeFixture(extractingJob("job-1", 10))
	f.extractor.htmlErr = errors.New("model refused")
	f.extractor.visionErr = repository.ErrNotRecipePage
	f.renderer.results["https://example.com/about"] = &repository.RenderResult{
		HTML:        "<html><body>About us</body></html>",
		Screenshots: [][]byte{{0x89, 0x50}},
	}

	_, err := f.cascade.ExtractOne(context.Background(), "job-1", "user-1", "https://example.com/about")
	assert.ErrorIs(t, err, repository.ErrNotRecipePage)
	assert.Equal(t, 1, f.extractor.visionCalls)
	assert.Zero(t, f.enricher.count())
}

func TestExtractOneExhausted(t *testing.T) {
	f := newCascadeFixture(extractingJob("job-1", 10))
	f.extractor.htmlErr = errors.New("model refused")
	f.extractor.visionErr = errors.New("model refused again")
	f.renderer.results["https://example.com/empty"] = &repository.RenderResult{
		HTML:        "<html></html>",
		Screenshots: [][]byte{{0x89}},
	}

	_, err := f.cascade.ExtractOne(context.Background(), "job-1", "user-1", "https://example.com/empty")
	assert.ErrorIs(t, err, ErrExtractionExhausted)
}

func TestExtractOneDeduplicatesByTitle(t *testing.T) {
	f := newCascadeFixture(extractingJob("job-1", 10))
	f.fetcher.pages["https://example.com/pancakes"] = completeRecipeLD
	f.fetcher.pages["https://example.com/pancakes-print"] = completeRecipeLD

	first, err := f.cascade.ExtractOne(context.Background(), "job-1", "user-1", "https://example.com/pancakes")
	require.NoError(t, err)
	second, err := f.cascade.ExtractOne(context.Background(), "job-1", "user-1", "https://example.com/pancakes-print")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	// Only the genuinely new row was handed to enrichment.
	assert.Equal(t, 1, f.enricher.count())
}

func TestRunBatchCompletesJob(t *testing.T) {
	f := newCascadeFixture(extractingJob("job-1", 2))
	urls := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}
	require.NoError(t, f.pools.AppendFiltered(context.Background(), "job-1", urls))
	f.fetcher.pages["https://example.com/a"] = completeRecipeLD
	// b has nothing anywhere; it fails through the whole cascade.
	f.extractor.htmlErr = errors.New("nope")

	f.cascade.RunBatch(context.Background(), "job-1")

	job, err := f.jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, job.Status)
	// Limit 2: only a and b were attempted, c stays residual.
	assert.Equal(t, 2, job.ProcessedURLs)
	assert.Equal(t, 1, job.ExtractedCount)
	assert.Equal(t, []string{"https://example.com/a"}, job.ExtractedURLs)
}

func TestRunBatchResidualPoolForExtractMore(t *testing.T) {
	job := extractingJob("job-1", 5)
	job.ExtractedURLs = []string{"https://example.com/a"}
	f := newCascadeFixture(job)
	urls := []string{"https://example.com/a", "https://example.com/b"}
	require.NoError(t, f.pools.AppendFiltered(context.Background(), "job-1", urls))
	f.fetcher.pages["https://example.com/b"] = completeRecipeLD

	f.cascade.RunBatch(context.Background(), "job-1")

	got, err := f.jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	// Only b was attempted; a was already extracted in a previous round.
	assert.Equal(t, 1, got.ProcessedURLs)
	assert.ElementsMatch(t, urls, got.ExtractedURLs)
}

func TestRunBatchRequiresExtractingStatus(t *testing.T) {
	job := extractingJob("job-1", 5)
	job.Status = entity.StatusAwaitingConfirmation
	f := newCascadeFixture(job)

	f.cascade.RunBatch(context.Background(), "job-1")

	got, err := f.jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAwaitingConfirmation, got.Status)
	assert.Zero(t, got.ProcessedURLs)
}
