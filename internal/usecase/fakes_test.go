package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/user/recipe-extraction-service/internal/entity"
	"github.com/user/recipe-extraction-service/internal/repository"
)

// fakeJobRepo is an in-memory JobRepository with the same atomicity
// guarantees as the SQL implementation: guarded status swaps, additive
// counter patches, terminal-state protection.
type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*entity.ExtractionJob
}

func newFakeJobRepo(jobs ...*entity.ExtractionJob) *fakeJobRepo {
	r := &fakeJobRepo{jobs: make(map[string]*entity.ExtractionJob)}
	for _, j := range jobs {
		copied := *j
		r.jobs[j.ID] = &copied
	}
	return r
}

func (r *fakeJobRepo) get(id string) (*entity.ExtractionJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	return job, nil
}

func (r *fakeJobRepo) Create(_ context.Context, job *entity.ExtractionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs[job.ID] = &copied
	return nil
}

func (r *fakeJobRepo) FindByID(_ context.Context, id string) (*entity.ExtractionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.get(id)
	if err != nil {
		return nil, err
	}
	copied := *job
	copied.FailedChunks = append([]entity.FailedChunk(nil), job.FailedChunks...)
	copied.ExtractedURLs = append([]string(nil), job.ExtractedURLs...)
	return &copied, nil
}

func (r *fakeJobRepo) BeginFiltering(_ context.Context, id string, totalURLs, totalChunks int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.get(id)
	if err != nil {
		return false, err
	}
	if job.Status != entity.StatusDiscoveringURLs {
		return false, nil
	}
	job.Status = entity.StatusFiltering
	job.TotalURLs = totalURLs
	job.TotalChunks = totalChunks
	return true, nil
}

func (r *fakeJobRepo) RecordChunkOutcome(_ context.Context, id string, outcome repository.ChunkOutcome) (entity.ChunkProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.get(id)
	if err != nil {
		return entity.ChunkProgress{}, err
	}
	if outcome.Failure == nil {
		job.CompletedChunks++
	} else {
		job.FailedChunks = append(job.FailedChunks, entity.FailedChunk{
			Chunk:      outcome.Chunk,
			StartIndex: outcome.StartIndex,
			EndIndex:   outcome.EndIndex,
			Error:      outcome.Failure.Error(),
			FailedAt:   time.Now(),
		})
	}
	return entity.ChunkProgress{
		Status:          job.Status,
		TotalChunks:     job.TotalChunks,
		CompletedChunks: job.CompletedChunks,
		FailedChunks:    len(job.FailedChunks),
	}, nil
}

func (r *fakeJobRepo) ClearFailedChunks(_ context.Context, id string, chunks []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.get(id)
	if err != nil {
		return err
	}
	if chunks == nil {
		job.FailedChunks = nil
		return nil
	}
	drop := make(map[int]bool, len(chunks))
	for _, c := range chunks {
		drop[c] = true
	}
	kept := job.FailedChunks[:0]
	for _, fc := range job.FailedChunks {
		if !drop[fc.Chunk] {
			kept = append(kept, fc)
		}
	}
	job.FailedChunks = kept
	return nil
}

func (r *fakeJobRepo) Transition(_ context.Context, id string, from, to entity.JobStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.get(id)
	if err != nil {
		return false, err
	}
	if !entity.CanTransition(from, to) {
		return false, fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	if job.Status != from {
		return false, nil
	}
	job.Status = to
	return true, nil
}

func (r *fakeJobRepo) Fail(_ context.Context, id, message string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.get(id)
	if err != nil {
		return false, err
	}
	if job.Status.Terminal() || job.Status == entity.StatusCompleted {
		return false, nil
	}
	job.Status = entity.StatusFailed
	job.ErrorMessage = message
	return true, nil
}

func (r *fakeJobRepo) Cancel(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.get(id)
	if err != nil {
		return false, err
	}
	if job.Status.Terminal() || job.Status == entity.StatusCompleted {
		return false, nil
	}
	job.Status = entity.StatusCancelled
	return true, nil
}

func (r *fakeJobRepo) SetTotalURLs(_ context.Context, id string, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.get(id)
	if err != nil {
		return err
	}
	job.TotalURLs = total
	return nil
}

func (r *fakeJobRepo) BeginExtraction(_ context.Context, id string, from entity.JobStatus, limit int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.get(id)
	if err != nil {
		return false, err
	}
	if !entity.CanTransition(from, entity.StatusExtractingData) {
		return false, nil
	}
	if job.Status != from {
		return false, nil
	}
	job.Status = entity.StatusExtractingData
	job.ExtractionLimit = limit
	return true, nil
}

func (r *fakeJobRepo) IncrementRetry(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.get(id)
	if err != nil {
		return 0, err
	}
	job.RetryCount++
	return job.RetryCount, nil
}

func (r *fakeJobRepo) RecordBatchProgress(_ context.Context, id string, processed, extracted int, extractedURLs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.get(id)
	if err != nil {
		return err
	}
	job.ProcessedURLs += processed
	job.ExtractedCount += extracted
	job.ExtractedURLs = append(job.ExtractedURLs, extractedURLs...)
	return nil
}

func (r *fakeJobRepo) DeleteByUser(_ context.Context, userID, communityID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted []string
	for id, job := range r.jobs {
		if job.UserID == userID && job.CommunityID == communityID {
			deleted = append(deleted, id)
			delete(r.jobs, id)
		}
	}
	return deleted, nil
}

func (r *fakeJobRepo) status(id string) entity.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id].Status
}

// fakeURLPool is an in-memory URLPoolRepository.
type fakeURLPool struct {
	mu       sync.Mutex
	raw      map[string][]string
	filtered map[string][]string
}

func newFakeURLPool() *fakeURLPool {
	return &fakeURLPool{
		raw:      make(map[string][]string),
		filtered: make(map[string][]string),
	}
}

func (p *fakeURLPool) AppendRaw(_ context.Context, jobID string, urls []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raw[jobID] = append(p.raw[jobID], urls...)
	return nil
}

func (p *fakeURLPool) RawRange(_ context.Context, jobID string, start, end int) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sliceRange(p.raw[jobID], start, end), nil
}

func (p *fakeURLPool) AppendFiltered(_ context.Context, jobID string, urls []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filtered[jobID] = append(p.filtered[jobID], urls...)
	return nil
}

func (p *fakeURLPool) FilteredLen(_ context.Context, jobID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.filtered[jobID]), nil
}

func (p *fakeURLPool) FilteredRange(_ context.Context, jobID string, start, end int) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sliceRange(p.filtered[jobID], start, end), nil
}

func (p *fakeURLPool) DeletePools(_ context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.raw, jobID)
	delete(p.filtered, jobID)
	return nil
}

func sliceRange(s []string, start, end int) []string {
	if start >= len(s) {
		return nil
	}
	if end > len(s) {
		end = len(s)
	}
	return append([]string(nil), s[start:end]...)
}

// fakeRecipeRepo is an in-memory RecipeRepository with (job id, title)
// deduplication.
type fakeRecipeRepo struct {
	mu      sync.Mutex
	nextID  int64
	recipes []*entity.ExtractedRecipe
}

func newFakeRecipeRepo() *fakeRecipeRepo {
	return &fakeRecipeRepo{}
}

func (r *fakeRecipeRepo) Save(_ context.Context, recipe *entity.ExtractedRecipe) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.recipes {
		if existing.JobID == recipe.JobID && existing.Title == recipe.Title {
			return existing.ID, false, nil
		}
	}
	r.nextID++
	copied := *recipe
	copied.ID = r.nextID
	r.recipes = append(r.recipes, &copied)
	return copied.ID, true, nil
}

func (r *fakeRecipeRepo) ListByJob(_ context.Context, jobID string) ([]*entity.ExtractedRecipe, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ExtractedRecipe
	for _, recipe := range r.recipes {
		if recipe.JobID == jobID {
			copied := *recipe
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeRecipeRepo) DeleteByUser(_ context.Context, userID, _ string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.recipes[:0]
	var deleted int64
	for _, recipe := range r.recipes {
		if recipe.UserID == userID {
			deleted++
			continue
		}
		kept = append(kept, recipe)
	}
	r.recipes = kept
	return deleted, nil
}

// fakeClassifier answers from a verdict table; URLs absent from the table
// are classified false. Calls can be failed selectively by URL membership.
type fakeClassifier struct {
	mu       sync.Mutex
	verdicts map[string]bool
	failFor  map[string]int // remaining failures keyed by a member URL
	calls    int
}

func (c *fakeClassifier) ClassifyURLs(_ context.Context, urls []string) (map[string]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	for _, u := range urls {
		if c.failFor[u] > 0 {
			c.failFor[u]--
			return nil, fmt.Errorf("model overloaded")
		}
	}
	out := make(map[string]bool, len(urls))
	for _, u := range urls {
		out[u] = c.verdicts[u]
	}
	return out, nil
}

// fakeSegmentMapper returns a canned segment list.
type fakeSegmentMapper struct {
	segments []entity.VideoSegment
	err      error
}

func (m *fakeSegmentMapper) MapInstructions(context.Context, string, []string, float64) ([]entity.VideoSegment, error) {
	return m.segments, m.err
}
