package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/recipe-extraction-service/internal/entity"
	"github.com/user/recipe-extraction-service/internal/repository"
	"github.com/user/recipe-extraction-service/pkg/task"
)

func TestTotalChunks(t *testing.T) {
	assert.Equal(t, 0, TotalChunks(0, 25))
	assert.Equal(t, 1, TotalChunks(1, 25))
	assert.Equal(t, 1, TotalChunks(25, 25))
	assert.Equal(t, 2, TotalChunks(26, 25))
	assert.Equal(t, 4, TotalChunks(100, 25))
	assert.Equal(t, 5, TotalChunks(101, 25))
}

func TestChunkRangePartitions(t *testing.T) {
	// The union of every chunk's range must cover [0, n) exactly once.
	for _, n := range []int{1, 24, 25, 26, 99, 250, 251} {
		covered := make([]bool, n)
		for chunk := 0; chunk < TotalChunks(n, 25); chunk++ {
			start, end := ChunkRange(chunk, 25, n)
			require.LessOrEqual(t, start, end)
			for i := start; i < end; i++ {
				require.False(t, covered[i], "index %d covered twice for n=%d", i, n)
				covered[i] = true
			}
		}
		for i, ok := range covered {
			require.True(t, ok, "index %d never covered for n=%d", i, n)
		}
	}
}

func seedURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/recipes/%03d", i)
	}
	return urls
}

func filteringJob(id string, totalChunks int) *entity.ExtractionJob {
	return &entity.ExtractionJob{
		ID:          id,
		UserID:      "user-1",
		SourceURL:   "https://example.com",
		Kind:        entity.KindProfile,
		Status:      entity.StatusFiltering,
		TotalChunks: totalChunks,
	}
}

func newTestClassifier(c repository.URLClassifier, pools repository.URLPoolRepository, jobs repository.JobRepository) *ChunkClassifier {
	cc := NewChunkClassifier(c, pools, jobs, task.Sync{}, 25, 10, 3, time.Millisecond)
	cc.sleep = func(time.Duration) {} // no real backoff in tests
	return cc
}

func TestChunkClassifierHappyPath(t *testing.T) {
	urls := seedURLs(60) // 3 chunks of 25
	verdicts := make(map[string]bool)
	for i, u := range urls {
		verdicts[u] = i%2 == 0 // every other URL is a recipe
	}

	jobs := newFakeJobRepo(filteringJob("job-1", 3))
	pools := newFakeURLPool()
	require.NoError(t, pools.AppendRaw(context.Background(), "job-1", urls))

	cc := newTestClassifier(&fakeClassifier{verdicts: verdicts}, pools, jobs)
	cc.Start("job-1", len(urls))

	job, err := jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAwaitingConfirmation, job.Status)
	assert.Equal(t, 3, job.CompletedChunks)
	assert.Empty(t, job.FailedChunks)
	// Total is recomputed from the filtered pool, not the candidate count.
	assert.Equal(t, 30, job.TotalURLs)

	filtered, err := pools.FilteredLen(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 30, filtered)
}

func TestChunkClassifierTransientFailureRetries(t *testing.T) {
	urls := seedURLs(25)
	verdicts := map[string]bool{urls[0]: true}

	// First two calls touching the chunk fail; the third succeeds within
	// the attempt budget.
	fc := &fakeClassifier{verdicts: verdicts, failFor: map[string]int{urls[0]: 2}}
	jobs := newFakeJobRepo(filteringJob("job-1", 1))
	pools := newFakeURLPool()
	require.NoError(t, pools.AppendRaw(context.Background(), "job-1", urls))

	cc := newTestClassifier(fc, pools, jobs)
	cc.Start("job-1", len(urls))

	job, err := jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAwaitingConfirmation, job.Status)
	assert.Empty(t, job.FailedChunks)
}

func TestChunkClassifierMajorityFailureFailsJob(t *testing.T) {
	urls := seedURLs(100) // 4 chunks
	fc := &fakeClassifier{verdicts: map[string]bool{}, failFor: map[string]int{
		// Three of four chunks exhaust all attempts.
		urls[0]:  999,
		urls[25]: 999,
		urls[50]: 999,
	}}
	jobs := newFakeJobRepo(filteringJob("job-1", 4))
	pools := newFakeURLPool()
	require.NoError(t, pools.AppendRaw(context.Background(), "job-1", urls))

	cc := newTestClassifier(fc, pools, jobs)
	cc.Start("job-1", len(urls))

	job, err := jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, job.Status)
	assert.NotEmpty(t, job.ErrorMessage)
	// The job must never have reached awaiting_confirmation.
	assert.Len(t, job.FailedChunks, 3)
}

func TestChunkClassifierMinorityFailureStillCompletes(t *testing.T) {
	urls := seedURLs(100) // 4 chunks, 1 failed is under the 50% threshold
	verdicts := make(map[string]bool)
	for _, u := range urls {
		verdicts[u] = true
	}
	fc := &fakeClassifier{verdicts: verdicts, failFor: map[string]int{urls[75]: 999}}
	jobs := newFakeJobRepo(filteringJob("job-1", 4))
	pools := newFakeURLPool()
	require.NoError(t, pools.AppendRaw(context.Background(), "job-1", urls))

	cc := newTestClassifier(fc, pools, jobs)
	cc.Start("job-1", len(urls))

	job, err := jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAwaitingConfirmation, job.Status)
	assert.Equal(t, 3, job.CompletedChunks)
	require.Len(t, job.FailedChunks, 1)
	assert.Equal(t, 3, job.FailedChunks[0].Chunk)
	assert.Equal(t, 75, job.FailedChunks[0].StartIndex)
	assert.Equal(t, 100, job.FailedChunks[0].EndIndex)
	// 75 URLs from the three successful chunks made it through.
	assert.Equal(t, 75, job.TotalURLs)
}

func TestChunkClassifierOutcomeOrderIndependence(t *testing.T) {
	// Whatever order chunk outcomes arrive in, the job must reach
	// awaiting_confirmation exactly once. The synchronous runner executes
	// submissions inline, so permuting chunk submission order permutes
	// outcome arrival order.
	urls := seedURLs(75) // 3 chunks
	verdicts := make(map[string]bool)
	for _, u := range urls {
		verdicts[u] = true
	}

	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}}
	for _, order := range orders {
		jobs := newFakeJobRepo(filteringJob("job-1", 3))
		pools := newFakeURLPool()
		require.NoError(t, pools.AppendRaw(context.Background(), "job-1", urls))

		cc := newTestClassifier(&fakeClassifier{verdicts: verdicts}, pools, jobs)
		for _, chunk := range order {
			start, end := ChunkRange(chunk, 25, len(urls))
			cc.runChunk(context.Background(), "job-1", chunk, start, end)
		}

		job, err := jobs.FindByID(context.Background(), "job-1")
		require.NoError(t, err)
		assert.Equal(t, entity.StatusAwaitingConfirmation, job.Status, "order %v", order)
		assert.Equal(t, 75, job.TotalURLs, "order %v", order)
	}
}

func TestRetryChunksReadsRawPool(t *testing.T) {
	// A failed chunk's URLs never reached the filtered pool, so the retry
	// must re-read the preserved raw pool by index range.
	urls := seedURLs(50) // 2 chunks
	verdicts := make(map[string]bool)
	for _, u := range urls {
		verdicts[u] = true
	}

	job := filteringJob("job-1", 2)
	job.Status = entity.StatusAwaitingConfirmation
	job.CompletedChunks = 1
	job.FailedChunks = []entity.FailedChunk{{Chunk: 1, StartIndex: 25, EndIndex: 50, Error: "model overloaded"}}
	jobs := newFakeJobRepo(job)

	pools := newFakeURLPool()
	require.NoError(t, pools.AppendRaw(context.Background(), "job-1", urls))
	require.NoError(t, pools.AppendFiltered(context.Background(), "job-1", urls[:25]))

	cc := newTestClassifier(&fakeClassifier{verdicts: verdicts}, pools, jobs)
	chunk := 1
	require.NoError(t, cc.RetryChunks(context.Background(), "job-1", &chunk))

	got, err := jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAwaitingConfirmation, got.Status)
	assert.Empty(t, got.FailedChunks)
	assert.Equal(t, 1, got.RetryCount)

	filtered, err := pools.FilteredLen(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 50, filtered)
}

func TestRetryChunksUnknownChunk(t *testing.T) {
	job := filteringJob("job-1", 2)
	job.FailedChunks = []entity.FailedChunk{{Chunk: 0, StartIndex: 0, EndIndex: 25}}
	jobs := newFakeJobRepo(job)
	cc := newTestClassifier(&fakeClassifier{}, newFakeURLPool(), jobs)

	chunk := 7
	err := cc.RetryChunks(context.Background(), "job-1", &chunk)
	assert.ErrorIs(t, err, ErrChunkNotFailed)
}

func TestRetryChunksStatusGuard(t *testing.T) {
	job := filteringJob("job-1", 1)
	job.Status = entity.StatusExtractingData
	jobs := newFakeJobRepo(job)
	cc := newTestClassifier(&fakeClassifier{}, newFakeURLPool(), jobs)

	err := cc.RetryChunks(context.Background(), "job-1", nil)
	assert.ErrorIs(t, err, ErrRetryNotAllowed)
}

func TestRetryChunksLimit(t *testing.T) {
	job := filteringJob("job-1", 1)
	job.RetryCount = entity.MaxJobRetries
	job.FailedChunks = []entity.FailedChunk{{Chunk: 0, StartIndex: 0, EndIndex: 25, Error: "x"}}
	jobs := newFakeJobRepo(job)
	cc := newTestClassifier(&fakeClassifier{}, newFakeURLPool(), jobs)

	err := cc.RetryChunks(context.Background(), "job-1", nil)
	assert.ErrorIs(t, err, ErrRetryLimitExceeded)
	assert.Equal(t, entity.StatusFailed, jobs.status("job-1"))
}

func TestRetryChunksNothingToDo(t *testing.T) {
	jobs := newFakeJobRepo(filteringJob("job-1", 1))
	cc := newTestClassifier(&fakeClassifier{}, newFakeURLPool(), jobs)

	require.NoError(t, cc.RetryChunks(context.Background(), "job-1", nil))
	job, err := jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	// No failed chunks means no retry was consumed.
	assert.Zero(t, job.RetryCount)
}
