package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	rawPoolKeyFmt      = "job:%s:raw"
	filteredPoolKeyFmt = "job:%s:filtered"

	// Pools are pushed in bounded slices to respect payload limits.
	pushBatchSize = 500
)

// URLPoolRepoImpl provides a concrete implementation for the
// URLPoolRepository interface using Redis lists, one raw and one filtered
// list per job.
type URLPoolRepoImpl struct {
	client *redis.Client
}

// NewURLPoolRepo creates a new instance of URLPoolRepoImpl.
func NewURLPoolRepo(client *redis.Client) *URLPoolRepoImpl {
	return &URLPoolRepoImpl{client: client}
}

func rawPoolKey(jobID string) string      { return fmt.Sprintf(rawPoolKeyFmt, jobID) }
func filteredPoolKey(jobID string) string { return fmt.Sprintf(filteredPoolKeyFmt, jobID) }

// AppendRaw appends candidate URLs to the job's raw pool in bounded batches.
func (r *URLPoolRepoImpl) AppendRaw(ctx context.Context, jobID string, urls []string) error {
	return r.appendBatched(ctx, rawPoolKey(jobID), urls)
}

// RawRange returns raw pool entries in [start, end).
func (r *URLPoolRepoImpl) RawRange(ctx context.Context, jobID string, start, end int) ([]string, error) {
	return r.client.LRange(ctx, rawPoolKey(jobID), int64(start), int64(end-1)).Result()
}

// AppendFiltered appends AI-confirmed URLs to the job's filtered pool.
func (r *URLPoolRepoImpl) AppendFiltered(ctx context.Context, jobID string, urls []string) error {
	return r.appendBatched(ctx, filteredPoolKey(jobID), urls)
}

// FilteredLen returns the current filtered pool size.
func (r *URLPoolRepoImpl) FilteredLen(ctx context.Context, jobID string) (int, error) {
	n, err := r.client.LLen(ctx, filteredPoolKey(jobID)).Result()
	return int(n), err
}

// FilteredRange returns filtered pool entries in [start, end).
func (r *URLPoolRepoImpl) FilteredRange(ctx context.Context, jobID string, start, end int) ([]string, error) {
	return r.client.LRange(ctx, filteredPoolKey(jobID), int64(start), int64(end-1)).Result()
}

// DeletePools removes both pools for a job.
func (r *URLPoolRepoImpl) DeletePools(ctx context.Context, jobID string) error {
	return r.client.Del(ctx, rawPoolKey(jobID), filteredPoolKey(jobID)).Err()
}

func (r *URLPoolRepoImpl) appendBatched(ctx context.Context, key string, urls []string) error {
	for start := 0; start < len(urls); start += pushBatchSize {
		end := start + pushBatchSize
		if end > len(urls) {
			end = len(urls)
		}
		batch := make([]interface{}, 0, end-start)
		for _, u := range urls[start:end] {
			batch = append(batch, u)
		}
		if err := r.client.RPush(ctx, key, batch...).Err(); err != nil {
			return fmt.Errorf("failed to push URL batch to %s: %w", key, err)
		}
	}
	return nil
}
