package repository

import "context"

// EnrichmentScheduler defines the hand-off to the downstream
// enrichment/embedding collaborator. Each saved recipe is scheduled
// independently, fire-and-forget, so extraction throughput is decoupled
// from enrichment latency.
type EnrichmentScheduler interface {
	ScheduleEnrichment(ctx context.Context, recipeID int64) error
}
