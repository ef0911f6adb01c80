package usecase

import (
	"context"
	"log/slog"
	"sort"

	"github.com/user/recipe-extraction-service/internal/entity"
	"github.com/user/recipe-extraction-service/internal/repository"
)

const (
	// A segment may overlap another by at most this fraction of its own
	// duration before it is dropped.
	segmentOverlapTolerance = 0.8
	// If more than this fraction of segments were discarded (and there were
	// more than segmentQualityMinCount to begin with), the whole mapping is
	// untrustworthy and an empty list is returned instead.
	segmentDiscardThreshold = 0.75
	segmentQualityMinCount  = 2
)

// VideoSegmentAnalyzer maps a recipe's instruction list onto a video's
// timeline and validates the model's mapping deterministically.
type VideoSegmentAnalyzer struct {
	mapper           repository.SegmentMapper
	minSegmentLength float64
}

// NewVideoSegmentAnalyzer creates a new VideoSegmentAnalyzer use case.
func NewVideoSegmentAnalyzer(mapper repository.SegmentMapper, minSegmentLength float64) *VideoSegmentAnalyzer {
	return &VideoSegmentAnalyzer{
		mapper:           mapper,
		minSegmentLength: minSegmentLength,
	}
}

// Analyze asks the model for instruction time ranges and runs the
// validation pipeline over the answer. The returned list is sorted by start
// time; it may cover only part of the instruction list, and it is empty
// when the mapping failed the quality gate.
func (a *VideoSegmentAnalyzer) Analyze(ctx context.Context, videoURL string, instructions []string, totalDuration float64) ([]entity.VideoSegment, error) {
	raw, err := a.mapper.MapInstructions(ctx, videoURL, instructions, totalDuration)
	if err != nil {
		return nil, err
	}

	valid := ValidateSegments(raw, len(instructions), totalDuration, a.minSegmentLength)
	slog.Info("Video segment analysis finished",
		"video", videoURL,
		"mapped", len(raw),
		"valid", len(valid),
	)
	return valid, nil
}

// ValidateSegments applies the deterministic, language-agnostic validation
// pipeline to a model-produced segment list:
//
//  1. sort by step number and drop segments that move backwards in time
//     relative to the previously accepted segment, keeping the first
//     chronologically consistent chain;
//  2. drop invalid timestamps: negative start, end past the video, empty
//     or sub-minimum ranges, and references to nonexistent step numbers;
//  3. drop duplicate step numbers, keeping the first occurrence;
//  4. drop any segment overlapping another by more than 80% of its own
//     duration;
//  5. if more than 75% of the original segments were discarded and there
//     were more than two, return nothing: a mostly-filtered mapping is not
//     trustworthy enough to show a user.
func ValidateSegments(segments []entity.VideoSegment, stepCount int, totalDuration, minLength float64) []entity.VideoSegment {
	if len(segments) == 0 {
		return nil
	}
	original := len(segments)

	ordered := make([]entity.VideoSegment, len(segments))
	copy(ordered, segments)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Step < ordered[j].Step })

	// 1. Chronological chain: each accepted segment must not start before
	// the previous accepted one. Partial forward overlap is allowed here;
	// the overlap rule below owns that case.
	var chain []entity.VideoSegment
	lastStart := -1.0
	for _, s := range ordered {
		if len(chain) > 0 && s.Start < lastStart {
			continue
		}
		chain = append(chain, s)
		lastStart = s.Start
	}

	// 2. Timestamp and step-reference validity.
	var valid []entity.VideoSegment
	for _, s := range chain {
		if s.Step < 1 || (stepCount > 0 && s.Step > stepCount) {
			continue
		}
		if s.Start < 0 || s.End > totalDuration || s.Start >= s.End {
			continue
		}
		if s.Duration() < minLength {
			continue
		}
		valid = append(valid, s)
	}

	// 3. Duplicate step numbers: keep the first occurrence.
	seen := make(map[int]struct{}, len(valid))
	var unique []entity.VideoSegment
	for _, s := range valid {
		if _, dup := seen[s.Step]; dup {
			continue
		}
		seen[s.Step] = struct{}{}
		unique = append(unique, s)
	}

	// 4. Overlap beyond tolerance, symmetric pairwise check. The shorter of
	// a heavily overlapping pair crosses the threshold first.
	var kept []entity.VideoSegment
	for i, s := range unique {
		drop := false
		for j, o := range unique {
			if i == j {
				continue
			}
			if s.Overlap(o) > segmentOverlapTolerance*s.Duration() {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, s)
		}
	}

	// 5. Quality gate.
	discarded := original - len(kept)
	if original > segmentQualityMinCount && float64(discarded) > segmentDiscardThreshold*float64(original) {
		return nil
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}
