package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/recipe-extraction-service/internal/entity"
)

func seg(step int, start, end float64) entity.VideoSegment {
	return entity.VideoSegment{Step: step, Start: start, End: end}
}

func TestValidateSegmentsHappyPath(t *testing.T) {
	in := []entity.VideoSegment{
		seg(2, 10, 20),
		seg(1, 0, 8),
		seg(3, 22, 30),
	}
	out := ValidateSegments(in, 3, 30, 1.0)
	require.Len(t, out, 3)
	// Output is sorted by start time.
	assert.Equal(t, []entity.VideoSegment{seg(1, 0, 8), seg(2, 10, 20), seg(3, 22, 30)}, out)
}

func TestValidateSegmentsDropsBackwardsJumps(t *testing.T) {
	// Step order and timeline order disagree: step 3 jumps back to the
	// start of the video. The first chronologically consistent chain wins.
	in := []entity.VideoSegment{
		seg(1, 5, 10),
		seg(2, 12, 18),
		seg(3, 0, 4),
		seg(4, 20, 25),
	}
	out := ValidateSegments(in, 4, 30, 1.0)
	require.Len(t, out, 3)
	for _, s := range out {
		assert.NotEqual(t, 3, s.Step)
	}
}

func TestValidateSegmentsDropsInvalidTimestamps(t *testing.T) {
	cases := []struct {
		name string
		in   entity.VideoSegment
	}{
		{"negative start", seg(1, -1, 5)},
		{"end past duration", seg(1, 5, 31)},
		{"empty range", seg(1, 5, 5)},
		{"inverted range", seg(1, 8, 5)},
		{"below min length", seg(1, 5, 5.5)},
		{"step zero", seg(0, 5, 10)},
		{"step out of range", seg(9, 5, 10)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Empty(t, ValidateSegments([]entity.VideoSegment{tc.in}, 3, 30, 1.0))
		})
	}
}

func TestValidateSegmentsDuplicateStepsKeepFirst(t *testing.T) {
	in := []entity.VideoSegment{
		seg(1, 0, 5),
		seg(1, 6, 11),
		seg(2, 12, 17),
	}
	out := ValidateSegments(in, 2, 30, 1.0)
	require.Len(t, out, 2)
	assert.Equal(t, seg(1, 0, 5), out[0])
	assert.Equal(t, seg(2, 12, 17), out[1])
}

func TestValidateSegmentsOverlapDropsShorter(t *testing.T) {
	// The short segment sits 90% inside the long one; only the short one
	// crosses the 80%-of-own-duration threshold.
	long := seg(1, 0, 20)
	short := seg(2, 1, 11) // 10s, 10s of overlap with long
	out := ValidateSegments([]entity.VideoSegment{long, short}, 2, 30, 1.0)
	require.Len(t, out, 1)
	assert.Equal(t, long, out[0])
}

func TestValidateSegmentsPartialOverlapSurvives(t *testing.T) {
	// 2s overlap on 10s segments is well under tolerance.
	a := seg(1, 0, 10)
	b := seg(2, 8, 18)
	out := ValidateSegments([]entity.VideoSegment{a, b}, 2, 30, 1.0)
	assert.Len(t, out, 2)
}

func TestValidateSegmentsQualityGate(t *testing.T) {
	t.Run("mostly invalid input returns nothing", func(t *testing.T) {
		in := []entity.VideoSegment{
			seg(1, 0, 5),
			seg(2, -1, 3),
			seg(3, 50, 60), // past duration
			seg(4, 8, 8),
			seg(5, 9, 9.2),
		}
		// 4 of 5 discarded (80% > 75%): the one survivor is not trustworthy.
		assert.Empty(t, ValidateSegments(in, 5, 30, 1.0))
	})

	t.Run("tiny lists bypass the gate", func(t *testing.T) {
		in := []entity.VideoSegment{
			seg(1, 0, 5),
			seg(2, -1, 3),
		}
		// 50% discarded but only 2 segments: keep the good one.
		out := ValidateSegments(in, 2, 30, 1.0)
		require.Len(t, out, 1)
		assert.Equal(t, seg(1, 0, 5), out[0])
	})
}

func TestValidateSegmentsEmptyInput(t *testing.T) {
	assert.Empty(t, ValidateSegments(nil, 3, 30, 1.0))
}

func TestVideoSegmentAnalyzerAnalyze(t *testing.T) {
	instructions := []string{"chop", "fry", "serve"}

	t.Run("validated output", func(t *testing.T) {
		mapper := &fakeSegmentMapper{segments: []entity.VideoSegment{
			seg(1, 0, 5),
			seg(2, 6, 12),
			seg(3, 100, 110), // invalid: past duration
		}}
		a := NewVideoSegmentAnalyzer(mapper, 1.0)
		out, err := a.Analyze(context.Background(), "https://example.com/video.mp4", instructions, 60)
		require.NoError(t, err)
		assert.Len(t, out, 2)
	})

	t.Run("mapper error propagates", func(t *testing.T) {
		mapper := &fakeSegmentMapper{err: errors.New("model overloaded")}
		a := NewVideoSegmentAnalyzer(mapper, 1.0)
		_, err := a.Analyze(context.Background(), "https://example.com/video.mp4", instructions, 60)
		assert.Error(t, err)
	})
}
