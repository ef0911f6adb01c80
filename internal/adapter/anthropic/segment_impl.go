package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/recipe-extraction-service/internal/entity"
)

const segmentSystemPrompt = `You map recipe instruction steps onto a cooking video's timeline. Report segments in VIDEO-TIMELINE order, which may differ from instruction order (short-form videos often preview the finished dish first). Not every instruction has to appear. Respond with ONLY a JSON array:
[{"step": 1, "start": 0.0, "end": 4.5}]
where step is the 1-based instruction number and start/end are seconds. No markdown, no explanation.`

// SegmentMapperImpl implements the SegmentMapper interface.
type SegmentMapperImpl struct {
	client *Client
}

// NewSegmentMapper creates a new SegmentMapperImpl.
func NewSegmentMapper(client *Client) *SegmentMapperImpl {
	return &SegmentMapperImpl{client: client}
}

// MapInstructions asks the model for a [start,end) range per instruction.
// The result is raw model output; the analyzer validates it downstream.
func (m *SegmentMapperImpl) MapInstructions(ctx context.Context, videoURL string, instructions []string, totalDuration float64) ([]entity.VideoSegment, error) {
	if len(instructions) == 0 {
		return nil, nil
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Video: %s\nTotal duration: %.1f seconds\nInstructions:\n", videoURL, totalDuration)
	for i, ins := range instructions {
		fmt.Fprintf(&prompt, "%d. %s\n", i+1, ins)
	}

	raw, err := m.client.complete(ctx, segmentSystemPrompt, prompt.String())
	if err != nil {
		return nil, err
	}

	var payload []struct {
		Step  int     `json:"step"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	}
	if err := json.Unmarshal([]byte(cleanJSONBlock(raw)), &payload); err != nil {
		if err := json.Unmarshal([]byte(repairJSON(raw)), &payload); err != nil {
			return nil, fmt.Errorf("segment response is not valid JSON after repair: %w", err)
		}
	}

	segments := make([]entity.VideoSegment, 0, len(payload))
	for _, p := range payload {
		seg := entity.VideoSegment{Step: p.Step, Start: p.Start, End: p.End}
		if p.Step >= 1 && p.Step <= len(instructions) {
			seg.Instruction = instructions[p.Step-1]
		}
		segments = append(segments, seg)
	}
	return segments, nil
}
