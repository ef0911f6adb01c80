package entity

// VideoSegment maps one instruction step to a [Start,End) time range on a
// single video's timeline, in seconds.
type VideoSegment struct {
	Step        int     `json:"step"`
	Instruction string  `json:"instruction"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
}

// Duration returns the segment length in seconds.
func (s VideoSegment) Duration() float64 {
	return s.End - s.Start
}

// Overlap returns how many seconds of this segment fall inside another.
func (s VideoSegment) Overlap(other VideoSegment) float64 {
	start := s.Start
	if other.Start > start {
		start = other.Start
	}
	end := s.End
	if other.End < end {
		end = other.End
	}
	if end <= start {
		return 0
	}
	return end - start
}
