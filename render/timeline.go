package render

import (
	"errors"
	"fmt"
	"math"
)

// Segment is one still image shown for Duration seconds starting at Start.
type Segment struct {
	Index    int
	Image    string
	Start    float64
	Duration float64
}

// Timeline is the visual track of a slideshow. The segment durations sum to Target.
type Timeline struct {
	Target   float64
	Segments []Segment
}

// Plan lays out a slideshow for narration lasting audioSec seconds.
// The video lasts max(audioSec, minSec); it is cut into segmentSec slots from
// 0 and slot k shows images[k mod len(images)]. The last slot is shortened so
// the timeline ends exactly at the target.
func Plan(audioSec float64, images []string, segmentSec, minSec float64) (Timeline, error) {
	if len(images) == 0 {
		return Timeline{}, errors.New("no images to render")
	}
	if audioSec <= 0 || math.IsNaN(audioSec) || math.IsInf(audioSec, 0) {
		return Timeline{}, fmt.Errorf("invalid narration duration %v", audioSec)
	}
	if segmentSec <= 0 {
		return Timeline{}, fmt.Errorf("invalid segment length %v", segmentSec)
	}

	target := math.Max(audioSec, minSec)
	count := SegmentCount(target, segmentSec)

	segments := make([]Segment, 0, count)
	for k := 0; k < count; k++ {
		start := float64(k) * segmentSec
		dur := segmentSec
		if k == count-1 {
			dur = target - start
		}
		segments = append(segments, Segment{
			Index:    k,
			Image:    images[k%len(images)],
			Start:    start,
			Duration: dur,
		})
	}
	return Timeline{Target: target, Segments: segments}, nil
}

// SegmentCount is ceil(target/segmentSec), tolerant of float noise so that
// 15/3 does not become 6 slots.
func SegmentCount(target, segmentSec float64) int {
	n := target / segmentSec
	rounded := math.Round(n)
	if math.Abs(n-rounded) < 1e-9 {
		return int(rounded)
	}
	return int(math.Ceil(n))
}
