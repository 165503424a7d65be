package telemetry

import (
	"math"
	"time"
)

// ScrollMetrics is a snapshot of the page geometry used for scroll depth.
type ScrollMetrics struct {
	ScrollTop      float64 `json:"scrollTop" yaml:"scrollTop"`
	DocumentHeight float64 `json:"documentHeight" yaml:"documentHeight"`
	ViewportHeight float64 `json:"viewportHeight" yaml:"viewportHeight"`
}

// Depth returns the percentage of the scrollable height reached, clamped to
// 0..100. A page with nothing to scroll reports 0.
func (m ScrollMetrics) Depth() int {
	track := m.DocumentHeight - m.ViewportHeight
	if track <= 0 {
		return 0
	}
	percentage := math.Floor(m.ScrollTop / track * 100)
	return int(math.Min(100, math.Max(0, percentage)))
}

// ScrollMilestone is one entry of the page's watermark log.
type ScrollMilestone struct {
	Depth     int    `json:"depth"`
	Timestamp string `json:"timestamp"`
}

// ScrollState holds the strictly increasing scroll watermark for a page.
type ScrollState struct {
	max        int
	milestones []ScrollMilestone
}

// Record reports whether depth raises the watermark. Only raising depths
// are logged as milestones.
func (s *ScrollState) Record(depth int, at time.Time) bool {
	if depth <= s.max {
		return false
	}
	s.max = depth
	s.milestones = append(s.milestones, ScrollMilestone{
		Depth:     depth,
		Timestamp: FormatTimestamp(at),
	})
	return true
}

// Max returns the deepest recorded depth.
func (s *ScrollState) Max() int { return s.max }

// Milestones returns a copy of the watermark log.
func (s *ScrollState) Milestones() []ScrollMilestone {
	out := make([]ScrollMilestone, len(s.milestones))
	copy(out, s.milestones)
	return out
}
