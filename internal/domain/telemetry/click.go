package telemetry

import "time"

const (
	// RageClickThreshold is the cluster size that counts as a rage click.
	RageClickThreshold = 3
	// RageClickWindow is the maximum gap between clicks of one cluster.
	RageClickWindow = 1000 * time.Millisecond
	// RageClickRadius bounds the per-axis distance between clustered clicks.
	RageClickRadius = 20
)

// Point is a viewport coordinate in CSS pixels.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// ClickState tracks the current same-area click cluster for one page.
// The zero value is ready to use.
type ClickState struct {
	lastAt       time.Time
	lastPosition *Point
	streak       int
	total        int
}

// Observe records a click and returns the size of the cluster it belongs
// to and whether that size reaches the rage threshold. A click joins the
// previous cluster when both axis deltas are under RageClickRadius and it
// arrived within RageClickWindow; otherwise it starts a new cluster of 1.
func (s *ClickState) Observe(position Point, at time.Time) (streak int, rage bool) {
	if s.lastPosition != nil &&
		abs(position.X-s.lastPosition.X) < RageClickRadius &&
		abs(position.Y-s.lastPosition.Y) < RageClickRadius &&
		at.Sub(s.lastAt) < RageClickWindow {
		s.streak++
	} else {
		s.streak = 1
	}

	s.lastAt = at
	s.lastPosition = &position
	s.total++

	return s.streak, s.streak >= RageClickThreshold
}

// Total returns the number of clicks observed on the page.
func (s *ClickState) Total() int { return s.total }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
