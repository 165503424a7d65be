package collector

import (
	"fmt"
	"sync/atomic"

	"github.com/AtRiskMedia/tractstack-beacon/internal/domain/telemetry"
)

// Size is a width and height in CSS pixels.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// String renders the size as WxH.
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Host exposes the page facts the collector reads. It stands in for the
// document and window of a browser.
type Host interface {
	// Location returns the current page path.
	Location() string
	Title() string
	Referrer() string
	UserAgent() string
	Screen() Size
	Viewport() Size
	ScrollMetrics() telemetry.ScrollMetrics
}

// ClickInteraction is one observed click.
type ClickInteraction struct {
	Position telemetry.Point
	Target   telemetry.Element
}

// StaticHost is a Host whose facts are fixed except for the scroll
// position, which callers may move with SetScroll.
type StaticHost struct {
	Path       string
	PageTitle  string
	Referer    string
	Agent      string
	ScreenSize Size
	View       Size
	Document   int

	scrollTop atomic.Int64
}

func (h *StaticHost) Location() string  { return h.Path }
func (h *StaticHost) Title() string     { return h.PageTitle }
func (h *StaticHost) Referrer() string  { return h.Referer }
func (h *StaticHost) UserAgent() string { return h.Agent }
func (h *StaticHost) Screen() Size      { return h.ScreenSize }
func (h *StaticHost) Viewport() Size    { return h.View }

// SetScroll moves the vertical scroll offset.
func (h *StaticHost) SetScroll(top int) { h.scrollTop.Store(int64(top)) }

func (h *StaticHost) ScrollMetrics() telemetry.ScrollMetrics {
	return telemetry.ScrollMetrics{
		ScrollTop:      float64(h.scrollTop.Load()),
		DocumentHeight: float64(h.Document),
		ViewportHeight: float64(h.View.Height),
	}
}
