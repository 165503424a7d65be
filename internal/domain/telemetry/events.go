// Package telemetry defines the behavioral telemetry records produced by the
// collector and the pure classification rules that derive them from raw
// page interactions.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies the variant of a telemetry record on the wire.
type Type string

const (
	TypePageview    Type = "pageview"
	TypeClick       Type = "click"
	TypeRageClick   Type = "rage_click"
	TypeDeadClick   Type = "dead_click"
	TypeScroll      Type = "scroll"
	TypePerformance Type = "performance"
	TypePageLeave   Type = "page_leave"
)

// TimestampLayout renders UTC instants with millisecond precision, the
// shape receivers already parse for browser-produced events.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// ErrUnknownType is returned by DecodeEvent for records whose type is not
// one of the known variants.
var ErrUnknownType = errors.New("unknown telemetry event type")

// Event is a single immutable telemetry record. The set of implementations
// is closed: every variant embeds Base.
type Event interface {
	EventType() Type
	Header() Base
	event()
}

// Base holds the fields common to every record.
type Base struct {
	Type      Type   `json:"type"`
	EventID   string `json:"event_id"`
	SessionID string `json:"session_id"`
	PageURL   string `json:"page_url"`
	Timestamp string `json:"timestamp"`
}

// NewBase stamps a header for a record observed at the given instant.
func NewBase(t Type, sessionID, pageURL string, at time.Time) Base {
	return Base{
		Type:      t,
		EventID:   uuid.NewString(),
		SessionID: sessionID,
		PageURL:   pageURL,
		Timestamp: FormatTimestamp(at),
	}
}

// FormatTimestamp renders at as an ISO-8601 UTC string.
func FormatTimestamp(at time.Time) string {
	return at.UTC().Format(TimestampLayout)
}

func (b Base) EventType() Type { return b.Type }
func (b Base) Header() Base    { return b }
func (b Base) event()          {}

// Pageview is emitted once per collector, when the page is first observed.
type Pageview struct {
	Base
	VisitorID        string `json:"visitor_id"`
	PageTitle        string `json:"page_title"`
	Referrer         string `json:"referrer"`
	UserAgent        string `json:"user_agent"`
	ScreenResolution string `json:"screen_resolution"`
	ViewportSize     string `json:"viewport_size"`
	DeviceType       Device `json:"device_type"`
	Browser          string `json:"browser"`
	OS               string `json:"os"`
}

// Click records every observed click.
type Click struct {
	Base
	XPosition      int    `json:"x_position"`
	YPosition      int    `json:"y_position"`
	ViewportWidth  int    `json:"viewport_width"`
	ViewportHeight int    `json:"viewport_height"`
	ElementTag     string `json:"element_tag"`
	ElementID      string `json:"element_id"`
	ElementClass   string `json:"element_class"`
	ElementText    string `json:"element_text"`
	DeviceType     Device `json:"device_type"`
}

// RageClick marks the click that completed a rapid same-area cluster.
type RageClick struct {
	Base
	XPosition       int    `json:"x_position"`
	YPosition       int    `json:"y_position"`
	ClickCount      int    `json:"click_count"`
	ElementSelector string `json:"element_selector"`
}

// DeadClick marks a click on an element with no apparent interactive
// behavior.
type DeadClick struct {
	Base
	XPosition       int    `json:"x_position"`
	YPosition       int    `json:"y_position"`
	ElementSelector string `json:"element_selector"`
}

// Scroll records a new maximum scroll depth.
type Scroll struct {
	Base
	ScrollDepth int `json:"scroll_depth"`
}

// Performance carries navigation timing and whatever web vitals were known
// when it was built. Enrichment is set on records that only carry vitals
// reported after the original performance record had been sent. Unknown
// metrics are left out of the wire record; receivers read absent as null.
type Performance struct {
	Base
	DOMLoadTime            *float64 `json:"dom_load_time,omitempty"`
	PageLoadTime           *float64 `json:"page_load_time,omitempty"`
	ResourceLoadTime       *float64 `json:"resource_load_time,omitempty"`
	ConnectionType         string   `json:"connection_type,omitempty"`
	EffectiveBandwidth     *float64 `json:"effective_bandwidth,omitempty"`
	FirstContentfulPaint   *float64 `json:"first_contentful_paint,omitempty"`
	LargestContentfulPaint *float64 `json:"largest_contentful_paint,omitempty"`
	FirstInputDelay        *float64 `json:"first_input_delay,omitempty"`
	CumulativeLayoutShift  *float64 `json:"cumulative_layout_shift,omitempty"`
	TimeToInteractive      *float64 `json:"time_to_interactive,omitempty"`
	Enrichment             bool     `json:"enrichment,omitempty"`
}

// PageLeave summarizes the page visit. It is only ever delivered through
// the unload beacon.
type PageLeave struct {
	Base
	VisitorID    string            `json:"visitor_id"`
	TimeOnPage   float64           `json:"time_on_page"`
	ScrollDepth  int               `json:"scroll_depth"`
	ScrollEvents []ScrollMilestone `json:"scroll_events"`
	ClickCount   int               `json:"click_count"`
}

// Envelope is the request body shape shared by batch sends, immediate
// sends, and the unload beacon.
type Envelope struct {
	Events []Event `json:"events"`
}

// RawEnvelope is the receiving side of Envelope; records are decoded one
// at a time with DecodeEvent.
type RawEnvelope struct {
	Events []json.RawMessage `json:"events"`
}

// DecodeEvent parses a single wire record into its concrete variant.
func DecodeEvent(raw json.RawMessage) (Event, error) {
	var header Base
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("failed to decode event header: %w", err)
	}

	var target Event
	switch header.Type {
	case TypePageview:
		target = &Pageview{}
	case TypeClick:
		target = &Click{}
	case TypeRageClick:
		target = &RageClick{}
	case TypeDeadClick:
		target = &DeadClick{}
	case TypeScroll:
		target = &Scroll{}
	case TypePerformance:
		target = &Performance{}
	case TypePageLeave:
		target = &PageLeave{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, header.Type)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", header.Type, err)
	}
	return target, nil
}
