package telemetry

import "fmt"

// NavigationTiming carries navigation milestones in milliseconds, all
// measured against the same origin.
type NavigationTiming struct {
	NavigationStart            float64 `json:"navigationStart" yaml:"navigationStart"`
	ResponseEnd                float64 `json:"responseEnd" yaml:"responseEnd"`
	DOMContentLoadedEventStart float64 `json:"domContentLoadedEventStart" yaml:"domContentLoadedEventStart"`
	DOMContentLoadedEventEnd   float64 `json:"domContentLoadedEventEnd" yaml:"domContentLoadedEventEnd"`
	LoadEventEnd               float64 `json:"loadEventEnd" yaml:"loadEventEnd"`
}

// DOMProcessing is the DOMContentLoaded handler duration.
func (t NavigationTiming) DOMProcessing() float64 {
	return t.DOMContentLoadedEventEnd - t.DOMContentLoadedEventStart
}

// TotalLoad is the time from navigation start to the end of the load event.
func (t NavigationTiming) TotalLoad() float64 {
	return t.LoadEventEnd - t.NavigationStart
}

// ResourceLoad is the time from the end of the document response to the end
// of the load event.
func (t NavigationTiming) ResourceLoad() float64 {
	return t.LoadEventEnd - t.ResponseEnd
}

// Connection describes the network as exposed by the host, if at all.
type Connection struct {
	EffectiveType string   `json:"effectiveType,omitempty" yaml:"effectiveType"`
	Downlink      *float64 `json:"downlink,omitempty" yaml:"downlink"`
}

// Vital names a web-vital metric that may arrive after page load.
type Vital string

const (
	VitalFirstContentfulPaint   Vital = "first_contentful_paint"
	VitalLargestContentfulPaint Vital = "largest_contentful_paint"
	VitalFirstInputDelay        Vital = "first_input_delay"
	VitalCumulativeLayoutShift  Vital = "cumulative_layout_shift"
	VitalTimeToInteractive      Vital = "time_to_interactive"
)

// ParseVital validates a vital name.
func ParseVital(name string) (Vital, error) {
	switch v := Vital(name); v {
	case VitalFirstContentfulPaint, VitalLargestContentfulPaint, VitalFirstInputDelay,
		VitalCumulativeLayoutShift, VitalTimeToInteractive:
		return v, nil
	}
	return "", fmt.Errorf("unsupported vital %q", name)
}

// Vitals accumulates reported web-vital values. Layout shift sums; every
// other vital keeps its latest value.
type Vitals struct {
	values map[Vital]float64
}

// Report folds one observation into the set.
func (v *Vitals) Report(name Vital, value float64) {
	if v.values == nil {
		v.values = make(map[Vital]float64)
	}
	if name == VitalCumulativeLayoutShift {
		v.values[name] += value
		return
	}
	v.values[name] = value
}

// Empty reports whether no vitals have been recorded.
func (v *Vitals) Empty() bool { return len(v.values) == 0 }

// Reset discards all recorded values.
func (v *Vitals) Reset() { v.values = nil }

// ApplyTo copies the recorded values onto a performance record.
func (v *Vitals) ApplyTo(p *Performance) {
	for name, value := range v.values {
		value := value
		switch name {
		case VitalFirstContentfulPaint:
			p.FirstContentfulPaint = &value
		case VitalLargestContentfulPaint:
			p.LargestContentfulPaint = &value
		case VitalFirstInputDelay:
			p.FirstInputDelay = &value
		case VitalCumulativeLayoutShift:
			p.CumulativeLayoutShift = &value
		case VitalTimeToInteractive:
			p.TimeToInteractive = &value
		}
	}
}
