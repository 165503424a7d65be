package collector

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultEndpoint      = "/api/analytics/track"
	DefaultBatchSize     = 10
	DefaultFlushInterval = 5 * time.Second

	// ScrollDebounce is the quiet period after the last scroll notification
	// before depth is sampled.
	ScrollDebounce = 150 * time.Millisecond
	// PerformanceDelay lets the load event finish before timing is read.
	PerformanceDelay = 100 * time.Millisecond
)

// Options configures a Collector. The zero value is not valid; start from
// DefaultOptions. Endpoint and Compress are passed to Deps.Transport when
// the collector is built.
type Options struct {
	Endpoint         string        `json:"endpoint"`
	BatchSize        int           `json:"batchSize"`
	FlushInterval    time.Duration `json:"flushInterval"`
	TrackClicks      bool          `json:"trackClicks"`
	TrackScroll      bool          `json:"trackScroll"`
	TrackMouse       bool          `json:"trackMouse"`
	TrackPerformance bool          `json:"trackPerformance"`
	Compress         bool          `json:"compress"`
}

// DefaultOptions returns the options used when the host supplies none.
func DefaultOptions() Options {
	return Options{
		Endpoint:         DefaultEndpoint,
		BatchSize:        DefaultBatchSize,
		FlushInterval:    DefaultFlushInterval,
		TrackClicks:      true,
		TrackScroll:      true,
		TrackMouse:       true,
		TrackPerformance: true,
	}
}

// Validate rejects options a Collector cannot run with.
func (o Options) Validate() error {
	var errs []error
	if strings.TrimSpace(o.Endpoint) == "" {
		errs = append(errs, errors.New("endpoint must not be empty"))
	}
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive, got %d", o.BatchSize))
	}
	if o.FlushInterval <= 0 {
		errs = append(errs, fmt.Errorf("flush interval must be positive, got %s", o.FlushInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid collector options: %w", errors.Join(errs...))
	}
	return nil
}
