package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/jsonc"
)

// BeaconSettings is the collector-facing slice of the configuration, after
// environment defaults and any overlay file have been applied.
type BeaconSettings struct {
	Endpoint          string
	BaseURL           string
	BatchSize         int
	FlushInterval     time.Duration
	TrackClicks       bool
	TrackScroll       bool
	TrackMouse        bool
	TrackPerformance  bool
	Compress          bool
	UnloadTimeout     time.Duration
	IdentityDSN       string
	IdentityAuthToken string
}

// Beacon snapshots the environment-derived collector settings.
func Beacon() BeaconSettings {
	return BeaconSettings{
		Endpoint:          BeaconEndpoint,
		BaseURL:           BeaconBaseURL,
		BatchSize:         BeaconBatchSize,
		FlushInterval:     BeaconFlushInterval,
		TrackClicks:       BeaconTrackClicks,
		TrackScroll:       BeaconTrackScroll,
		TrackMouse:        BeaconTrackMouse,
		TrackPerformance:  BeaconTrackPerformance,
		Compress:          BeaconCompress,
		UnloadTimeout:     BeaconUnloadTimeout,
		IdentityDSN:       BeaconIdentityDSN,
		IdentityAuthToken: BeaconIdentityAuthToken,
	}
}

// beaconOverlay mirrors BeaconSettings with optional fields so an overlay
// only replaces what it names.
type beaconOverlay struct {
	Endpoint         *string `json:"endpoint"`
	BaseURL          *string `json:"baseUrl"`
	BatchSize        *int    `json:"batchSize"`
	FlushInterval    *string `json:"flushInterval"`
	TrackClicks      *bool   `json:"trackClicks"`
	TrackScroll      *bool   `json:"trackScroll"`
	TrackMouse       *bool   `json:"trackMouse"`
	TrackPerformance *bool   `json:"trackPerformance"`
	Compress         *bool   `json:"compress"`
	UnloadTimeout    *string `json:"unloadTimeout"`
	IdentityDSN      *string `json:"identityDsn"`
}

// ApplyOverlayFile reads a JSON-with-comments file and applies it.
func (s *BeaconSettings) ApplyOverlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config overlay %s: %w", path, err)
	}
	if err := s.ApplyOverlay(data); err != nil {
		return fmt.Errorf("config overlay %s: %w", path, err)
	}
	return nil
}

// ApplyOverlay applies a JSON-with-comments document. Comments and
// trailing commas are allowed.
func (s *BeaconSettings) ApplyOverlay(data []byte) error {
	var overlay beaconOverlay
	if err := json.Unmarshal(jsonc.ToJSON(data), &overlay); err != nil {
		return fmt.Errorf("invalid overlay: %w", err)
	}

	setString(&s.Endpoint, overlay.Endpoint)
	setString(&s.BaseURL, overlay.BaseURL)
	setString(&s.IdentityDSN, overlay.IdentityDSN)
	if overlay.BatchSize != nil {
		s.BatchSize = *overlay.BatchSize
	}
	setBool(&s.TrackClicks, overlay.TrackClicks)
	setBool(&s.TrackScroll, overlay.TrackScroll)
	setBool(&s.TrackMouse, overlay.TrackMouse)
	setBool(&s.TrackPerformance, overlay.TrackPerformance)
	setBool(&s.Compress, overlay.Compress)

	if err := setDuration(&s.FlushInterval, overlay.FlushInterval, "flushInterval"); err != nil {
		return err
	}
	return setDuration(&s.UnloadTimeout, overlay.UnloadTimeout, "unloadTimeout")
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *string, name string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, *src, err)
	}
	*dst = d
	return nil
}
