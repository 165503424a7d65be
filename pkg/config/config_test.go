package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("BEACON_TEST_INT", "25")
	t.Setenv("BEACON_TEST_BAD_INT", "many")
	t.Setenv("BEACON_TEST_BOOL", "false")
	t.Setenv("BEACON_TEST_DURATION", "750ms")
	t.Setenv("BEACON_TEST_LIST", " https://a.example , ,https://b.example")

	if got := getEnvInt("BEACON_TEST_INT", 10); got != 25 {
		t.Errorf("getEnvInt = %d, want 25", got)
	}
	if got := getEnvInt("BEACON_TEST_BAD_INT", 10); got != 10 {
		t.Errorf("getEnvInt with bad value = %d, want default 10", got)
	}
	if got := getEnvBool("BEACON_TEST_BOOL", true); got {
		t.Error("getEnvBool = true, want false")
	}
	if got := getEnvDuration("BEACON_TEST_DURATION", time.Second); got != 750*time.Millisecond {
		t.Errorf("getEnvDuration = %s", got)
	}
	if got := getEnvString("BEACON_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("getEnvString = %s", got)
	}
	list := getEnvList("BEACON_TEST_LIST", nil)
	if len(list) != 2 || list[0] != "https://a.example" || list[1] != "https://b.example" {
		t.Errorf("getEnvList = %v", list)
	}
}

func TestLoadReadsBeaconSettings(t *testing.T) {
	t.Setenv("BEACON_BATCH_SIZE", "4")
	t.Setenv("BEACON_TRACK_MOUSE", "false")
	t.Setenv("BEACON_FLUSH_INTERVAL", "2s")
	Load()
	t.Cleanup(func() {
		os.Unsetenv("BEACON_BATCH_SIZE")
		os.Unsetenv("BEACON_TRACK_MOUSE")
		os.Unsetenv("BEACON_FLUSH_INTERVAL")
		Load()
	})

	settings := Beacon()
	if settings.BatchSize != 4 || settings.TrackMouse || settings.FlushInterval != 2*time.Second {
		t.Errorf("settings = %+v", settings)
	}
	if !settings.TrackClicks || settings.Endpoint != "/api/analytics/track" {
		t.Errorf("defaults not kept: %+v", settings)
	}
}

func TestApplyOverlay(t *testing.T) {
	settings := BeaconSettings{
		Endpoint:      "/api/analytics/track",
		BatchSize:     10,
		FlushInterval: 5 * time.Second,
		TrackClicks:   true,
		TrackScroll:   true,
	}

	overlay := []byte(`{
		// staging sink
		"baseUrl": "https://staging.example.com",
		"batchSize": 25,
		"flushInterval": "10s",
		"trackScroll": false, /* scroll is noisy here */
	}`)
	if err := settings.ApplyOverlay(overlay); err != nil {
		t.Fatalf("ApplyOverlay: %v", err)
	}
	if settings.BaseURL != "https://staging.example.com" || settings.BatchSize != 25 || settings.FlushInterval != 10*time.Second {
		t.Errorf("settings = %+v", settings)
	}
	if settings.TrackScroll || !settings.TrackClicks {
		t.Errorf("flags = clicks %t scroll %t", settings.TrackClicks, settings.TrackScroll)
	}
	if settings.Endpoint != "/api/analytics/track" {
		t.Errorf("unnamed field changed: %s", settings.Endpoint)
	}

	if err := settings.ApplyOverlay([]byte(`{"flushInterval": "soon"}`)); err == nil {
		t.Error("invalid duration accepted")
	}
}

func TestApplyOverlayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.jsonc")
	if err := os.WriteFile(path, []byte("{\"compress\": true} // gzip bodies\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var settings BeaconSettings
	if err := settings.ApplyOverlayFile(path); err != nil {
		t.Fatalf("ApplyOverlayFile: %v", err)
	}
	if !settings.Compress {
		t.Error("compress not applied")
	}
	if err := settings.ApplyOverlayFile(filepath.Join(t.TempDir(), "missing.jsonc")); err == nil {
		t.Error("missing file accepted")
	}
}
