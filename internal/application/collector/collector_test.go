package collector

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AtRiskMedia/tractstack-beacon/internal/domain/identity"
	"github.com/AtRiskMedia/tractstack-beacon/internal/domain/telemetry"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/clock"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/observability/logging"
	persisted "github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/persistence/identity"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/security"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const desktopAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36"

type recordingSender struct {
	mu    sync.Mutex
	calls [][]telemetry.Event
	fail  int
}

func (s *recordingSender) Send(_ context.Context, events []telemetry.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("connection refused")
	}
	s.calls = append(s.calls, events)
	return nil
}

func (s *recordingSender) Calls() [][]telemetry.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]telemetry.Event(nil), s.calls...)
}

// countType counts records of type t across every delivered call.
func (s *recordingSender) countType(t telemetry.Type) int {
	n := 0
	for _, call := range s.Calls() {
		n += countType(call, t)
	}
	return n
}

type recordingBeacon struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *recordingBeacon) SendBeacon(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
}

func countType(events []telemetry.Event, t telemetry.Type) int {
	n := 0
	for _, event := range events {
		if event.EventType() == t {
			n++
		}
	}
	return n
}

type fixture struct {
	collector *Collector
	clock     *clock.FakeClock
	host      *StaticHost
	sender    *recordingSender
	beacon    *recordingBeacon

	endpoint string
	compress bool
}

// transport records what the collector asked for and hands back the
// recording sender and beacon.
func (f *fixture) transport(endpoint string, compress bool) (Sender, UnloadSender, error) {
	f.endpoint, f.compress = endpoint, compress
	return f.sender, f.beacon, nil
}

func setupCollector(t *testing.T, opts Options) *fixture {
	t.Helper()
	return setupCollectorWith(t, opts, &recordingSender{})
}

// setupCollectorWith builds the fixture around sender, so a test can make
// the very first send fail.
func setupCollectorWith(t *testing.T, opts Options, sender *recordingSender) *fixture {
	t.Helper()
	f := &fixture{
		clock:  clock.NewFake(epoch),
		sender: sender,
		beacon: &recordingBeacon{},
		host: &StaticHost{
			Path:       "/pricing",
			PageTitle:  "Pricing",
			Referer:    "https://example.com/",
			Agent:      desktopAgent,
			ScreenSize: Size{Width: 1920, Height: 1080},
			View:       Size{Width: 1280, Height: 1000},
			Document:   3000,
		},
	}

	logger := logging.NewDiscard()
	resolver := identity.NewResolver(persisted.NewMemoryStore(), persisted.NewMemoryStore(), security.NewID, logger.Identity())
	c, err := New(context.Background(), opts, Deps{
		Host:      f.host,
		Transport: f.transport,
		Identity:  resolver,
		Clock:     f.clock,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.collector = c
	t.Cleanup(func() { c.Close() })
	return f
}

func largeBatch() Options {
	opts := DefaultOptions()
	opts.BatchSize = 100
	return opts
}

var button = telemetry.Element{Tag: "BUTTON", ID: "buy", Text: "Buy now"}

func TestPageviewQueuedAndSentImmediately(t *testing.T) {
	f := setupCollector(t, largeBatch())
	f.collector.Wait()

	if f.collector.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", f.collector.Pending())
	}
	calls := f.sender.Calls()
	if len(calls) != 1 || len(calls[0]) != 1 {
		t.Fatalf("immediate sends = %v", calls)
	}
	pageview, ok := calls[0][0].(telemetry.Pageview)
	if !ok {
		t.Fatalf("immediate send carried %T", calls[0][0])
	}
	if pageview.VisitorID != f.collector.VisitorID() || pageview.SessionID != f.collector.SessionID() {
		t.Errorf("pageview ids = %s / %s", pageview.VisitorID, pageview.SessionID)
	}
	if pageview.ScreenResolution != "1920x1080" || pageview.ViewportSize != "1280x1000" {
		t.Errorf("sizes = %s / %s", pageview.ScreenResolution, pageview.ViewportSize)
	}
	if pageview.DeviceType != telemetry.DeviceDesktop || pageview.Browser != "Chrome" || pageview.OS != "Windows" {
		t.Errorf("classification = %s %s %s", pageview.DeviceType, pageview.Browser, pageview.OS)
	}
	if pageview.PageURL != "/pricing" {
		t.Errorf("PageURL = %s", pageview.PageURL)
	}
}

func TestQueueNeverReachesBatchSize(t *testing.T) {
	opts := DefaultOptions()
	opts.BatchSize = 3
	f := setupCollector(t, opts)

	for i := 0; i < 8; i++ {
		f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: i * 100, Y: 10}, Target: button})
		if f.collector.Pending() >= opts.BatchSize {
			t.Fatalf("Pending = %d after click %d", f.collector.Pending(), i)
		}
	}
	f.collector.Wait()

	batches := 0
	for _, call := range f.sender.Calls() {
		if len(call) == opts.BatchSize {
			batches++
		}
	}
	if batches != 3 {
		t.Errorf("full batches sent = %d, want 3", batches)
	}
}

func TestEmptyFlushSendsNothing(t *testing.T) {
	f := setupCollector(t, largeBatch())
	f.collector.Flush()
	f.collector.Wait()
	before := len(f.sender.Calls())

	f.collector.Flush()
	f.collector.Flush()
	f.collector.Wait()
	if got := len(f.sender.Calls()); got != before {
		t.Errorf("empty flushes made %d transport calls", got-before)
	}
}

func TestFailedBatchRequeuedAhead(t *testing.T) {
	f := setupCollector(t, largeBatch())
	f.collector.Wait()

	f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: 10, Y: 10}, Target: button})
	f.sender.mu.Lock()
	f.sender.fail = 1
	f.sender.mu.Unlock()
	f.collector.Flush()
	f.collector.Wait()

	f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: 500, Y: 500}, Target: telemetry.Element{Tag: "a", ID: "later"}})

	pending := f.collector.queue.Snapshot()
	if len(pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(pending))
	}
	if pending[0].EventType() != telemetry.TypePageview {
		t.Errorf("first pending = %s, want pageview", pending[0].EventType())
	}
	if last, ok := pending[2].(telemetry.Click); !ok || last.ElementID != "later" {
		t.Errorf("newest click should trail the requeued batch, got %#v", pending[2])
	}
}

func TestRageClickQueuedAndSentImmediately(t *testing.T) {
	f := setupCollector(t, largeBatch())

	f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: 100, Y: 100}, Target: button})
	f.clock.Advance(200 * time.Millisecond)
	f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: 105, Y: 103}, Target: button})
	f.clock.Advance(300 * time.Millisecond)
	f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: 110, Y: 98}, Target: button})
	f.collector.Wait()

	pending := f.collector.queue.Snapshot()
	if got := countType(pending, telemetry.TypeClick); got != 3 {
		t.Errorf("queued clicks = %d, want 3", got)
	}
	if got := countType(pending, telemetry.TypeRageClick); got != 1 {
		t.Fatalf("queued rage clicks = %d, want 1", got)
	}
	rage := pending[len(pending)-1].(telemetry.RageClick)
	if rage.ClickCount != 3 || rage.ElementSelector != "#buy" {
		t.Errorf("rage = %+v", rage)
	}
	if got := f.sender.countType(telemetry.TypeRageClick); got != 1 {
		t.Errorf("rage clicks sent immediately = %d, want 1", got)
	}

	f.clock.Advance(1500 * time.Millisecond)
	f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: 100, Y: 100}, Target: button})
	if got := countType(f.collector.queue.Snapshot(), telemetry.TypeRageClick); got != 1 {
		t.Errorf("a click after the window should reset the streak, rage clicks = %d", got)
	}
}

func TestDeadClicks(t *testing.T) {
	f := setupCollector(t, largeBatch())

	f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: 1, Y: 1}, Target: telemetry.Element{Tag: "DIV", Class: "hero banner"}})
	f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: 300, Y: 300}, Target: button})
	f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: 600, Y: 600}, Target: telemetry.Element{Tag: "span", Cursor: "pointer"}})

	pending := f.collector.queue.Snapshot()
	if got := countType(pending, telemetry.TypeDeadClick); got != 1 {
		t.Fatalf("dead clicks = %d, want 1", got)
	}
	for _, event := range pending {
		if dead, ok := event.(telemetry.DeadClick); ok && dead.ElementSelector != ".hero" {
			t.Errorf("dead click selector = %s, want .hero", dead.ElementSelector)
		}
	}

	opts := largeBatch()
	opts.TrackMouse = false
	quiet := setupCollector(t, opts)
	quiet.collector.HandleClick(ClickInteraction{Target: telemetry.Element{Tag: "div"}})
	if got := countType(quiet.collector.queue.Snapshot(), telemetry.TypeDeadClick); got != 0 {
		t.Errorf("dead clicks with mouse tracking off = %d", got)
	}
}

func TestClickTrackingDisabled(t *testing.T) {
	opts := largeBatch()
	opts.TrackClicks = false
	opts.TrackMouse = false
	f := setupCollector(t, opts)

	for i := 0; i < 3; i++ {
		f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: 10, Y: 10}, Target: button})
	}
	if f.collector.Pending() != 1 {
		t.Errorf("Pending = %d, want only the pageview", f.collector.Pending())
	}
}

func TestScrollDebounceAndWatermark(t *testing.T) {
	f := setupCollector(t, largeBatch())

	f.host.SetScroll(400)
	f.collector.HandleScroll()
	f.clock.Advance(100 * time.Millisecond)
	f.host.SetScroll(1000)
	f.collector.HandleScroll()
	f.clock.Advance(100 * time.Millisecond)
	if got := countType(f.collector.queue.Snapshot(), telemetry.TypeScroll); got != 0 {
		t.Fatalf("scroll emitted before the debounce elapsed")
	}
	f.clock.Advance(50 * time.Millisecond)

	f.host.SetScroll(200)
	f.collector.HandleScroll()
	f.clock.Advance(ScrollDebounce)

	f.host.SetScroll(1600)
	f.collector.HandleScroll()
	f.clock.Advance(ScrollDebounce)

	var got []int
	for _, event := range f.collector.queue.Snapshot() {
		if scroll, ok := event.(telemetry.Scroll); ok {
			got = append(got, scroll.ScrollDepth)
		}
	}
	if len(got) != 2 || got[0] != 50 || got[1] != 80 {
		t.Errorf("scroll depths = %v, want [50 80]", got)
	}
}

func TestPerformanceCaptureAndEnrichment(t *testing.T) {
	f := setupCollector(t, largeBatch())

	if err := f.collector.ReportVital("first_contentful_paint", 420); err != nil {
		t.Fatalf("ReportVital: %v", err)
	}
	downlink := 10.0
	f.collector.HandleLoad(&telemetry.NavigationTiming{
		NavigationStart:            0,
		ResponseEnd:                300,
		DOMContentLoadedEventStart: 800,
		DOMContentLoadedEventEnd:   850,
		LoadEventEnd:               1200,
	}, &telemetry.Connection{EffectiveType: "4g", Downlink: &downlink})

	f.clock.Advance(50 * time.Millisecond)
	if got := countType(f.collector.queue.Snapshot(), telemetry.TypePerformance); got != 0 {
		t.Fatal("performance captured before its delay")
	}
	f.clock.Advance(50 * time.Millisecond)
	f.collector.Wait()

	var perf telemetry.Performance
	for _, event := range f.collector.queue.Snapshot() {
		if p, ok := event.(telemetry.Performance); ok {
			perf = p
		}
	}
	if perf.PageLoadTime == nil || *perf.PageLoadTime != 1200 || *perf.DOMLoadTime != 50 || *perf.ResourceLoadTime != 900 {
		t.Fatalf("performance timings = %+v", perf)
	}
	if perf.ConnectionType != "4g" || perf.EffectiveBandwidth == nil || *perf.EffectiveBandwidth != 10 {
		t.Errorf("connection = %s / %v", perf.ConnectionType, perf.EffectiveBandwidth)
	}
	if perf.FirstContentfulPaint == nil || *perf.FirstContentfulPaint != 420 {
		t.Errorf("early vital not merged: %v", perf.FirstContentfulPaint)
	}
	if got := f.sender.countType(telemetry.TypePerformance); got != 1 {
		t.Errorf("performance sent immediately %d times, want 1", got)
	}

	f.collector.ReportVital("cumulative_layout_shift", 0.1)
	f.collector.ReportVital("cumulative_layout_shift", 0.02)
	f.collector.HandleVisibilityChange(true)
	f.collector.Wait()

	var enrichment *telemetry.Performance
	for _, call := range f.sender.Calls() {
		for _, event := range call {
			if p, ok := event.(telemetry.Performance); ok && p.Enrichment {
				enrichment = &p
			}
		}
	}
	if enrichment == nil {
		t.Fatal("late vitals were not sent as an enrichment record")
	}
	if enrichment.CumulativeLayoutShift == nil || *enrichment.CumulativeLayoutShift < 0.119 || *enrichment.CumulativeLayoutShift > 0.121 {
		t.Errorf("CLS = %v, want 0.12", enrichment.CumulativeLayoutShift)
	}
	if enrichment.PageLoadTime != nil {
		t.Error("enrichment record should not repeat navigation timing")
	}

	if err := f.collector.ReportVital("time_to_first_byte", 1); err == nil {
		t.Error("unknown vital should be rejected")
	}
}

func TestPerformanceOmittedWithoutTiming(t *testing.T) {
	f := setupCollector(t, largeBatch())
	f.collector.HandleLoad(nil, nil)
	f.clock.Advance(PerformanceDelay)
	f.collector.Wait()

	if got := countType(f.collector.queue.Snapshot(), telemetry.TypePerformance); got != 0 {
		t.Errorf("performance records = %d, want 0", got)
	}
}

func TestUnloadSendsPageLeaveThroughBeacon(t *testing.T) {
	f := setupCollector(t, largeBatch())

	f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: 10, Y: 10}, Target: button})
	f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: 900, Y: 900}, Target: button})
	f.host.SetScroll(1000)
	f.collector.HandleScroll()
	f.clock.Advance(12 * time.Second)
	pendingBefore := f.collector.Pending()

	f.collector.HandleUnload()

	if f.collector.Pending() != pendingBefore {
		t.Error("page_leave must not be queued")
	}
	if len(f.beacon.payloads) != 1 {
		t.Fatalf("beacon payloads = %d, want 1", len(f.beacon.payloads))
	}

	var raw telemetry.RawEnvelope
	if err := json.Unmarshal(f.beacon.payloads[0], &raw); err != nil {
		t.Fatalf("beacon payload: %v", err)
	}
	if len(raw.Events) != 1 {
		t.Fatalf("beacon carried %d events", len(raw.Events))
	}
	decoded, err := telemetry.DecodeEvent(raw.Events[0])
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	leave, ok := decoded.(*telemetry.PageLeave)
	if !ok {
		t.Fatalf("beacon carried %T", decoded)
	}
	if leave.ClickCount != 2 || leave.ScrollDepth != 50 || len(leave.ScrollEvents) != 1 {
		t.Errorf("page_leave = %+v", leave)
	}
	if leave.TimeOnPage != 12 {
		t.Errorf("TimeOnPage = %v, want 12", leave.TimeOnPage)
	}
	if leave.VisitorID != f.collector.VisitorID() {
		t.Errorf("VisitorID = %s", leave.VisitorID)
	}
	if !strings.Contains(string(f.beacon.payloads[0]), `"type":"page_leave"`) {
		t.Errorf("payload = %s", f.beacon.payloads[0])
	}
}

func TestIntervalFlush(t *testing.T) {
	f := setupCollector(t, largeBatch())
	f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: 10, Y: 10}, Target: button})

	f.clock.Advance(DefaultFlushInterval)
	f.collector.Wait()
	if f.collector.Pending() != 0 {
		t.Errorf("Pending after interval = %d", f.collector.Pending())
	}

	f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: 10, Y: 10}, Target: button})
	f.clock.Advance(DefaultFlushInterval)
	f.collector.Wait()
	if f.collector.Pending() != 0 {
		t.Errorf("interval timer did not re-arm, Pending = %d", f.collector.Pending())
	}
}

func TestVisibleChangeDoesNotFlush(t *testing.T) {
	f := setupCollector(t, largeBatch())
	f.collector.HandleVisibilityChange(false)
	if f.collector.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", f.collector.Pending())
	}
	f.collector.HandleVisibilityChange(true)
	if f.collector.Pending() != 0 {
		t.Errorf("Pending after hide = %d, want 0", f.collector.Pending())
	}
}

func TestCloseFlushesAndIgnoresLaterCalls(t *testing.T) {
	f := setupCollector(t, largeBatch())
	f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: 10, Y: 10}, Target: button})

	if err := f.collector.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if f.collector.Pending() != 0 {
		t.Errorf("Pending after Close = %d", f.collector.Pending())
	}
	if f.clock.Pending() != 0 {
		t.Errorf("timers still armed after Close: %d", f.clock.Pending())
	}

	calls := len(f.sender.Calls())
	f.collector.HandleClick(ClickInteraction{Target: telemetry.Element{Tag: "div"}})
	f.collector.HandleUnload()
	f.collector.Flush()
	f.collector.Wait()
	if f.collector.Pending() != 0 || len(f.sender.Calls()) != calls || len(f.beacon.payloads) != 0 {
		t.Error("calls after Close should be ignored")
	}
	if err := f.collector.ReportVital("first_input_delay", 3); !errors.Is(err, ErrClosed) {
		t.Errorf("ReportVital after Close = %v, want ErrClosed", err)
	}
	if err := f.collector.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestTransportBuiltFromOptions(t *testing.T) {
	opts := largeBatch()
	opts.Endpoint = "/custom/collect"
	opts.Compress = true
	f := setupCollector(t, opts)

	if f.endpoint != "/custom/collect" || !f.compress {
		t.Errorf("transport built for %q compress=%t", f.endpoint, f.compress)
	}
	f.collector.Wait()
	if len(f.sender.Calls()) != 1 {
		t.Errorf("pageview did not go through the built sender")
	}
}

func TestTransportFactoryFailure(t *testing.T) {
	logger := logging.NewDiscard()
	resolver := identity.NewResolver(nil, nil, security.NewID, logger.Identity())
	host := &StaticHost{Path: "/"}

	_, err := New(context.Background(), DefaultOptions(), Deps{
		Host: host,
		Transport: func(string, bool) (Sender, UnloadSender, error) {
			return nil, nil, errors.New("bad endpoint")
		},
		Identity: resolver,
		Logger:   logger,
	})
	if err == nil || !strings.Contains(err.Error(), "bad endpoint") {
		t.Errorf("New with failing transport = %v", err)
	}

	_, err = New(context.Background(), DefaultOptions(), Deps{
		Host: host,
		Transport: func(string, bool) (Sender, UnloadSender, error) {
			return nil, nil, nil
		},
		Identity: resolver,
		Logger:   logger,
	})
	if err == nil {
		t.Error("New accepted a transport without a sender")
	}
}

func TestFailedImmediateSendNotRequeued(t *testing.T) {
	f := setupCollectorWith(t, largeBatch(), &recordingSender{fail: 1})
	f.collector.Wait()

	if got := f.sender.countType(telemetry.TypePageview); got != 0 {
		t.Fatalf("pageview delivered %d times, want the immediate send to fail", got)
	}
	if got := countType(f.collector.queue.Snapshot(), telemetry.TypePageview); got != 1 {
		t.Fatalf("queued pageviews = %d, want exactly the original copy", got)
	}

	f.sender.mu.Lock()
	f.sender.fail = 1
	f.sender.mu.Unlock()
	for i, at := range []time.Duration{0, 100 * time.Millisecond, 100 * time.Millisecond} {
		f.clock.Advance(at)
		f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: 50 + i, Y: 50}, Target: button})
	}
	f.collector.Wait()

	if got := f.sender.countType(telemetry.TypeRageClick); got != 0 {
		t.Fatalf("rage click delivered %d times, want the immediate send to fail", got)
	}
	if got := countType(f.collector.queue.Snapshot(), telemetry.TypeRageClick); got != 1 {
		t.Errorf("queued rage clicks = %d, want 1", got)
	}

	f.collector.Flush()
	f.collector.Wait()
	if got := f.sender.countType(telemetry.TypeRageClick); got != 1 {
		t.Errorf("rage clicks delivered by the batch = %d, want 1", got)
	}
	if got := f.sender.countType(telemetry.TypePageview); got != 1 {
		t.Errorf("pageviews delivered by the batch = %d, want 1", got)
	}
	if f.collector.Pending() != 0 {
		t.Errorf("Pending = %d after a successful flush", f.collector.Pending())
	}
}

func TestCloseReportsUndeliveredEvents(t *testing.T) {
	f := setupCollector(t, largeBatch())
	f.collector.Wait()
	f.collector.HandleClick(ClickInteraction{Position: telemetry.Point{X: 10, Y: 10}, Target: button})

	f.sender.mu.Lock()
	f.sender.fail = 1
	f.sender.mu.Unlock()

	err := f.collector.Close()
	if err == nil || !strings.Contains(err.Error(), "2 events undelivered") {
		t.Fatalf("Close = %v, want the undelivered count", err)
	}
	if f.collector.Pending() != 2 {
		t.Errorf("Pending = %d, want the failed batch requeued", f.collector.Pending())
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero batch size", func(o *Options) { o.BatchSize = 0 }},
		{"negative interval", func(o *Options) { o.FlushInterval = -time.Second }},
		{"blank endpoint", func(o *Options) { o.Endpoint = " " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			if err := opts.Validate(); err == nil {
				t.Error("Validate accepted invalid options")
			}
			if _, err := New(context.Background(), opts, Deps{}); err == nil {
				t.Error("New accepted invalid options")
			}
		})
	}
}
