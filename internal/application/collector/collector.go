// Package collector turns page interactions reported by a host into
// telemetry records, batches them, and hands them to a transport.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AtRiskMedia/tractstack-beacon/internal/domain/identity"
	"github.com/AtRiskMedia/tractstack-beacon/internal/domain/telemetry"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/clock"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/observability/logging"
)

// ErrClosed is returned by operations attempted after Close.
var ErrClosed = errors.New("collector closed")

// Sender delivers a batch of records. Any response from the receiver counts
// as delivered; only a failure to reach it is an error.
type Sender interface {
	Send(ctx context.Context, events []telemetry.Event) error
}

// UnloadSender queues a payload for delivery that outlives the page. It
// never reports an outcome.
type UnloadSender interface {
	SendBeacon(payload []byte)
}

// SenderFactory builds the batch sender and the unload sender for the
// configured endpoint. beacon may be nil when the host cannot deliver after
// unload.
type SenderFactory func(endpoint string, compress bool) (sender Sender, beacon UnloadSender, err error)

// Deps are the collaborators a Collector is built from.
type Deps struct {
	Host      Host
	Transport SenderFactory
	Identity  *identity.Resolver
	Clock    clock.Clock
	Logger   *logging.ChanneledLogger
}

// Collector is the per-page telemetry state machine. Every Handle call,
// timer callback, and flush runs under one lock so records are produced in
// the order interactions were observed. Network sends run on their own
// goroutines and never block the caller.
type Collector struct {
	ctx     context.Context
	opts    Options
	host    Host
	sender  Sender
	beacon  UnloadSender
	clock   clock.Clock
	logger  *slog.Logger
	queue   *BatchQueue
	wg      sync.WaitGroup
	started time.Time

	visitorID string
	sessionID string
	device    telemetry.Device

	mu            sync.Mutex
	closed        bool
	clicks        telemetry.ClickState
	scroll        telemetry.ScrollState
	vitals        telemetry.Vitals
	perfCaptured  bool
	intervalTimer clock.Timer
	scrollTimer   clock.Timer
	perfTimer     clock.Timer
}

// New resolves the visitor and session, records the pageview, and starts
// the interval flush. ctx bounds every send the collector makes.
func New(ctx context.Context, opts Options, deps Deps) (*Collector, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Host == nil {
		return nil, errors.New("collector requires a host")
	}
	if deps.Transport == nil {
		return nil, errors.New("collector requires a transport")
	}
	if deps.Identity == nil {
		return nil, errors.New("collector requires an identity resolver")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewDiscard()
	}

	sender, beacon, err := deps.Transport(opts.Endpoint, opts.Compress)
	if err != nil {
		return nil, fmt.Errorf("failed to build transport for %s: %w", opts.Endpoint, err)
	}
	if sender == nil {
		return nil, errors.New("transport returned no sender")
	}

	c := &Collector{
		ctx:       ctx,
		opts:      opts,
		host:      deps.Host,
		sender:    sender,
		beacon:    beacon,
		clock:     deps.Clock,
		visitorID: deps.Identity.VisitorID(),
		sessionID: deps.Identity.SessionID(),
	}
	c.started = c.clock.Now()
	c.device = telemetry.ClassifyDevice(c.host.UserAgent())
	c.logger = deps.Logger.WithSession(logging.ChannelCollector, c.sessionID)
	c.queue = NewBatchQueue(opts.BatchSize, c.deliverBatch)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.trackPageview()
	c.intervalTimer = c.clock.AfterFunc(opts.FlushInterval, c.onInterval)

	c.logger.Info("Collector started",
		"visitorId", logging.MaskID(c.visitorID),
		"pageUrl", c.host.Location(),
		"endpoint", opts.Endpoint,
		"compress", opts.Compress,
		"deviceType", c.device,
		"batchSize", opts.BatchSize,
		"flushInterval", opts.FlushInterval,
	)
	return c, nil
}

// VisitorID returns the visitor this collector reports for.
func (c *Collector) VisitorID() string { return c.visitorID }

// SessionID returns the session this collector reports for.
func (c *Collector) SessionID() string { return c.sessionID }

// Pending returns the number of queued records.
func (c *Collector) Pending() int { return c.queue.Len() }

func (c *Collector) base(t telemetry.Type) telemetry.Base {
	return telemetry.NewBase(t, c.sessionID, c.host.Location(), c.clock.Now())
}

func (c *Collector) trackPageview() {
	userAgent := c.host.UserAgent()
	event := telemetry.Pageview{
		Base:             c.base(telemetry.TypePageview),
		VisitorID:        c.visitorID,
		PageTitle:        c.host.Title(),
		Referrer:         c.host.Referrer(),
		UserAgent:        userAgent,
		ScreenResolution: c.host.Screen().String(),
		ViewportSize:     c.host.Viewport().String(),
		DeviceType:       c.device,
		Browser:          telemetry.DetectBrowser(userAgent),
		OS:               telemetry.DetectOS(userAgent),
	}
	c.queue.Enqueue(event)
	c.sendImmediately(event)
}

// HandleClick classifies one click into click, rage_click, and dead_click
// records according to the tracking flags.
func (c *Collector) HandleClick(click ClickInteraction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	streak, rage := c.clicks.Observe(click.Position, c.clock.Now())

	if c.opts.TrackClicks {
		viewport := c.host.Viewport()
		c.queue.Enqueue(telemetry.Click{
			Base:           c.base(telemetry.TypeClick),
			XPosition:      click.Position.X,
			YPosition:      click.Position.Y,
			ViewportWidth:  viewport.Width,
			ViewportHeight: viewport.Height,
			ElementTag:     click.Target.TagName(),
			ElementID:      click.Target.ID,
			ElementClass:   click.Target.Class,
			ElementText:    click.Target.TruncatedText(),
			DeviceType:     c.device,
		})

		if rage {
			event := telemetry.RageClick{
				Base:            c.base(telemetry.TypeRageClick),
				XPosition:       click.Position.X,
				YPosition:       click.Position.Y,
				ClickCount:      streak,
				ElementSelector: click.Target.Selector(),
			}
			c.logger.Debug("Rage click detected", "clickCount", streak, "elementSelector", event.ElementSelector)
			c.queue.Enqueue(event)
			c.sendImmediately(event)
		}
	}

	if c.opts.TrackMouse && !click.Target.IsInteractive() {
		c.queue.Enqueue(telemetry.DeadClick{
			Base:            c.base(telemetry.TypeDeadClick),
			XPosition:       click.Position.X,
			YPosition:       click.Position.Y,
			ElementSelector: click.Target.Selector(),
		})
	}
}

// HandleScroll notes scroll activity. Depth is sampled once scrolling has
// been quiet for ScrollDebounce.
func (c *Collector) HandleScroll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.opts.TrackScroll {
		return
	}
	if c.scrollTimer != nil {
		c.scrollTimer.Stop()
	}
	c.scrollTimer = c.clock.AfterFunc(ScrollDebounce, c.captureScroll)
}

func (c *Collector) captureScroll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	depth := c.host.ScrollMetrics().Depth()
	if !c.scroll.Record(depth, c.clock.Now()) {
		return
	}
	c.queue.Enqueue(telemetry.Scroll{
		Base:        c.base(telemetry.TypeScroll),
		ScrollDepth: depth,
	})
}

// HandleLoad schedules the performance capture. A nil timing means the
// host has no navigation timing and no performance record is produced.
func (c *Collector) HandleLoad(timing *telemetry.NavigationTiming, connection *telemetry.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.opts.TrackPerformance {
		return
	}
	if c.perfTimer != nil {
		c.perfTimer.Stop()
	}
	c.perfTimer = c.clock.AfterFunc(PerformanceDelay, func() {
		c.capturePerformance(timing, connection)
	})
}

func (c *Collector) capturePerformance(timing *telemetry.NavigationTiming, connection *telemetry.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.perfCaptured {
		return
	}
	c.perfCaptured = true

	if timing == nil {
		c.logger.Debug("Navigation timing unavailable, performance record omitted")
		return
	}

	domLoad := timing.DOMProcessing()
	pageLoad := timing.TotalLoad()
	resourceLoad := timing.ResourceLoad()
	event := telemetry.Performance{
		Base:             c.base(telemetry.TypePerformance),
		DOMLoadTime:      &domLoad,
		PageLoadTime:     &pageLoad,
		ResourceLoadTime: &resourceLoad,
		ConnectionType:   "unknown",
	}
	if connection != nil {
		if connection.EffectiveType != "" {
			event.ConnectionType = connection.EffectiveType
		}
		event.EffectiveBandwidth = connection.Downlink
	}
	c.vitals.ApplyTo(&event)
	c.vitals.Reset()

	c.queue.Enqueue(event)
	c.sendImmediately(event)
}

// ReportVital records a web-vital observation. Values known before the
// performance capture are folded into it; later values are sent as an
// enrichment record at the next flush.
func (c *Collector) ReportVital(name string, value float64) error {
	vital, err := telemetry.ParseVital(name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.opts.TrackPerformance {
		return nil
	}
	c.vitals.Report(vital, value)
	return nil
}

// HandleVisibilityChange flushes when the page becomes hidden.
func (c *Collector) HandleVisibilityChange(hidden bool) {
	if !hidden {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.logger.Debug("Page hidden, flushing")
	c.flushLocked()
}

// HandleUnload delivers the page_leave summary through the unload sender.
// It is never queued.
func (c *Collector) HandleUnload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.beacon == nil {
		c.logger.Warn("No unload sender configured, page_leave dropped")
		return
	}

	event := telemetry.PageLeave{
		Base:         c.base(telemetry.TypePageLeave),
		VisitorID:    c.visitorID,
		TimeOnPage:   c.clock.Now().Sub(c.started).Seconds(),
		ScrollDepth:  c.scroll.Max(),
		ScrollEvents: c.scroll.Milestones(),
		ClickCount:   c.clicks.Total(),
	}
	payload, err := json.Marshal(telemetry.Envelope{Events: []telemetry.Event{event}})
	if err != nil {
		c.logger.Error("Failed to encode page_leave", "error", err.Error())
		return
	}
	c.beacon.SendBeacon(payload)
}

// Flush sends everything queued now.
func (c *Collector) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.flushLocked()
}

func (c *Collector) onInterval() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.flushLocked()
	c.intervalTimer = c.clock.AfterFunc(c.opts.FlushInterval, c.onInterval)
}

// flushLocked emits any late vitals, then flushes the queue. c.mu must be
// held.
func (c *Collector) flushLocked() {
	if c.perfCaptured && !c.vitals.Empty() {
		event := telemetry.Performance{
			Base:       c.base(telemetry.TypePerformance),
			Enrichment: true,
		}
		c.vitals.ApplyTo(&event)
		c.vitals.Reset()
		c.queue.Enqueue(event)
	}
	c.queue.Flush()
}

func (c *Collector) deliverBatch(batch []telemetry.Event) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.sender.Send(c.ctx, batch); err != nil {
			c.logger.Warn("Batch send failed, requeueing", "events", len(batch), "error", err.Error())
			c.queue.Requeue(batch)
			return
		}
		c.logger.Debug("Batch sent", "events", len(batch))
	}()
}

func (c *Collector) sendImmediately(event telemetry.Event) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.sender.Send(c.ctx, []telemetry.Event{event}); err != nil {
			c.logger.Warn("Immediate send failed", "type", event.EventType(), "error", err.Error())
		}
	}()
}

// Close stops all timers, flushes what is queued, and waits for in-flight
// sends. Handle calls after Close are ignored.
func (c *Collector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	for _, timer := range []clock.Timer{c.intervalTimer, c.scrollTimer, c.perfTimer} {
		if timer != nil {
			timer.Stop()
		}
	}
	c.flushLocked()
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
	if pending := c.queue.Len(); pending > 0 {
		c.logger.Warn("Collector closed with undelivered events", "events", pending)
		return fmt.Errorf("%d events undelivered", pending)
	}
	c.logger.Info("Collector closed")
	return nil
}

// Wait blocks until every in-flight send has finished.
func (c *Collector) Wait() {
	c.wg.Wait()
}
