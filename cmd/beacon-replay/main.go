// beacon-replay drives a real collector from a YAML interaction script and
// delivers the resulting telemetry to an ingest endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AtRiskMedia/tractstack-beacon/internal/application/collector"
	"github.com/AtRiskMedia/tractstack-beacon/internal/application/replay"
	"github.com/AtRiskMedia/tractstack-beacon/internal/application/startup"
	"github.com/AtRiskMedia/tractstack-beacon/internal/domain/identity"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/clock"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/observability/logging"
	persisted "github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/persistence/identity"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/security"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/transport"
	"github.com/AtRiskMedia/tractstack-beacon/pkg/config"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	settings := config.Beacon()

	var scriptPath, overlayPath, csrfPath string
	var fast bool
	flagSet := pflag.NewFlagSet("beacon-replay", pflag.ContinueOnError)
	flagSet.StringVarP(&scriptPath, "script", "s", "", "YAML interaction script (required)")
	flagSet.StringVarP(&overlayPath, "config", "c", "", "JSONC file overriding collector settings")
	flagSet.StringVar(&csrfPath, "csrf-path", "/api/analytics/csrf", "path fetched first to obtain the csrftoken cookie (empty to skip)")
	flagSet.BoolVar(&fast, "fast", false, "replay on a simulated clock instead of real time")
	flagSet.StringVar(&settings.BaseURL, "base-url", settings.BaseURL, "origin the endpoint is resolved against")
	flagSet.StringVar(&settings.Endpoint, "endpoint", settings.Endpoint, "ingest endpoint path or URL")
	flagSet.StringVar(&settings.IdentityDSN, "identity-dsn", settings.IdentityDSN, "sqlite path or libsql URL persisting the visitor id (empty for in-memory)")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if scriptPath == "" {
		return errors.New("--script is required")
	}
	if overlayPath != "" {
		if err := settings.ApplyOverlayFile(overlayPath); err != nil {
			return err
		}
	}

	logger, err := startup.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Close()

	script, err := replay.LoadScript(scriptPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	durable, closeStore := openDurableStore(settings, logger)
	defer closeStore()
	resolver := identity.NewResolver(durable, persisted.NewMemoryStore(), security.NewID, logger.Identity())

	delivery := &httpDelivery{ctx: ctx, baseURL: settings.BaseURL, csrfPath: csrfPath, unloadTimeout: settings.UnloadTimeout, logger: logger}

	opts := collector.Options{
		Endpoint:         settings.Endpoint,
		BatchSize:        settings.BatchSize,
		FlushInterval:    settings.FlushInterval,
		TrackClicks:      settings.TrackClicks,
		TrackScroll:      settings.TrackScroll,
		TrackMouse:       settings.TrackMouse,
		TrackPerformance: settings.TrackPerformance,
		Compress:         settings.Compress,
	}

	var clk clock.Clock = clock.Real()
	wait := replay.Sleep
	if fast {
		fake := clock.NewFake(time.Now())
		clk, wait = fake, replay.Advance(fake)
	}

	result, err := replay.Run(ctx, script, opts, collector.Deps{
		Transport: delivery.build,
		Identity:  resolver,
		Logger:    logger,
	}, clk, wait)
	delivery.wait()
	if err != nil {
		return err
	}

	logger.System().Info("Replay complete",
		"visitorId", logging.MaskID(result.VisitorID),
		"sessionId", logging.MaskID(result.SessionID),
		"steps", result.Steps,
		"duration", result.Duration,
		"endpoint", delivery.endpoint(),
	)
	return nil
}

// openDurableStore falls back to no durable store, and so an ephemeral
// visitor id, when the configured one cannot be opened.
func openDurableStore(settings config.BeaconSettings, logger *logging.ChanneledLogger) (identity.Store, func()) {
	if settings.IdentityDSN == "" {
		return persisted.NewMemoryStore(), func() {}
	}
	store, err := persisted.OpenSQLStore(settings.IdentityDSN, settings.IdentityAuthToken, logger)
	if err != nil {
		logger.Identity().Warn("Durable identity store unavailable", "error", err.Error())
		return nil, func() {}
	}
	return store, func() { store.Close() }
}

// httpDelivery builds the HTTP transport once the collector has settled
// its endpoint and compression options.
type httpDelivery struct {
	ctx           context.Context
	baseURL       string
	csrfPath      string
	unloadTimeout time.Duration
	logger        *logging.ChanneledLogger

	sender *transport.HTTPTransport
	beacon *transport.HTTPBeacon
}

func (d *httpDelivery) build(endpoint string, compress bool) (collector.Sender, collector.UnloadSender, error) {
	resolved, err := transport.ResolveEndpoint(d.baseURL, endpoint)
	if err != nil {
		return nil, nil, err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := transport.NewCookieTokenSource(jar, resolved)
	if err != nil {
		return nil, nil, err
	}

	sender, err := transport.NewHTTPTransport(transport.Config{
		Endpoint: resolved,
		Compress: compress,
		Client:   &http.Client{Jar: jar},
		Tokens:   tokens,
	}, d.logger)
	if err != nil {
		return nil, nil, err
	}

	if d.csrfPath != "" {
		if err := sender.Prime(d.ctx, d.csrfPath); err != nil {
			d.logger.Transport().Warn("Could not obtain CSRF token, sending without it", "error", err.Error())
		}
	}
	d.sender = sender
	d.beacon = transport.NewHTTPBeacon(sender, d.unloadTimeout)
	return d.sender, d.beacon, nil
}

// wait lets outstanding unload beacons finish.
func (d *httpDelivery) wait() {
	if d.beacon != nil {
		d.beacon.Wait()
	}
}

func (d *httpDelivery) endpoint() string {
	if d.sender == nil {
		return ""
	}
	return d.sender.Endpoint()
}
