package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/AtRiskMedia/tractstack-beacon/internal/application/collector"
	"github.com/AtRiskMedia/tractstack-beacon/internal/domain/telemetry"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/clock"
)

// Waiter lets time pass between steps. Against the real clock it sleeps;
// against a fake clock it advances.
type Waiter func(ctx context.Context, d time.Duration) error

// Sleep is the Waiter for the real clock.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Advance returns a Waiter that moves a fake clock.
func Advance(fake *clock.FakeClock) Waiter {
	return func(_ context.Context, d time.Duration) error {
		fake.Advance(d)
		return nil
	}
}

// Result summarizes a replayed visit.
type Result struct {
	VisitorID string
	SessionID string
	Steps     int
	Duration  time.Duration
}

// Run plays script through a new collector. deps.Host and deps.Clock are
// replaced by the script's page and the given clock. The collector is
// closed before Run returns.
func Run(ctx context.Context, script *Script, opts collector.Options, deps collector.Deps, clk clock.Clock, wait Waiter) (*Result, error) {
	host := script.Host()
	deps.Host = host
	deps.Clock = clk

	c, err := collector.New(ctx, opts, deps)
	if err != nil {
		return nil, err
	}

	result := &Result{VisitorID: c.VisitorID(), SessionID: c.SessionID()}
	var elapsed time.Duration
	for i, step := range script.Steps {
		if err := wait(ctx, step.Offset()-elapsed); err != nil {
			c.Close()
			return result, fmt.Errorf("replay interrupted before step %d: %w", i, err)
		}
		elapsed = step.Offset()

		if err := apply(c, host, step); err != nil {
			c.Close()
			return result, fmt.Errorf("step %d: %w", i, err)
		}
		result.Steps++
	}
	result.Duration = elapsed

	if err := c.Close(); err != nil {
		return result, err
	}
	return result, nil
}

func apply(c *collector.Collector, host *collector.StaticHost, step Step) error {
	switch step.Action {
	case ActionClick:
		c.HandleClick(collector.ClickInteraction{
			Position: telemetry.Point{X: step.X, Y: step.Y},
			Target:   step.Target,
		})
	case ActionScroll:
		host.SetScroll(step.ScrollTop)
		c.HandleScroll()
	case ActionLoad:
		c.HandleLoad(step.Timing, step.Connection)
	case ActionVital:
		return c.ReportVital(step.Name, step.Value)
	case ActionHide:
		c.HandleVisibilityChange(true)
	case ActionShow:
		c.HandleVisibilityChange(false)
	case ActionFlush:
		c.Flush()
	case ActionUnload:
		c.HandleUnload()
	}
	return nil
}
