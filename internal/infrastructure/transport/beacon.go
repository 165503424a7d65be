package transport

import (
	"context"
	"sync"
	"time"
)

// DefaultBeaconTimeout bounds a single unload delivery.
const DefaultBeaconTimeout = 5 * time.Second

// HTTPBeacon is a fire-and-forget sender for payloads that must outlive
// the page. Failures are logged at debug level and otherwise invisible.
type HTTPBeacon struct {
	transport *HTTPTransport
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewHTTPBeacon wraps a transport for unload delivery.
func NewHTTPBeacon(transport *HTTPTransport, timeout time.Duration) *HTTPBeacon {
	if timeout <= 0 {
		timeout = DefaultBeaconTimeout
	}
	return &HTTPBeacon{transport: transport, timeout: timeout}
}

// SendBeacon posts payload in the background and returns immediately.
func (b *HTTPBeacon) SendBeacon(payload []byte) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		if err := b.transport.Post(ctx, payload); err != nil {
			b.transport.logger.Transport().Debug("Beacon delivery failed", "error", err.Error())
		}
	}()
}

// Wait blocks until queued beacons have finished or timed out. A browser
// keeps delivering after the page is gone; a process has to wait.
func (b *HTTPBeacon) Wait() {
	b.wg.Wait()
}
