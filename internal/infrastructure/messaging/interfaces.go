// Package messaging fans received telemetry out to live tail subscribers.
package messaging

import "github.com/AtRiskMedia/tractstack-beacon/internal/domain/telemetry"

// Broadcaster publishes accepted batches to whoever is watching.
type Broadcaster interface {
	Publish(events []telemetry.Event)
	ClientCount() int
}
