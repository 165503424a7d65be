// Package services provides the sink's ingest orchestration
package services

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/AtRiskMedia/tractstack-beacon/internal/domain/telemetry"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/observability/logging"
)

// ErrInvalidEnvelope is returned for envelopes that carry no events.
var ErrInvalidEnvelope = errors.New("invalid telemetry envelope")

// DefaultDedupWindow is how many recent event ids the sink remembers.
const DefaultDedupWindow = 4096

// IngestResult summarizes one accepted envelope.
type IngestResult struct {
	Processed  int                    `json:"processed"`
	Rejected   int                    `json:"rejected"`
	Duplicates int                    `json:"duplicates"`
	ByType     map[telemetry.Type]int `json:"byType"`
}

// IngestStats are running totals since the sink started.
type IngestStats struct {
	Envelopes  int64 `json:"envelopes"`
	Records    int64 `json:"records"`
	Rejected   int64 `json:"rejected"`
	Duplicates int64 `json:"duplicates"`
}

// IngestService validates received envelopes, logs them, and relays new
// records to live tail viewers. Nothing is stored.
type IngestService struct {
	broadcaster messaging.Broadcaster
	logger      *logging.ChanneledLogger

	envelopes  atomic.Int64
	records    atomic.Int64
	rejected   atomic.Int64
	duplicates atomic.Int64

	mu     sync.Mutex
	seen   map[string]struct{}
	order  []string
	next   int
	window int
}

// NewIngestService creates an ingest service. broadcaster may be nil.
func NewIngestService(broadcaster messaging.Broadcaster, window int, logger *logging.ChanneledLogger) *IngestService {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &IngestService{
		broadcaster: broadcaster,
		logger:      logger,
		seen:        make(map[string]struct{}, window),
		order:       make([]string, window),
		window:      window,
	}
}

// Ingest processes one envelope. Records that fail to decode are skipped
// and counted; they do not fail the envelope.
func (s *IngestService) Ingest(envelope telemetry.RawEnvelope) (*IngestResult, error) {
	if len(envelope.Events) == 0 {
		return nil, ErrInvalidEnvelope
	}

	result := &IngestResult{
		Processed: len(envelope.Events),
		ByType:    make(map[telemetry.Type]int),
	}
	fresh := make([]telemetry.Event, 0, len(envelope.Events))

	for _, raw := range envelope.Events {
		event, err := telemetry.DecodeEvent(raw)
		if err != nil {
			result.Rejected++
			s.logger.Sink().Warn("Skipping undecodable record", "error", err.Error())
			continue
		}
		result.ByType[event.EventType()]++

		if !s.remember(event.Header().EventID) {
			result.Duplicates++
			continue
		}
		fresh = append(fresh, event)

		header := event.Header()
		s.logger.Sink().Debug("Record received",
			"type", header.Type,
			"eventId", header.EventID,
			"sessionId", logging.MaskID(header.SessionID),
			"pageUrl", header.PageURL,
		)
	}

	s.envelopes.Add(1)
	s.records.Add(int64(result.Processed))
	s.rejected.Add(int64(result.Rejected))
	s.duplicates.Add(int64(result.Duplicates))

	if s.broadcaster != nil && len(fresh) > 0 {
		s.broadcaster.Publish(fresh)
	}

	s.logger.Sink().Info("Envelope accepted",
		"processed", result.Processed,
		"rejected", result.Rejected,
		"duplicates", result.Duplicates,
	)
	return result, nil
}

// Stats returns the running totals.
func (s *IngestService) Stats() IngestStats {
	return IngestStats{
		Envelopes:  s.envelopes.Load(),
		Records:    s.records.Load(),
		Rejected:   s.rejected.Load(),
		Duplicates: s.duplicates.Load(),
	}
}

// remember records id and reports whether it was new. Records without an
// id are always treated as new.
func (s *IngestService) remember(id string) bool {
	if id == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[id]; ok {
		return false
	}
	if evicted := s.order[s.next]; evicted != "" {
		delete(s.seen, evicted)
	}
	s.order[s.next] = id
	s.next = (s.next + 1) % s.window
	s.seen[id] = struct{}{}
	return true
}
