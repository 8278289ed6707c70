package events

import (
	"sync"

	"github.com/kyj44123-afk/cpla.ai-sub001/internal/models"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type DispatcherConfig struct {
	BufferSize int
	Logger     logrus.FieldLogger
	Registerer prometheus.Registerer
}

// Dispatcher consumes retrieval events off the request path. Publish never
// blocks; when the buffer is full the event is counted and discarded.
type Dispatcher struct {
	config  DispatcherConfig
	log     logrus.FieldLogger
	metrics *metrics

	mu     sync.RWMutex
	closed bool
	events chan models.RetrievalEvent
	done   chan struct{}
}

func NewWithConfig(config DispatcherConfig) *Dispatcher {
	if config.BufferSize == 0 {
		config.BufferSize = 256
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.NewRegistry()
	}

	d := &Dispatcher{
		config:  config,
		log:     logger.OrStandard(config.Logger),
		metrics: newMetrics(config.Registerer),
		events:  make(chan models.RetrievalEvent, config.BufferSize),
		done:    make(chan struct{}),
	}

	go d.run()

	return d
}

// Publish hands ev to the consumer. It is safe to call after Close, in
// which case the event is dropped.
func (d *Dispatcher) Publish(ev models.RetrievalEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.metrics.droppedEvents.Inc()
		return
	}

	select {
	case d.events <- ev:
	default:
		d.metrics.droppedEvents.Inc()
	}
}

// Close stops accepting events and waits for the buffered ones to be
// consumed.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()

	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for ev := range d.events {
		d.record(ev)
	}
}

func (d *Dispatcher) record(ev models.RetrievalEvent) {
	m := d.metrics
	m.retrievals.Inc()
	m.fetchFailures.Add(float64(ev.ExternalDropped))
	m.citations.Observe(float64(ev.Citations))
	m.promptRunes.Observe(float64(ev.PromptRunes))
	m.duration.WithLabelValues("external").Observe(ev.ExternalDuration.Seconds())
	m.duration.WithLabelValues("internal").Observe(ev.InternalDuration.Seconds())
	m.duration.WithLabelValues("total").Observe(ev.TotalDuration.Seconds())

	fields := logrus.Fields{
		"request_id":        ev.RequestID,
		"domains":           ev.DomainTags,
		"keywords":          ev.SearchKeywords,
		"external_refs":     ev.ExternalRefs,
		"external_fetched":  ev.ExternalFetched,
		"external_dropped":  ev.ExternalDropped,
		"external_relevant": ev.ExternalRelevant,
		"internal_hits":     ev.InternalHits,
		"citations":         ev.Citations,
		"prompt_runes":      ev.PromptRunes,
		"duration_ms":       ev.TotalDuration.Milliseconds(),
	}
	if ev.SessionID != "" {
		fields["session_id"] = ev.SessionID
	}

	entry := d.log.WithFields(fields)
	if ev.ExternalErr != "" {
		m.branchErrors.WithLabelValues("external").Inc()
		entry = entry.WithField("external_error", ev.ExternalErr)
	}
	if ev.InternalErr != "" {
		m.branchErrors.WithLabelValues("internal").Inc()
		entry = entry.WithField("internal_error", ev.InternalErr)
	}

	if ev.ExternalErr != "" || ev.InternalErr != "" {
		entry.Warn("Retrieval completed with degraded sources")
		return
	}
	entry.Info("Retrieval completed")
}
