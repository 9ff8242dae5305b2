package modules

import (
	"context"
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
)

var (
	domainEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resource_cloud",
			Name:      "domain_events_total",
			Help:      "Committed domain events, by type",
		},
		[]string{"type"},
	)

	stateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resource_cloud",
			Subsystem: "instance",
			Name:      "state_transitions_total",
			Help:      "Instance state transitions, by source and target state",
		},
		[]string{"from", "to"},
	)
)

func init() {
	prometheus.MustRegister(domainEventsTotal, stateTransitionsTotal)
}

var observedEvents = []domain.EventType{
	domain.EventInstanceCreated,
	domain.EventInstanceStateChanged,
	domain.EventInstanceDeletionRequested,
	domain.EventEnvironmentArchived,
	domain.EventQuotaUpdated,
}

// RegisterEventMetrics counts the domain events dispatched on d.
func RegisterEventMetrics(d *domain.EventDispatcher) {
	d.Register(countEvent, observedEvents...)
}

func countEvent(_ context.Context, e *domain.DomainEvent) error {
	domainEventsTotal.WithLabelValues(string(e.EventType)).Inc()
	if e.EventType != domain.EventInstanceStateChanged {
		return nil
	}
	var p domain.StateChangedPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return err
	}
	stateTransitionsTotal.WithLabelValues(string(p.From), string(p.To)).Inc()
	return nil
}
