package metrics

import "github.com/prometheus/client_golang/prometheus"

// ShipmentMetrics counts state machine transitions by target status.
type ShipmentMetrics struct {
	transitions *prometheus.CounterVec
}

// NewShipmentMetrics registers the shipment metrics on the provided registerer.
func NewShipmentMetrics(reg prometheus.Registerer) *ShipmentMetrics {
	if reg == nil {
		return &ShipmentMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shipment_transitions_total",
		Help: "Shipment status transitions by target status.",
	}, []string{"to"})
	reg.MustRegister(transitions)
	return &ShipmentMetrics{transitions: transitions}
}

// IncTransition records one transition into the named status.
func (s *ShipmentMetrics) IncTransition(to string) {
	if s == nil || s.transitions == nil {
		return
	}
	s.transitions.WithLabelValues(normalizeLabel(to)).Inc()
}
