package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "shopbot"

type Metrics struct {
	Updates       *prometheus.CounterVec
	OrdersCreated prometheus.Counter
	Notifications *prometheus.CounterVec
}

// New registers the bot collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Inbound updates processed, by kind.",
		}, []string{"kind"}),
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders committed by checkout.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Operator notifications, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.Updates, m.OrdersCreated, m.Notifications)
	return m
}

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() (*prometheus.Registry, error) {
	r := prometheus.NewRegistry()
	if err := r.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := r.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	return r, nil
}
