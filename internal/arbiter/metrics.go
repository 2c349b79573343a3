package arbiter

import "github.com/prometheus/client_golang/prometheus"

// ownerChanges counts owner hand-offs per symlink, the arbiter-side
// observability counter named in the expanded callbacks section.
type metrics struct {
	ownerChanges prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (m *metrics) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "devnetd",
		Subsystem: "arbiter",
		Name:      "owner_changes_total",
		Help:      "Total number of symlink owner hand-offs.",
	})
	reg.MustRegister(c)

	return &metrics{ownerChanges: c}
}
