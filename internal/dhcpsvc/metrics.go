package dhcpsvc

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the server's Prometheus counters, per the observability
// component named in the callbacks section of the expanded specification.
type metrics struct {
	leasesIssued  prometheus.Counter
	leasesExpired prometheus.Counter
	naksSent      prometheus.Counter
	declines      prometheus.Counter
	dropped       prometheus.Counter
}

// newMetrics registers and returns a fresh set of counters under reg.  If
// reg is nil, a private [prometheus.NewRegistry] is used instead of the
// global default registerer, so that constructing more than one *Server in
// a process (or in a test binary) never collides on metric registration;
// callers that want these counters scraped globally pass their own
// registerer.
func newMetrics(reg prometheus.Registerer, ifaceName string) (m *metrics) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	labels := prometheus.Labels{"interface": ifaceName}

	factory := func(name, help string) (c prometheus.Counter) {
		c = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "devnetd",
			Subsystem:   "dhcp",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		reg.MustRegister(c)

		return c
	}

	return &metrics{
		leasesIssued:  factory("leases_issued_total", "Total number of leases issued via ACK."),
		leasesExpired: factory("leases_expired_total", "Total number of leases removed by the sweep."),
		naksSent:      factory("naks_sent_total", "Total number of NAK replies sent."),
		declines:      factory("declines_total", "Total number of DECLINE messages received."),
		dropped:       factory("dropped_total", "Total number of requests silently dropped."),
	}
}
