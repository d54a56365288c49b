package command

import "github.com/prometheus/client_golang/prometheus"

const (
	resultOK       = "ok"
	resultFailed   = "failed"
	resultRejected = "rejected"
)

type Metrics struct {
	Commands *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pumpwatch",
			Name:      "commands_total",
			Help:      "Operator commands by name and result (ok, failed, rejected).",
		}, []string{"command", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Commands)
	}
	return m
}

func (m *Metrics) observe(name, result string) {
	if m == nil {
		return
	}
	if !Valid(name) && name != "reboot" {
		name = "invalid" // keep label cardinality bounded
	}
	m.Commands.WithLabelValues(name, result).Inc()
}
