// Package metrics exports beacon node traffic as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/simple-beacon/beacon-go/pkg/access"
	"github.com/simple-beacon/beacon-go/pkg/model"
	"github.com/simple-beacon/beacon-go/pkg/wire"
)

// Namespace prefixes every metric name.
const Namespace = "beacon"

// Observer counts access layer traffic. It implements access.Observer.
type Observer struct {
	received *prometheus.CounterVec
	sent     *prometheus.CounterVec
	failed   *prometheus.CounterVec
	state    prometheus.Gauge
}

// NewObserver creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "access",
			Name:      "received_total",
			Help:      "Inbound access messages by opcode and outcome.",
		}, []string{"opcode", "outcome"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "access",
			Name:      "sent_total",
			Help:      "Outbound access messages by opcode and kind.",
		}, []string{"opcode", "kind"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "access",
			Name:      "send_errors_total",
			Help:      "Outbound access messages no bearer accepted.",
		}, []string{"opcode", "kind"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "server",
			Name:      "state",
			Help:      "Current beacon flag (1 = on).",
		}),
	}
	for _, c := range []prometheus.Collector{o.received, o.sent, o.failed, o.state} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// OnReceive counts one inbound message.
func (o *Observer) OnReceive(op access.Opcode, outcome access.Outcome) {
	o.received.WithLabelValues(opcodeLabel(op), outcome.String()).Inc()
}

// OnSend counts one outbound message.
func (o *Observer) OnSend(op access.Opcode, kind access.SendKind, err error) {
	vec := o.sent
	if err != nil {
		vec = o.failed
	}
	vec.WithLabelValues(opcodeLabel(op), kind.String()).Inc()
}

// SetState records the beacon flag.
func (o *Observer) SetState(on bool) {
	if on {
		o.state.Set(1)
	} else {
		o.state.Set(0)
	}
}

// opcodeLabel keeps label cardinality bounded: foreign opcodes share one label.
func opcodeLabel(op access.Opcode) string {
	if op.CompanyID != model.CompanyNordic || !wire.Opcode(op.Code).IsValid() {
		return "other"
	}
	return wire.Opcode(op.Code).String()
}

var _ access.Observer = (*Observer)(nil)
