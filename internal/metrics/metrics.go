// Package metrics 票据生命周期的 Prometheus 指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cas"

// Metrics 票据相关指标。零值指针上的方法调用是安全的空操作
type Metrics struct {
	registry *prometheus.Registry

	ticketsIssued *prometheus.CounterVec
	validations   *prometheus.CounterVec
	logins        *prometheus.CounterVec
	logouts       prometheus.Counter
	cascaded      prometheus.Counter
	swept         prometheus.Counter
}

// New 创建指标并注册到独立的 Registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticketsIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ticket",
				Name:      "issued_total",
				Help:      "Total number of tickets issued",
			},
			[]string{"kind"},
		),
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ticket",
				Name:      "validations_total",
				Help:      "Total number of service ticket validations by result",
			},
			[]string{"result"},
		),
		logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "login",
				Name:      "attempts_total",
				Help:      "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		logouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "logout",
				Name:      "total",
				Help:      "Total number of single logouts",
			},
		),
		cascaded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ticket",
				Name:      "cascade_deleted_total",
				Help:      "Total number of service tickets removed by TGT revocation",
			},
		),
		swept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ticket",
				Name:      "swept_total",
				Help:      "Total number of expired tickets removed by the sweeper",
			},
		),
	}

	m.registry.MustRegister(
		m.ticketsIssued,
		m.validations,
		m.logins,
		m.logouts,
		m.cascaded,
		m.swept,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler 返回 /metrics 的 HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回指标 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// TicketIssued 记录签发一张票据
func (m *Metrics) TicketIssued(kind string) {
	if m == nil {
		return
	}
	m.ticketsIssued.WithLabelValues(kind).Inc()
}

// Validation 记录一次 ST 校验结果
func (m *Metrics) Validation(result string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(result).Inc()
}

// Login 记录一次登录尝试
func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// Logout 记录一次登出及级联删除的 ST 数量
func (m *Metrics) Logout(cascaded int) {
	if m == nil {
		return
	}
	m.logouts.Inc()
	m.Cascaded(cascaded)
}

// Cascaded 记录级联删除的 ST 数量
func (m *Metrics) Cascaded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cascaded.Add(float64(n))
}

// Swept 记录清理掉的过期票据数量
func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}
