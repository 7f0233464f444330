package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/jdwpmux/internal/protocol/packet"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jdwpmux",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jdwpmux",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	sessionPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jdwpmux",
			Subsystem: "session",
			Name:      "packets_total",
			Help:      "JDWP packets seen by shared sessions.",
		},
		[]string{"pid", "direction", "kind"},
	)
	sessionBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jdwpmux",
			Subsystem: "session",
			Name:      "bytes_total",
			Help:      "JDWP bytes (header and payload) seen by shared sessions.",
		},
		[]string{"pid", "direction"},
	)
	sessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jdwpmux",
			Subsystem: "session",
			Name:      "open",
			Help:      "Shared sessions with an attached monitor that are not closed yet.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, sessionPackets, sessionBytes, sessionsOpen)
	})
}

// RecordHTTPRequest counts one request served by the metrics endpoint.
func RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	RegisterMetrics()
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

const (
	DirectionSend    = "send"
	DirectionReceive = "receive"
)

// SessionMonitor counts packets of one shared session.
type SessionMonitor struct {
	pid       string
	closeOnce sync.Once
}

func NewSessionMonitor(pid int) *SessionMonitor {
	RegisterMetrics()
	sessionsOpen.Inc()
	return &SessionMonitor{pid: strconv.Itoa(pid)}
}

func (m *SessionMonitor) OnSend(p packet.Packet) {
	m.record(DirectionSend, p)
}

func (m *SessionMonitor) OnReceive(p packet.Packet) {
	m.record(DirectionReceive, p)
}

func (m *SessionMonitor) Close() error {
	m.closeOnce.Do(func() {
		sessionsOpen.Dec()
	})
	return nil
}

func (m *SessionMonitor) record(direction string, p packet.Packet) {
	sessionPackets.WithLabelValues(m.pid, direction, packetKind(p)).Inc()
	sessionBytes.WithLabelValues(m.pid, direction).Add(float64(p.Length))
}

func packetKind(p packet.Packet) string {
	if p.IsReply() {
		return "reply"
	}
	if set, _ := p.CmdSet(); set == 0xc7 {
		return "ddm"
	}
	return "command"
}
