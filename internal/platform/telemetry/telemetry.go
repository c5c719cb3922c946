// Package telemetry collects request and change-feed metrics and serves them
// in the Prometheus text exposition format.
package telemetry

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/organlink/organlink/internal/platform/events"
)

// ---------------------------------------------------------------------------
// Histogram
// ---------------------------------------------------------------------------

// durationBuckets are request duration bucket boundaries in seconds.
var durationBuckets = []float64{0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0}

// histogram stores non-cumulative bucket counts; cumulative counts are
// computed at export time.
type histogram struct {
	mu      sync.Mutex
	buckets []int64
	count   int64
	sum     uint64 // math.Float64bits
}

func newHistogram() *histogram {
	return &histogram{buckets: make([]int64, len(durationBuckets))}
}

func (h *histogram) observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	for {
		old := atomic.LoadUint64(&h.sum)
		if atomic.CompareAndSwapUint64(&h.sum, old, math.Float64bits(math.Float64frombits(old)+v)) {
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range durationBuckets {
		if v <= b {
			h.buckets[i]++
			return
		}
	}
}

func (h *histogram) cumulative() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int64, len(h.buckets))
	var running int64
	for i, c := range h.buckets {
		running += c
		out[i] = running
	}
	return out
}

// ---------------------------------------------------------------------------
// Counters
// ---------------------------------------------------------------------------

type counterVec struct {
	mu    sync.RWMutex
	items map[string]*int64
}

func newCounterVec() *counterVec {
	return &counterVec{items: make(map[string]*int64)}
}

func (v *counterVec) add(key string, delta int64) {
	v.mu.RLock()
	p, ok := v.items[key]
	v.mu.RUnlock()
	if !ok {
		v.mu.Lock()
		if p, ok = v.items[key]; !ok {
			p = new(int64)
			v.items[key] = p
		}
		v.mu.Unlock()
	}
	atomic.AddInt64(p, delta)
}

func (v *counterVec) get(key string) int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if p, ok := v.items[key]; ok {
		return atomic.LoadInt64(p)
	}
	return 0
}

func (v *counterVec) sortedKeys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.items))
	for k := range v.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// GaugeFunc is sampled on every scrape.
type GaugeFunc func() int64

type gauge struct {
	name, help string
	fn         GaugeFunc
}

// Provider holds every metric the server exports. It implements
// events.Publisher so it can count change-feed traffic behind a Fanout.
type Provider struct {
	histMu    sync.RWMutex
	durations map[string]*histogram // method|route|status
	requests  *counterVec           // method|route|status
	events    *counterVec           // event type
	active    int64
	gaugesMu  sync.RWMutex
	gauges    []gauge
	startedAt time.Time
}

func NewProvider() *Provider {
	return &Provider{
		durations: make(map[string]*histogram),
		requests:  newCounterVec(),
		events:    newCounterVec(),
		startedAt: time.Now(),
	}
}

// LabelsKey builds the key used for per-route request metrics.
func LabelsKey(method, route, status string) string {
	return method + "|" + route + "|" + status
}

// RegisterGauge adds a gauge sampled at scrape time. name must be a valid
// Prometheus metric name.
func (p *Provider) RegisterGauge(name, help string, fn GaugeFunc) {
	p.gaugesMu.Lock()
	defer p.gaugesMu.Unlock()
	p.gauges = append(p.gauges, gauge{name: name, help: help, fn: fn})
}

// Publish counts the event by type. It never fails.
func (p *Provider) Publish(_ context.Context, event events.Event) error {
	p.events.add(event.Type, 1)
	return nil
}

// EventCount returns how many events of eventType have been published.
func (p *Provider) EventCount(eventType string) int64 {
	return p.events.get(eventType)
}

// RequestCount returns how many requests matched the labels.
func (p *Provider) RequestCount(method, route, status string) int64 {
	return p.requests.get(LabelsKey(method, route, status))
}

func (p *Provider) histogramFor(key string) *histogram {
	p.histMu.RLock()
	h, ok := p.durations[key]
	p.histMu.RUnlock()
	if ok {
		return h
	}
	p.histMu.Lock()
	defer p.histMu.Unlock()
	if h, ok = p.durations[key]; !ok {
		h = newHistogram()
		p.durations[key] = h
	}
	return h
}

// Middleware records request counts and durations labeled by route pattern,
// so /api/v1/matches/:id is one series regardless of the id.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&p.active, 1)
			start := time.Now()

			err := next(c)

			atomic.AddInt64(&p.active, -1)
			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			key := LabelsKey(c.Request().Method, route, strconv.Itoa(status))
			p.requests.add(key, 1)
			p.histogramFor(key).observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves every metric in the Prometheus text format.
func (p *Provider) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		b.WriteString("# HELP http_requests_total HTTP requests by method, route and status.\n")
		b.WriteString("# TYPE http_requests_total counter\n")
		for _, key := range p.requests.sortedKeys() {
			fmt.Fprintf(&b, "http_requests_total{%s} %d\n", routeLabels(key), p.requests.get(key))
		}
		b.WriteByte('\n')

		b.WriteString("# HELP http_request_duration_seconds HTTP request latency.\n")
		b.WriteString("# TYPE http_request_duration_seconds histogram\n")
		p.histMu.RLock()
		keys := make([]string, 0, len(p.durations))
		for k := range p.durations {
			keys = append(keys, k)
		}
		p.histMu.RUnlock()
		sort.Strings(keys)
		for _, key := range keys {
			writeHistogram(&b, "http_request_duration_seconds", routeLabels(key), p.histogramFor(key))
		}
		b.WriteByte('\n')

		b.WriteString("# HELP http_requests_in_flight Requests currently being served.\n")
		b.WriteString("# TYPE http_requests_in_flight gauge\n")
		fmt.Fprintf(&b, "http_requests_in_flight %d\n\n", atomic.LoadInt64(&p.active))

		b.WriteString("# HELP organlink_events_total Change-feed events published by type.\n")
		b.WriteString("# TYPE organlink_events_total counter\n")
		for _, t := range p.events.sortedKeys() {
			fmt.Fprintf(&b, "organlink_events_total{type=%q} %d\n", t, p.events.get(t))
		}
		b.WriteByte('\n')

		p.gaugesMu.RLock()
		gauges := append([]gauge(nil), p.gauges...)
		p.gaugesMu.RUnlock()
		for _, g := range gauges {
			fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", g.name, g.help, g.name, g.name, g.fn())
		}

		fmt.Fprintf(&b, "# HELP process_uptime_seconds Seconds since the server started.\n# TYPE process_uptime_seconds gauge\nprocess_uptime_seconds %g\n",
			time.Since(p.startedAt).Seconds())

		return c.Blob(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
	}
}

func routeLabels(key string) string {
	parts := strings.SplitN(key, "|", 3)
	if len(parts) != 3 {
		return ""
	}
	return fmt.Sprintf("method=%q,route=%q,status=%q", parts[0], parts[1], parts[2])
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulative()
	for i, le := range durationBuckets {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, le, cum[i])
	}
	count := atomic.LoadInt64(&h.count)
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, count)
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, math.Float64frombits(atomic.LoadUint64(&h.sum)))
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, count)
}
