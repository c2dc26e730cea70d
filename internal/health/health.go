// Package health собирает probes зависимостей сервиса и отдаёт их как
// /healthz, /readyz и /livez.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status агрегированный статус сервиса или одной зависимости.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const defaultProbeTimeout = 2 * time.Second

// Probe проверяет одну зависимость. Сбой некритичного probe понижает
// статус только до degraded.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// Result итог одного probe.
type Result struct {
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Report тело ответа /healthz.
type Report struct {
	Status        Status            `json:"status"`
	Version       string            `json:"version,omitempty"`
	CheckedAt     time.Time         `json:"checked_at"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Components    map[string]Result `json:"components,omitempty"`
}

// Registry хранит probes и вычисляет общий статус.
type Registry struct {
	mu      sync.RWMutex
	probes  map[string]Probe
	version string
	started time.Time
	timeout time.Duration
}

// NewRegistry создаёт пустой реестр probes.
func NewRegistry(version string) *Registry {
	return &Registry{
		probes:  make(map[string]Probe),
		version: version,
		started: time.Now(),
		timeout: defaultProbeTimeout,
	}
}

// Add регистрирует probe; probe с тем же именем заменяется.
func (r *Registry) Add(p Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[p.Name] = p
}

// Names возвращает имена зарегистрированных probes по алфавиту.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.probes))
	for name := range r.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate запускает все probes параллельно с общим таймаутом.
func (r *Registry) Evaluate(ctx context.Context) Report {
	r.mu.RLock()
	probes := make([]Probe, 0, len(r.probes))
	for _, p := range r.probes {
		probes = append(probes, p)
	}
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]Result, len(probes))
		g       errgroup.Group
	)
	for _, p := range probes {
		g.Go(func() error {
			res := runProbe(ctx, p)
			mu.Lock()
			results[p.Name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return Report{
		Status:        aggregate(results),
		Version:       r.version,
		CheckedAt:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(r.started).Seconds()),
		Components:    results,
	}
}

func runProbe(ctx context.Context, p Probe) Result {
	start := time.Now()
	err := p.Check(ctx)
	res := Result{Status: StatusHealthy, LatencyMs: time.Since(start).Milliseconds()}
	if err == nil {
		return res
	}

	res.Error = err.Error()
	res.Status = StatusDegraded
	if p.Critical {
		res.Status = StatusUnhealthy
	}
	return res
}

func aggregate(results map[string]Result) Status {
	overall := StatusHealthy
	for _, res := range results {
		switch res.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// ServeHTTP отдаёт полный отчёт; 503 только при unhealthy.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	report := r.Evaluate(req.Context())

	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// Ready отвечает 503, пока хотя бы один критичный probe падает.
func (r *Registry) Ready(w http.ResponseWriter, req *http.Request) {
	if r.Evaluate(req.Context()).Status == StatusUnhealthy {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Live liveness probe: процесс жив, пока отвечает.
func Live(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// BacklogProbe падает, когда очередь длиннее limit. pending возвращает
// текущую длину очереди.
func BacklogProbe(name string, limit int, pending func(ctx context.Context) (int, error)) Probe {
	return Probe{
		Name: name,
		Check: func(ctx context.Context) error {
			n, err := pending(ctx)
			if err != nil {
				return err
			}
			if n > limit {
				return fmt.Errorf("backlog %d exceeds %d", n, limit)
			}
			return nil
		},
	}
}
