package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// scenarioMethod ключ сводки по сценариям целиком.
const scenarioMethod = "scenario"

type latencySummary struct {
	Min  float64 `json:"min"`
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
	Max  float64 `json:"max"`
}

// callStats сводка по одному методу API или по сценариям целиком.
type callStats struct {
	Calls     int64            `json:"calls"`
	OK        int64            `json:"ok"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt      time.Time            `json:"started_at"`
	ElapsedSeconds float64              `json:"elapsed_seconds"`
	RPS            float64              `json:"rps"`
	Scenarios      callStats            `json:"scenarios"`
	Methods        map[string]callStats `json:"methods"`
}

type sample struct {
	latency time.Duration
	code    int
}

// collector копит сырые замеры; агрегаты считаются один раз в buildReport.
type collector struct {
	mu      sync.Mutex
	samples map[string][]sample
}

func newCollector() *collector {
	return &collector{samples: make(map[string][]sample)}
}

// record учитывает вызов; code 0 означает сетевую ошибку без HTTP-ответа.
func (c *collector) record(method string, latency time.Duration, code int) {
	c.mu.Lock()
	c.samples[method] = append(c.samples[method], sample{latency: latency, code: code})
	c.mu.Unlock()
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:      startedAt.UTC(),
		ElapsedSeconds: duration.Seconds(),
		Methods:        make(map[string]callStats, len(c.samples)),
	}
	for name, samples := range c.samples {
		if name == scenarioMethod {
			result.Scenarios = summarize(samples)
			continue
		}
		result.Methods[name] = summarize(samples)
	}
	if duration > 0 {
		result.RPS = float64(result.Scenarios.Calls) / duration.Seconds()
	}
	return result
}

func summarize(samples []sample) callStats {
	out := callStats{Codes: make(map[string]int64)}
	latencies := make([]float64, 0, len(samples))
	for _, s := range samples {
		out.Calls++
		if success(s.code) {
			out.OK++
		} else {
			out.Failed++
		}
		out.Codes[codeLabel(s.code)]++
		latencies = append(latencies, float64(s.latency.Microseconds())/1000)
	}
	if out.Calls > 0 {
		out.ErrorRate = float64(out.Failed) / float64(out.Calls)
	}
	out.LatencyMs = buildLatencySummary(latencies)
	return out
}

func codeLabel(code int) string {
	if code == 0 {
		return "transport_error"
	}
	return strconv.Itoa(code)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return latencySummary{
		Min:  sorted[0],
		Mean: sum / float64(len(sorted)),
		P50:  percentile(sorted, 50),
		P95:  percentile(sorted, 95),
		P99:  percentile(sorted, 99),
		Max:  sorted[len(sorted)-1],
	}
}

// percentile интерполирует между соседними рангами отсортированной выборки.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := p / 100 * float64(len(sorted)-1)
	i := int(rank)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(i)
	return sorted[i] + (sorted[i+1]-sorted[i])*frac
}

func printReport(w io.Writer, result report, cfg config) {
	fmt.Fprintf(w, "Load test summary (%s, %s)\n", cfg.mode, runTarget(cfg))
	fmt.Fprintf(w, "elapsed=%.2fs rps=%.2f\n", result.ElapsedSeconds, result.RPS)
	printStats(w, "scenarios", result.Scenarios)
	for _, name := range slices.Sorted(maps.Keys(result.Methods)) {
		printStats(w, name, result.Methods[name])
	}
}

func printStats(w io.Writer, name string, s callStats) {
	l := s.LatencyMs
	fmt.Fprintf(w, "%s: calls=%d ok=%d failed=%d error_rate=%.4f latency_ms(min=%.2f mean=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f)\n",
		name, s.Calls, s.OK, s.Failed, s.ErrorRate, l.Min, l.Mean, l.P50, l.P95, l.P99, l.Max)
}

func runTarget(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return fmt.Sprintf("count:%d", cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	default:
		return fmt.Sprintf("duration:%s", cfg.duration)
	}
}

// writeJSONReport пишет отчёт в файл внутри текущего каталога.
func writeJSONReport(path string, result report) error {
	clean := filepath.Clean(path)
	switch {
	case clean == "." || clean == string(filepath.Separator):
		return errors.New("output path must point to a file")
	case clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)):
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(clean, append(raw, '\n'), 0o600)
}
