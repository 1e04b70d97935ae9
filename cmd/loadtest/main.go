// loadtest генерирует нагрузку на HTTP API сервиса: создаёт заказы,
// оплачивает и отменяет их по выбранному сценарию, собирает latency
// статистику по каждому endpoint-у и печатает итоговый отчёт.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	idempotencyHeader = "Idempotency-Key"
	defaultPriceMinor = int64(59900)
)

type loadMode string

const (
	modeCreate          loadMode = "create"
	modeCreatePay       loadMode = "create-pay"
	modeCreatePayCancel loadMode = "create-pay-cancel"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	currency    string
	bookID      string
	priceMinor  int64
	customerTag string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type endpointReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time                 `json:"started_at"`
	DurationSeconds   float64                   `json:"duration_seconds"`
	TotalScenarios    int64                     `json:"total_scenarios"`
	SuccessScenarios  int64                     `json:"success_scenarios"`
	FailedScenarios   int64                     `json:"failed_scenarios"`
	ErrorRate         float64                   `json:"error_rate"`
	RPS               float64                   `json:"rps"`
	ScenarioLatencyMs latencySummary            `json:"scenario_latency_ms"`
	Endpoints         map[string]endpointReport `json:"endpoints"`
}

type endpointStats struct {
	calls     int64
	success   int64
	failed    int64
	statuses  map[string]int64
	latencies []float64
}

type collector struct {
	mu        sync.Mutex
	endpoints map[string]*endpointStats
}

func newCollector() *collector {
	return &collector{endpoints: make(map[string]*endpointStats)}
}

func (c *collector) record(endpoint string, latency time.Duration, status int, callErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.endpoints[endpoint]
	if !ok {
		stats = &endpointStats{statuses: make(map[string]int64)}
		c.endpoints[endpoint] = stats
	}

	stats.calls++
	if callErr == nil && status < 400 {
		stats.success++
	} else {
		stats.failed++
	}
	if callErr != nil {
		stats.statuses["transport_error"]++
	} else {
		stats.statuses[fmt.Sprintf("%d", status)]++
	}
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Endpoints:       make(map[string]endpointReport, len(c.endpoints)),
	}

	if scenario := c.endpoints["scenario"]; scenario != nil {
		result.TotalScenarios = scenario.calls
		result.SuccessScenarios = scenario.success
		result.FailedScenarios = scenario.failed
		result.ErrorRate = ratio(scenario.failed, scenario.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenario.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.endpoints {
		statusesCopy := make(map[string]int64, len(stats.statuses))
		for status, count := range stats.statuses {
			statusesCopy[status] = count
		}
		result.Endpoints[name] = endpointReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Statuses:  statusesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string
	var timeoutValue string
	var durationValue string

	flag.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "service base URL")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-pay | create-pay-cancel")
	flag.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for create-pay mode (0..100)")
	flag.StringVar(&cfg.currency, "currency", "RUB", "order currency")
	flag.StringVar(&cfg.bookID, "book-id", "book-load", "order item book id")
	flag.Int64Var(&cfg.priceMinor, "price-minor", defaultPriceMinor, "order item price in minor units")
	flag.StringVar(&cfg.customerTag, "customer-tag", "load", "customer id prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return cfg, errors.New("base-url is required")
	}
	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.priceMinor <= 0 {
		return cfg, errors.New("price-minor must be > 0")
	}
	if cfg.cancelRate < 0 || cfg.cancelRate > 100 {
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	}
	if strings.TrimSpace(cfg.currency) == "" {
		return cfg, errors.New("currency is required")
	}
	if strings.TrimSpace(cfg.bookID) == "" {
		return cfg, errors.New("book-id is required")
	}
	if strings.TrimSpace(cfg.customerTag) == "" {
		return cfg, errors.New("customer-tag is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCreate:
		return modeCreate, nil
	case modeCreatePay:
		return modeCreatePay, nil
	case modeCreatePayCancel:
		return modeCreatePayCancel, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout: cfg.timeout,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency * 2,
			MaxIdleConnsPerHost: cfg.concurrency * 2,
		},
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(httpClient, cfg, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

type createdOrder struct {
	ID string `json:"id"`
}

func runScenario(client *http.Client, cfg config, index int, runID string, col *collector) error {
	scenarioStart := time.Now()
	scenarioStatus := http.StatusOK
	var scenarioErr error
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioStatus, scenarioErr)
	}()

	createBody := map[string]any{
		"customer_id": fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index),
		"currency":    cfg.currency,
		"items": []map[string]any{
			{
				"book_id":     cfg.bookID,
				"title":       "Load Test Book",
				"qty":         1,
				"price_minor": cfg.priceMinor,
			},
		},
	}

	var order createdOrder
	status, err := call(client, cfg, "create", http.MethodPost, "/api/v1/orders", createBody, "", &order, col)
	if err != nil || status >= 400 {
		scenarioStatus, scenarioErr = status, err
		return scenarioFailure(status, err)
	}
	if order.ID == "" {
		scenarioStatus = http.StatusInternalServerError
		scenarioErr = errors.New("create response returned empty order id")
		return scenarioErr
	}

	if cfg.mode == modeCreate {
		return nil
	}

	payKey := fmt.Sprintf("lt-pay-%s-%d", runID, index)
	status, err = call(client, cfg, "pay", http.MethodPost, "/api/v1/orders/"+order.ID+"/pay", nil, payKey, nil, col)
	if err != nil || status >= 400 {
		scenarioStatus, scenarioErr = status, err
		return scenarioFailure(status, err)
	}

	if cfg.mode == modeCreatePayCancel || (cfg.mode == modeCreatePay && shouldCancelScenario(index, cfg.cancelRate)) {
		cancelKey := fmt.Sprintf("lt-cancel-%s-%d", runID, index)
		cancelBody := map[string]any{"reason": "load-cancel"}
		status, err = call(client, cfg, "admin-cancel", http.MethodPost, "/api/v1/orders/"+order.ID+"/admin-cancel", cancelBody, cancelKey, nil, col)
		if err != nil || status >= 400 {
			scenarioStatus, scenarioErr = status, err
			return scenarioFailure(status, err)
		}
	}

	return nil
}

func call(
	client *http.Client,
	cfg config,
	endpoint, method, path string,
	body any,
	idempotencyKey string,
	out any,
	col *collector,
) (int, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, cfg.baseURL+path, reqBody)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(idempotencyHeader, idempotencyKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		col.record(endpoint, time.Since(start), 0, err)
		return 0, err
	}
	defer resp.Body.Close()

	var decodeErr error
	if out != nil && resp.StatusCode < 400 {
		decodeErr = json.NewDecoder(resp.Body).Decode(out)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	col.record(endpoint, time.Since(start), resp.StatusCode, decodeErr)

	if decodeErr != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", decodeErr)
	}
	return resp.StatusCode, nil
}

func scenarioFailure(status int, err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("unexpected http status %d", status)
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("mode=%s target=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	names := make([]string, 0, len(result.Endpoints))
	for name := range result.Endpoints {
		if name == "scenario" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Endpoints[name]
		fmt.Printf(
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
