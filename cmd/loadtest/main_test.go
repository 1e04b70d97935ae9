package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func withCLIArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine

	os.Args = append([]string{"loadtest"}, args...)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

type fakeAPI struct {
	mu         sync.Mutex
	created    int
	paid       int
	cancelled  int
	payKeys    []string
	failCreate bool
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failCreate {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "items are required"})
			return
		}
		f.created++
		_ = json.NewEncoder(w).Encode(map[string]any{"id": fmt.Sprintf("order-%d", f.created), "status": "PENDING"})
	})
	mux.HandleFunc("POST /api/v1/orders/{orderID}/pay", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.paid++
		f.payKeys = append(f.payKeys, r.Header.Get(idempotencyHeader))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": r.PathValue("orderID"), "status": "PAID"})
	})
	mux.HandleFunc("POST /api/v1/orders/{orderID}/admin-cancel", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancelled++
		_ = json.NewEncoder(w).Encode(map[string]any{"id": r.PathValue("orderID"), "status": "CANCELLED"})
	})
	return mux
}

func testScenarioConfig(baseURL string, mode loadMode) config {
	return config{
		baseURL:     baseURL,
		total:       1,
		concurrency: 1,
		timeout:     2 * time.Second,
		mode:        mode,
		currency:    "RUB",
		bookID:      "book-load",
		priceMinor:  defaultPriceMinor,
		customerTag: "load",
	}
}

func TestRunScenario_CreatePayCancel(t *testing.T) {
	api := &fakeAPI{}
	server := httptest.NewServer(api.handler())
	defer server.Close()

	cfg := testScenarioConfig(server.URL, modeCreatePayCancel)
	col := newCollector()

	if err := runScenario(server.Client(), cfg, 0, "run-1", col); err != nil {
		t.Fatalf("scenario: %v", err)
	}

	if api.created != 1 || api.paid != 1 || api.cancelled != 1 {
		t.Fatalf("unexpected call counts: created=%d paid=%d cancelled=%d", api.created, api.paid, api.cancelled)
	}
	if len(api.payKeys) != 1 || !strings.HasPrefix(api.payKeys[0], "lt-pay-run-1-") {
		t.Fatalf("pay call must carry an idempotency key, got %v", api.payKeys)
	}

	result := col.buildReport(time.Now(), time.Second)
	for _, endpoint := range []string{"scenario", "create", "pay", "admin-cancel"} {
		stats, ok := result.Endpoints[endpoint]
		if !ok {
			t.Fatalf("missing stats for endpoint %s", endpoint)
		}
		if stats.Calls != 1 || stats.Failed != 0 {
			t.Fatalf("endpoint %s: calls=%d failed=%d", endpoint, stats.Calls, stats.Failed)
		}
	}
}

func TestRunScenario_CreateModeStopsAfterCreate(t *testing.T) {
	api := &fakeAPI{}
	server := httptest.NewServer(api.handler())
	defer server.Close()

	cfg := testScenarioConfig(server.URL, modeCreate)
	col := newCollector()

	if err := runScenario(server.Client(), cfg, 0, "run-2", col); err != nil {
		t.Fatalf("scenario: %v", err)
	}
	if api.paid != 0 || api.cancelled != 0 {
		t.Fatalf("create mode must not pay or cancel: paid=%d cancelled=%d", api.paid, api.cancelled)
	}
}

func TestRunScenario_FailedCreateMarksScenarioFailed(t *testing.T) {
	api := &fakeAPI{failCreate: true}
	server := httptest.NewServer(api.handler())
	defer server.Close()

	cfg := testScenarioConfig(server.URL, modeCreatePay)
	col := newCollector()

	if err := runScenario(server.Client(), cfg, 0, "run-3", col); err == nil {
		t.Fatal("expected scenario failure on 400 create")
	}
	if api.paid != 0 {
		t.Fatalf("failed create must not be followed by pay, got %d pay calls", api.paid)
	}

	result := col.buildReport(time.Now(), time.Second)
	if result.FailedScenarios != 1 {
		t.Fatalf("expected 1 failed scenario, got %d", result.FailedScenarios)
	}
	if result.Endpoints["create"].Statuses["400"] != 1 {
		t.Fatalf("expected status 400 recorded for create, got %v", result.Endpoints["create"].Statuses)
	}
}

func TestShouldCancelScenario(t *testing.T) {
	cases := []struct {
		index      int
		cancelRate int
		want       bool
	}{
		{index: 5, cancelRate: 0, want: false},
		{index: 5, cancelRate: 100, want: true},
		{index: 10, cancelRate: 25, want: true},
		{index: 30, cancelRate: 25, want: false},
		{index: 125, cancelRate: 50, want: true},
	}

	for _, tc := range cases {
		if got := shouldCancelScenario(tc.index, tc.cancelRate); got != tc.want {
			t.Errorf("shouldCancelScenario(%d, %d) = %v, want %v", tc.index, tc.cancelRate, got, tc.want)
		}
	}
}

func TestBuildLatencySummary(t *testing.T) {
	summary := buildLatencySummary([]float64{10, 20, 30, 40, 50})

	if summary.Min != 10 || summary.Max != 50 {
		t.Fatalf("unexpected min/max: %+v", summary)
	}
	if summary.Avg != 30 {
		t.Fatalf("unexpected avg: %v", summary.Avg)
	}
	if summary.P50 != 30 {
		t.Fatalf("unexpected p50: %v", summary.P50)
	}
	if math.Abs(summary.P95-48) > 0.0001 {
		t.Fatalf("unexpected p95: %v", summary.P95)
	}

	if got := buildLatencySummary(nil); got != (latencySummary{}) {
		t.Fatalf("empty input must produce zero summary, got %+v", got)
	}
}

func TestParseConfig_Validation(t *testing.T) {
	cases := []struct {
		name string
		args []string
		ok   bool
	}{
		{name: "defaults", args: nil, ok: true},
		{name: "bad mode", args: []string{"-mode", "delete-everything"}, ok: false},
		{name: "zero total", args: []string{"-total", "0"}, ok: false},
		{name: "negative cancel rate", args: []string{"-cancel-rate", "-1"}, ok: false},
		{name: "duration without total", args: []string{"-duration", "1m", "-total", "0"}, ok: false},
		{name: "duration mode", args: []string{"-duration", "1m"}, ok: true},
		{name: "empty currency", args: []string{"-currency", " "}, ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			withCLIArgs(t, tc.args, func() {
				_, err := parseConfig()
				if tc.ok && err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !tc.ok && err == nil {
					t.Fatal("expected error")
				}
			})
		})
	}
}

func TestDispatchJobs_CountMode(t *testing.T) {
	jobs := make(chan int, 16)
	dispatchJobs(jobs, config{total: 5})

	var got []int
	for id := range jobs {
		got = append(got, id)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 jobs, got %d", len(got))
	}
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")

	result := report{TotalScenarios: 3, SuccessScenarios: 3}
	if err := writeJSONReport(path, result); err != nil {
		t.Fatalf("write report: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded report
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.TotalScenarios != 3 {
		t.Fatalf("unexpected report content: %+v", decoded)
	}

	if err := writeJSONReport(".", result); err == nil {
		t.Fatal("expected error for directory path")
	}
}
