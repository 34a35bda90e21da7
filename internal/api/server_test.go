// Package api_test provides tests for the API server.
package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benchmark-quant/backtester/internal/api"
	"github.com/benchmark-quant/backtester/internal/config"
)

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := api.NewServer(nil, config.ServerConfigFile{Host: "localhost", Port: 0})
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["status"] != "healthy" {
		t.Errorf("expected status 'healthy', got %v", result["status"])
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestSimulateEndpointUnknownStrategy(t *testing.T) {
	ts := setupTestServer(t)

	body, _ := json.Marshal(api.SimulateRequest{
		Bars:     []api.BarDTO{{Timestamp: 1, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}},
		Strategy: api.StrategySelectionDTO{Name: "not_registered"},
		Config:   config.BacktestConfigFile{InitialCapital: 1000, WarmupBars: 0},
	})

	resp, err := http.Post(ts.URL+"/v1/simulate", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("simulate request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400 for an unregistered strategy, got %d", resp.StatusCode)
	}
}

func TestSimulateEndpointRunsRegisteredStrategy(t *testing.T) {
	ts := setupTestServer(t)

	bars := make([]api.BarDTO, 0, 40)
	price := 100.0
	for i := 0; i < 40; i++ {
		price += 0.5
		bars = append(bars, api.BarDTO{Timestamp: int64(i), Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 1000})
	}

	body, _ := json.Marshal(api.SimulateRequest{
		Bars:     bars,
		Strategy: api.StrategySelectionDTO{Name: "buy_and_hold"},
		Config:   config.BacktestConfigFile{InitialCapital: 10000, MaxPositionSizePct: 10, WarmupBars: 1},
	})

	resp, err := http.Post(ts.URL+"/v1/simulate", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("simulate request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestCompareEndpointEmptyCandidates(t *testing.T) {
	ts := setupTestServer(t)

	body, _ := json.Marshal(api.CompareRequest{Candidates: nil})
	resp, err := http.Post(ts.URL+"/v1/compare", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("compare request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}
