package observe

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/realmfikri/ridehail-sim/engine"
	"github.com/realmfikri/ridehail-sim/internal/simconfig"
)

func newTestServer(t *testing.T) (*Server, *Hub, *engine.Engine) {
	t.Helper()

	cfg := simconfig.Defaults()
	cfg.Default.CitySize = 8
	cfg.Default.VehicleCount = 3
	cfg.Default.BaseDemand = 0.2
	cfg.Default.RandomNumberSeed = 9

	eng, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("failed to construct engine: %v", err)
	}

	hub := NewHub()
	hub.Publish(eng.NextBlock())

	return NewServer(hub, eng), hub, eng
}

func TestHealthAndReadiness(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Routes()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("health check failed: code %d body %q", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Body.String() != "ready" {
		t.Fatalf("readiness check failed: code %d body %q", rr.Code, rr.Body.String())
	}
}

func TestReadinessBeforeFirstBlockIsUnavailable(t *testing.T) {
	hub := NewHub()
	srv := NewServer(hub, nil)
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before any block is published, got %d", rr.Code)
	}
}

func TestVehiclesPagination(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/vehicles?page=1&size=2", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	var resp paginatedVehicles
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Page != 1 || resp.Size != 2 {
		t.Fatalf("unexpected pagination metadata: %+v", resp)
	}
	if resp.Total != 3 {
		t.Fatalf("expected total 3 vehicles, got %d", resp.Total)
	}
	if len(resp.Vehicles) != 2 {
		t.Fatalf("expected 2 vehicles on page 1, got %d", len(resp.Vehicles))
	}
}

func TestConfigEndpointGetAndPost(t *testing.T) {
	srv, _, eng := newTestServer(t)
	router := srv.Routes()

	t.Run("get current config", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/config", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d", rr.Code)
		}
	})

	t.Run("post live override", func(t *testing.T) {
		body := strings.NewReader(`{"vehicleCount":7}`)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/config", body))
		if rr.Code != http.StatusAccepted {
			t.Fatalf("unexpected status: %d", rr.Code)
		}

		// Pending overrides only apply at the next block boundary.
		eng.NextBlock()
		if got := eng.Config().Default.VehicleCount; got != 7 {
			t.Fatalf("expected vehicle_count override applied at block boundary, got %d", got)
		}
	})
}

func TestResultsUnavailableUntilRunCompletes(t *testing.T) {
	srv, hub, eng := newTestServer(t)
	router := srv.Routes()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/results", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before results are set, got %d", rr.Code)
	}

	hub.SetResults(eng.ComputeEndState())
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/results", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 once results are set, got %d", rr.Code)
	}
}

func TestWebSocketStreamsLatestBlock(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	url := "ws" + ts.URL[len("http"):] + "/ws/blocks"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var br engine.BlockResult
	if err := conn.ReadJSON(&br); err != nil {
		t.Fatalf("failed to read initial message: %v", err)
	}
	if br.Block != 1 {
		t.Fatalf("expected initial block 1, got %d", br.Block)
	}
}
