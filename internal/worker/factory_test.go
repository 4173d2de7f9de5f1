package worker

import (
	"encoding/json"
	"testing"

	"tradingagent/internal/models"
)

func TestNew_GridAgent(t *testing.T) {
	store := newFakeStore(&models.Agent{ID: 1, Status: models.AgentStatusCreated})
	client := &fakeClient{ready: true}
	cfg := json.RawMessage(`{
		"symbol": "BTCUSDT",
		"lower_price": "40000",
		"upper_price": "50000",
		"grid_levels": 5,
		"order_amount_usd": "100"
	}`)

	w, err := New(1, models.AgentKindGrid, nil, cfg, store, client, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w == nil {
		t.Fatal("expected a non-nil worker")
	}
}

func TestNew_UnsupportedKind(t *testing.T) {
	store := newFakeStore(&models.Agent{ID: 1, Status: models.AgentStatusCreated})
	client := &fakeClient{ready: true}

	_, err := New(1, "unknown-kind", nil, json.RawMessage(`{}`), store, client, nil)
	if err == nil {
		t.Fatal("expected error for unsupported agent kind")
	}
}

func TestNew_InvalidGridConfig(t *testing.T) {
	store := newFakeStore(&models.Agent{ID: 1, Status: models.AgentStatusCreated})
	client := &fakeClient{ready: true}

	_, err := New(1, models.AgentKindGrid, nil, json.RawMessage(`not-json`), store, client, nil)
	if err == nil {
		t.Fatal("expected error for malformed grid config")
	}
}

func TestNew_ClientNotReady(t *testing.T) {
	store := newFakeStore(&models.Agent{ID: 1, Status: models.AgentStatusCreated})
	client := &fakeClient{ready: false}

	_, err := New(1, models.AgentKindGrid, nil, json.RawMessage(`{}`), store, client, nil)
	if err == nil {
		t.Fatal("expected error when exchange client is not ready")
	}
}
