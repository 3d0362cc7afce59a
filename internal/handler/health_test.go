package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeBroker struct{ connected bool }

func (f fakeBroker) IsConnected() bool { return f.connected }

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func readyStatus(t *testing.T, broker brokerStatus, store storePinger) int {
	t.Helper()
	h := NewHealthHandler(broker, store)
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	return rec.Code
}

func TestReadyRequiresBrokerAndStore(t *testing.T) {
	if code := readyStatus(t, fakeBroker{connected: true}, fakePinger{}); code != http.StatusOK {
		t.Fatalf("healthy deps: status = %d, want 200", code)
	}
	if code := readyStatus(t, fakeBroker{connected: false}, fakePinger{}); code != http.StatusServiceUnavailable {
		t.Fatalf("broker down: status = %d, want 503", code)
	}
	if code := readyStatus(t, fakeBroker{connected: true}, fakePinger{err: errors.New("conn refused")}); code != http.StatusServiceUnavailable {
		t.Fatalf("store down: status = %d, want 503", code)
	}
}
