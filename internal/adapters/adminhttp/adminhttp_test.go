package adminhttp

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wqdsca/policethief-go/internal/room"
)

type fakeStats struct{}

func (fakeStats) Stats() map[string]interface{} {
	return map[string]interface{}{"rooms": 2}
}

func newTestServer() *Server {
	fabric := room.New(room.Config{})
	fabric.CreateRoom("lobby", time.Now())
	return New("127.0.0.1:0", fakeStats{}, fabric)
}

func TestHealthEndpointReportsOK(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %q, want ok", body["status"])
	}
}

func TestStatsEndpointReturnsProviderData(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("GET", "/stats", nil)
	rec := httptest.NewRecorder()
	s.handleStats(rec, req)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["rooms"].(float64) != 2 {
		t.Fatalf("rooms = %v, want 2", body["rooms"])
	}
}

func TestRoomsEndpointListsRooms(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("GET", "/rooms", nil)
	rec := httptest.NewRecorder()
	s.handleRooms(rec, req)

	var body []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 1 {
		t.Fatalf("len(body) = %d, want 1", len(body))
	}
	if body[0]["Name"] != "lobby" {
		t.Fatalf("room name = %v, want lobby", body[0]["Name"])
	}
}
