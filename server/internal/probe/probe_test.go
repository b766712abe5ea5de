package probe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/highstakes/highstakes/server/internal/api"
	"github.com/highstakes/highstakes/server/internal/auth"
	"github.com/highstakes/highstakes/server/internal/leaderboard"
	"github.com/highstakes/highstakes/server/internal/metrics"
	"github.com/highstakes/highstakes/server/internal/session"
)

// serverMetrics is a trimmed /metrics body as the server renders it.
const serverMetrics = `
# HELP highstakes_offers Offers with a leaderboard.
# TYPE highstakes_offers gauge
highstakes_offers 3
# HELP highstakes_sessions Sessions currently held.
# TYPE highstakes_sessions gauge
highstakes_sessions 12
# HELP highstakes_stakes_rejected_total Stake submissions rejected before reaching a leaderboard.
# TYPE highstakes_stakes_rejected_total counter
highstakes_stakes_rejected_total{reason="bad_request"} 4
highstakes_stakes_rejected_total{reason="unknown_session"} 2
# HELP highstakes_stakes_submitted_total Stakes accepted into a leaderboard.
# TYPE highstakes_stakes_submitted_total counter
highstakes_stakes_submitted_total 250
`

func TestScrape_StaticBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(serverMetrics))
	}))
	defer srv.Close()

	r, err := New(srv.URL+"/", "", "").Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if r.Offers != 3 {
		t.Errorf("Offers = %v, want 3", r.Offers)
	}
	if r.Sessions != 12 {
		t.Errorf("Sessions = %v, want 12", r.Sessions)
	}
	if r.StakesSubmitted != 250 {
		t.Errorf("StakesSubmitted = %v, want 250", r.StakesSubmitted)
	}
	if r.Rejected["bad_request"] != 4 || r.Rejected["unknown_session"] != 2 {
		t.Errorf("Rejected = %v", r.Rejected)
	}
	// Families the server did not export read as zero.
	if r.StreamClients != 0 || r.AlertsFired != 0 {
		t.Errorf("missing families: StreamClients=%v AlertsFired=%v", r.StreamClients, r.AlertsFired)
	}
}

func TestScrape_LiveServerWithAPIKey(t *testing.T) {
	sessions := session.New(session.DefaultTokenLength, 0)
	boards := leaderboard.New(leaderboard.DefaultCapacity)
	m := metrics.New(metrics.Sources{Offers: boards.Count, Sessions: sessions.Count})
	srv := httptest.NewServer(api.New(sessions, boards, api.Options{
		Metrics:   m,
		AdminAuth: auth.APIKey("apikey", "X-API-Key", "k"),
	}))
	defer srv.Close()

	get := func(path string) string {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		return string(b)
	}
	key := get("/1/session")
	for _, offer := range []string{"10", "11"} {
		resp, err := http.Post(srv.URL+"/"+offer+"/stake?sessionkey="+key, "text/plain", strings.NewReader("100"))
		if err != nil {
			t.Fatalf("POST stake: %v", err)
		}
		resp.Body.Close()
	}

	r, err := New(srv.URL, "X-API-Key", "k").Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if r.Sessions != 1 || r.SessionsCreated != 1 {
		t.Errorf("sessions: held=%v created=%v, want 1 and 1", r.Sessions, r.SessionsCreated)
	}
	if r.Offers != 2 || r.StakesSubmitted != 2 {
		t.Errorf("stakes: offers=%v submitted=%v, want 2 and 2", r.Offers, r.StakesSubmitted)
	}

	if _, err := New(srv.URL, "X-API-Key", "wrong").Scrape(context.Background()); err == nil {
		t.Error("Scrape() with a wrong key: want error, got nil")
	}
}

func TestScrape_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	if _, err := New(srv.URL, "", "").Scrape(context.Background()); err == nil {
		t.Error("Scrape() against a closed server: want error, got nil")
	}
}
