package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"alertbot/internal/broker"
	"alertbot/internal/models"
)

type stubBroker struct {
	status broker.TokenStatus
}

func (s *stubBroker) RefreshAccessToken(ctx context.Context) error { return nil }

func (s *stubBroker) SubmitBracketOrder(ctx context.Context, alert *models.TradeAlert, quantity int) (json.RawMessage, error) {
	return nil, nil
}

func (s *stubBroker) TokenStatus() broker.TokenStatus { return s.status }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestServer(t *testing.T, cfg Config, b broker.Broker, rec *Recorder) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(cfg, b, rec, quietLogger()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url) // #nosec G107 -- test server URL
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, Config{Mode: "sim"}, &stubBroker{}, NewRecorder(0))

	var health map[string]interface{}
	resp := getJSON(t, srv.URL+"/health", &health)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	if health["status"] != "healthy" {
		t.Errorf("health = %v", health)
	}
}

func TestServer_StatusReportsTokenLease(t *testing.T) {
	expiry := time.Now().Add(10 * time.Minute).UTC().Truncate(time.Second)
	b := &stubBroker{status: broker.TokenStatus{Authenticated: true, ExpiresAt: expiry}}
	rec := NewRecorder(0)
	rec.Record(AlertRecord{TraceID: "t1", Outcome: OutcomeSubmitted})
	rec.Record(AlertRecord{TraceID: "t2", Outcome: OutcomeMalformed})

	srv := newTestServer(t, Config{Mode: "live"}, b, rec)

	var status struct {
		Mode           string    `json:"mode"`
		Authenticated  bool      `json:"authenticated"`
		TokenExpiresAt time.Time `json:"token_expires_at"`
		Counters       Counters  `json:"counters"`
	}
	getJSON(t, srv.URL+"/api/status", &status)

	if status.Mode != "live" || !status.Authenticated {
		t.Errorf("status = %+v", status)
	}
	if !status.TokenExpiresAt.Equal(expiry) {
		t.Errorf("token_expires_at = %v, want %v", status.TokenExpiresAt, expiry)
	}
	if status.Counters.AlertsSeen != 2 || status.Counters.OrdersSubmitted != 1 || status.Counters.Malformed != 1 {
		t.Errorf("counters = %+v", status.Counters)
	}
}

func TestServer_AlertsNewestFirst(t *testing.T) {
	rec := NewRecorder(0)
	rec.Record(AlertRecord{TraceID: "old", Outcome: OutcomeSubmitted})
	rec.Record(AlertRecord{TraceID: "new", Outcome: OutcomeRejected, Error: "broker rejected order"})

	srv := newTestServer(t, Config{Mode: "sim"}, &stubBroker{}, rec)

	var alerts []AlertRecord
	getJSON(t, srv.URL+"/api/alerts", &alerts)
	if len(alerts) != 2 || alerts[0].TraceID != "new" || alerts[1].TraceID != "old" {
		t.Fatalf("alerts = %+v", alerts)
	}
}

func TestServer_AuthMiddleware(t *testing.T) {
	srv := newTestServer(t, Config{Mode: "sim", AuthToken: "secret"}, &stubBroker{}, NewRecorder(0))

	if resp := getJSON(t, srv.URL+"/api/status", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", resp.StatusCode)
	}
	if resp := getJSON(t, srv.URL+"/health", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("health should bypass auth, got %d", resp.StatusCode)
	}
	if resp := getJSON(t, srv.URL+"/api/status?token=secret", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("query token status = %d, want 200", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/alerts", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Auth-Token", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("header token status = %d, want 200", resp.StatusCode)
	}
}

func TestRecorder_EvictsOldestBeyondCapacity(t *testing.T) {
	rec := NewRecorder(3)
	for i := 0; i < 5; i++ {
		rec.Record(AlertRecord{TraceID: fmt.Sprintf("t%d", i), Outcome: OutcomeSubmitted})
	}

	recent := rec.Recent()
	if len(recent) != 3 {
		t.Fatalf("len(recent) = %d, want 3", len(recent))
	}
	if recent[0].TraceID != "t4" || recent[2].TraceID != "t2" {
		t.Errorf("recent = %+v", recent)
	}
	if stats := rec.Stats(); stats.AlertsSeen != 5 {
		t.Errorf("AlertsSeen = %d, want 5 despite eviction", stats.AlertsSeen)
	}
}
