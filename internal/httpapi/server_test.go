package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vivarium/internal/core"
	"vivarium/pkg/domain"
)

func newTestServer(t *testing.T) (*httptest.Server, *core.Service) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := core.NewService(core.NewStore(core.SeedSnapshot(now)))
	srv := New(svc, nil, nil, nil, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { svc.Store().Close() })
	return ts, svc
}

func doJSON(t *testing.T, method, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return resp
}

func decodeOutcome(t *testing.T, resp *http.Response) domain.Outcome {
	t.Helper()
	defer resp.Body.Close()
	var out domain.Outcome
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("expected outcome body, got %v", err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestCompleteTaskDefaultsOperator(t *testing.T) {
	ts, svc := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/tasks/TSK-1001/complete", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	out := decodeOutcome(t, resp)
	if !out.OK {
		t.Fatalf("expected success, got %+v", out)
	}

	snap := svc.Snapshot()
	task, _ := snap.FindTask("TSK-1001")
	if task.Status != domain.TaskDone {
		t.Fatalf("expected done task, got %s", task.Status)
	}
	if snap.AuditEvents[0].Operator != "web" {
		t.Fatalf("expected default operator web, got %q", snap.AuditEvents[0].Operator)
	}
}

func TestOperatorHeaderIsHonored(t *testing.T) {
	ts, svc := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/tasks/TSK-1001/complete", "", map[string]string{"X-Operator": "Alice"})
	resp.Body.Close()
	if got := svc.Snapshot().AuditEvents[0].Operator; got != "Alice" {
		t.Fatalf("expected operator Alice, got %q", got)
	}
}

func TestStatusMapping(t *testing.T) {
	ts, _ := newTestServer(t)

	// researcher lacks the create capability
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/cages/", `{"cage_id":"C-300","capacity_limit":4}`, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// missing entity
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/tasks/TSK-GHOST/complete", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// invalid state conflicts
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/breeding/BR-1999/wean/wizard", `{"pup_ids":[],"target_cage_ids":[]}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMalformedJSONAnswers400(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/cages/", "{not json", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	out := decodeOutcome(t, resp)
	if out.Reason != "请求体不是合法 JSON" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer resp.Body.Close()
	var stats domain.DashboardStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("expected stats body, got %v", err)
	}
	if stats.TotalAnimals != 12 || stats.ActiveCages != 4 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestExportAnimalsCSVEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/exports/animals.csv")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	buf := make([]byte, 128)
	n, _ := resp.Body.Read(buf)
	if !strings.HasPrefix(string(buf[:n]), "animal_id,identifier") {
		t.Fatalf("unexpected export head %q", string(buf[:n]))
	}
}

func TestNotificationReadFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/notifications/task:TSK-1005/read", "", nil)
	resp.Body.Close()

	listResp, err := http.Get(ts.URL + "/api/notifications")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer listResp.Body.Close()
	var items []domain.NotificationItem
	if err := json.NewDecoder(listResp.Body).Decode(&items); err != nil {
		t.Fatalf("expected items body, got %v", err)
	}
	found := false
	for _, item := range items {
		if item.ID == "task:TSK-1005" {
			found = true
			if item.ReadAt == nil {
				t.Fatal("expected read mark merged into the feed")
			}
		}
	}
	if !found {
		t.Fatal("expected the overdue-task notification present")
	}
}
