package interfaces

import (
	"encoding/json"
	"net/http"
	"testing"

	"royalty-engine/internal/auth"
)

func TestRunHandler_OpenRun(t *testing.T) {
	env := newHandlerEnv(t)

	rec := doRequest(t, env.runHandler, auth.RoleOperator, http.MethodPost, "/api/v1/runs",
		`{"period_start":"2025-01-01T00:00:00Z","period_end":"2025-02-01T00:00:00Z","notes":"january cycle"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var view map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view["status"] != "DRAFT" {
		t.Fatalf("status = %v, want DRAFT", view["status"])
	}
	if view["notes"] != "january cycle" {
		t.Fatalf("notes = %v", view["notes"])
	}
}

func TestRunHandler_OpenRunValidation(t *testing.T) {
	env := newHandlerEnv(t)

	rec := doRequest(t, env.runHandler, auth.RoleOperator, http.MethodPost, "/api/v1/runs",
		`{"period_start":"january","period_end":"2025-02-01T00:00:00Z"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, env.runHandler, auth.RoleOperator, http.MethodPost, "/api/v1/runs",
		`{"period_start":"2025-02-01T00:00:00Z","period_end":"2025-01-01T00:00:00Z"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted period status = %d, want 400", rec.Code)
	}
}

func TestRunHandler_OverlapConflict(t *testing.T) {
	env := newHandlerEnv(t)
	body := `{"period_start":"2025-01-01T00:00:00Z","period_end":"2025-02-01T00:00:00Z"}`

	if rec := doRequest(t, env.runHandler, auth.RoleOperator, http.MethodPost, "/api/v1/runs", body); rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	rec := doRequest(t, env.runHandler, auth.RoleOperator, http.MethodPost, "/api/v1/runs", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("overlap status = %d, want 409", rec.Code)
	}
}

func TestRunHandler_GetAndList(t *testing.T) {
	env := newHandlerEnv(t)
	runID := env.calculatedRun(t)

	rec := doRequest(t, env.runHandler, auth.RoleViewer, http.MethodGet, "/api/v1/runs/"+runID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var view map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view["status"] != "CALCULATED" {
		t.Fatalf("status = %v, want CALCULATED", view["status"])
	}
	if view["total_royalties_cents"].(float64) != 10000 {
		t.Fatalf("royalties = %v", view["total_royalties_cents"])
	}

	rec = doRequest(t, env.runHandler, auth.RoleViewer, http.MethodGet, "/api/v1/runs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("runs = %d, want 1", len(list))
	}

	rec = doRequest(t, env.runHandler, auth.RoleViewer, http.MethodGet, "/api/v1/runs/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing run status = %d, want 404", rec.Code)
	}
}

func TestRunHandler_LockAndReport(t *testing.T) {
	env := newHandlerEnv(t)
	runID := env.calculatedRun(t)

	rec := doRequest(t, env.runHandler, auth.RoleViewer, http.MethodGet, "/api/v1/runs/"+runID+"/report", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d body = %s", rec.Code, rec.Body.String())
	}
	var report struct {
		IsValid bool `json:"is_valid"`
		Checks  []struct {
			Name   string `json:"name"`
			Passed bool   `json:"passed"`
		} `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.IsValid || len(report.Checks) != 5 {
		t.Fatalf("report = %+v", report)
	}

	rec = doRequest(t, env.runHandler, auth.RoleOperator, http.MethodPost, "/api/v1/runs/"+runID+"/lock",
		`{"approve":true,"notes":"approved after review"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("lock status = %d body = %s", rec.Code, rec.Body.String())
	}
	var view map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &view)
	if view["status"] != "LOCKED" {
		t.Fatalf("status = %v, want LOCKED", view["status"])
	}
	if view["locked_at"] == nil {
		t.Fatal("locked_at missing from view")
	}
}

func TestRunHandler_Rollback(t *testing.T) {
	env := newHandlerEnv(t)
	runID := env.calculatedRun(t)
	body := `{"reason":"ownership data was stale at calculation time"}`

	rec := doRequest(t, env.runHandler, auth.RoleOperator, http.MethodPost, "/api/v1/runs/"+runID+"/rollback", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("operator rollback status = %d, want 403", rec.Code)
	}

	rec = doRequest(t, env.runHandler, auth.RoleAdmin, http.MethodPost, "/api/v1/runs/"+runID+"/rollback", `{"reason":"short"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short reason status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, env.runHandler, auth.RoleAdmin, http.MethodPost, "/api/v1/runs/"+runID+"/rollback", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("rollback status = %d body = %s", rec.Code, rec.Body.String())
	}
	var result struct {
		RunID        string `json:"run_id"`
		RolledBackAt string `json:"rolled_back_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.RunID != runID || result.RolledBackAt == "" {
		t.Fatalf("result = %+v", result)
	}
}

func TestRunHandler_Transition(t *testing.T) {
	env := newHandlerEnv(t)
	runID := env.calculatedRun(t)

	rec := doRequest(t, env.runHandler, auth.RoleOperator, http.MethodPost, "/api/v1/runs/"+runID+"/transition", `{"to":"COMPLETED"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("illegal transition status = %d, want 409", rec.Code)
	}

	rec = doRequest(t, env.runHandler, auth.RoleOperator, http.MethodPost, "/api/v1/runs/"+runID+"/transition", `{"to":"SHIPPED"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status = %d, want 400", rec.Code)
	}
}

func TestRunHandler_MethodChecks(t *testing.T) {
	env := newHandlerEnv(t)
	runID := env.calculatedRun(t)

	rec := doRequest(t, env.runHandler, auth.RoleOperator, http.MethodGet, "/api/v1/runs/"+runID+"/calculate", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	rec = doRequest(t, env.runHandler, auth.RoleOperator, http.MethodPost, "/api/v1/runs/"+runID+"/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
