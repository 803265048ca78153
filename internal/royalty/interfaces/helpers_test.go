package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"royalty-engine/internal/auth"
	catalog "royalty-engine/internal/catalog/domain"
	catalogmem "royalty-engine/internal/catalog/infrastructure/memory"
	"royalty-engine/internal/royalty/application"
	"royalty-engine/internal/royalty/infrastructure/memory"
)

type handlerEnv struct {
	store      *memory.Store
	catalog    *catalogmem.CatalogReader
	runs       *application.RunService
	statements *application.StatementService
	runHandler *RunHandler
	stmHandler *StatementHandler
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	store := memory.NewStore()
	cat := catalogmem.NewCatalogReader()
	lock := memory.NewRunLock()
	clock := application.SystemClock{}

	calculator, err := application.NewCalculationService(store.Runs, store.Carryovers, cat, cat, cat, cat, lock, nil, clock, time.Minute, 30*time.Second)
	if err != nil {
		t.Fatalf("NewCalculationService: %v", err)
	}
	validator, err := application.NewValidationService(store.Runs, store.Statements, cat, clock, 0)
	if err != nil {
		t.Fatalf("NewValidationService: %v", err)
	}
	rollback, err := application.NewRollbackService(store.Runs, store.Statements, lock, nil, nil, clock, time.Minute, 0)
	if err != nil {
		t.Fatalf("NewRollbackService: %v", err)
	}
	runs, err := application.NewRunService(store.Runs, store.Statements, validator, rollback, lock, nil, nil, clock, time.Minute)
	if err != nil {
		t.Fatalf("NewRunService: %v", err)
	}
	statements, err := application.NewStatementService(store.Runs, store.Statements, nil, clock)
	if err != nil {
		t.Fatalf("NewStatementService: %v", err)
	}

	runHandler, err := NewRunHandler(runs, calculator, rollback, validator)
	if err != nil {
		t.Fatalf("NewRunHandler: %v", err)
	}
	stmHandler, err := NewStatementHandler(statements)
	if err != nil {
		t.Fatalf("NewStatementHandler: %v", err)
	}

	return &handlerEnv{
		store:      store,
		catalog:    cat,
		runs:       runs,
		statements: statements,
		runHandler: runHandler,
		stmHandler: stmHandler,
	}
}

func (env *handlerEnv) seedCatalog() {
	env.catalog.AddLicense(catalog.License{
		ID:        "lic-jan",
		AssetID:   "asset-1",
		Kind:      catalog.LicenseKindFee,
		FeeCents:  10000,
		TermStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		TermEnd:   time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Active:    true,
	})
	env.catalog.AddShare(catalog.OwnershipShare{AssetID: "asset-1", CreatorID: "creator-a", ShareBps: 6000, Active: true})
	env.catalog.AddShare(catalog.OwnershipShare{AssetID: "asset-1", CreatorID: "creator-b", ShareBps: 4000, Active: true})
}

func doRequest(t *testing.T, handler http.Handler, role auth.Role, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := auth.WithIdentity(context.Background(), role, string(role)+"-1")
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// calculatedRun opens and calculates a january run through the HTTP surface.
func (env *handlerEnv) calculatedRun(t *testing.T) string {
	t.Helper()
	env.seedCatalog()
	rec := doRequest(t, env.runHandler, auth.RoleOperator, http.MethodPost, "/api/v1/runs",
		`{"period_start":"2025-01-01T00:00:00Z","period_end":"2025-02-01T00:00:00Z"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open run status = %d body = %s", rec.Code, rec.Body.String())
	}
	var view struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	rec = doRequest(t, env.runHandler, auth.RoleOperator, http.MethodPost, "/api/v1/runs/"+view.ID+"/calculate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("calculate status = %d body = %s", rec.Code, rec.Body.String())
	}
	return view.ID
}

func (env *handlerEnv) firstStatementID(t *testing.T, runID, creatorID string) string {
	t.Helper()
	statements, err := env.store.Statements.ListByRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	for _, stmt := range statements {
		if stmt.CreatorID == creatorID {
			return stmt.ID
		}
	}
	t.Fatalf("no statement for %s", creatorID)
	return ""
}
