package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"royalty-engine/internal/royalty/application"
	royalty "royalty-engine/internal/royalty/domain"
)

const timeLayout = time.RFC3339

// RunHandler provides run lifecycle HTTP endpoints.
type RunHandler struct {
	runs       *application.RunService
	calculator *application.CalculationService
	rollback   *application.RollbackService
	validator  *application.ValidationService
}

// NewRunHandler constructs a handler.
func NewRunHandler(
	runs *application.RunService,
	calculator *application.CalculationService,
	rollback *application.RollbackService,
	validator *application.ValidationService,
) (*RunHandler, error) {
	if runs == nil || calculator == nil || rollback == nil || validator == nil {
		return nil, errors.New("run handler: nil service")
	}
	return &RunHandler{runs: runs, calculator: calculator, rollback: rollback, validator: validator}, nil
}

// ServeHTTP handles /api/v1/runs and subroutes.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/runs":
		switch r.Method {
		case http.MethodPost:
			h.handleOpen(w, r)
		case http.MethodGet:
			h.handleList(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	case strings.HasPrefix(r.URL.Path, "/api/v1/runs/"):
		h.handleRun(w, r)
		return
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
}

func (h *RunHandler) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PeriodStart string `json:"period_start"`
		PeriodEnd   string `json:"period_end"`
		Notes       string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(timeLayout, req.PeriodStart)
	if err != nil {
		http.Error(w, "period_start must be RFC3339", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(timeLayout, req.PeriodEnd)
	if err != nil {
		http.Error(w, "period_end must be RFC3339", http.StatusBadRequest)
		return
	}

	run, err := h.runs.OpenRun(r.Context(), start, end, req.Notes)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(runView(run))
}

func (h *RunHandler) handleList(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(runs))
	for i := range runs {
		views = append(views, runView(&runs[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

func (h *RunHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	parts := strings.SplitN(path, "/", 2)
	runID := parts[0]
	if runID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		run, err := h.runs.Get(r.Context(), runID)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(runView(run))
	case "calculate":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		run, err := h.calculator.Calculate(r.Context(), runID)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(runView(run))
	case "lock":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Approve bool   `json:"approve"`
			Notes   string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		run, err := h.runs.Lock(r.Context(), runID, req.Approve, req.Notes)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(runView(run))
	case "rollback":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		result, err := h.rollback.Rollback(r.Context(), runID, req.Reason)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"run_id":         result.RunID,
			"rolled_back_at": result.At.Format(timeLayout),
		})
	case "transition":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			To string `json:"to"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		to, ok := royalty.ParseRunStatus(req.To)
		if !ok {
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}
		run, err := h.runs.Transition(r.Context(), runID, to)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(runView(run))
	case "report":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		report, err := h.validator.Report(r.Context(), runID)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func runView(run *royalty.Run) map[string]any {
	view := map[string]any{
		"id":                    run.ID,
		"period_start":          run.PeriodStart.Format(timeLayout),
		"period_end":            run.PeriodEnd.Format(timeLayout),
		"status":                string(run.Status),
		"total_revenue_cents":   run.TotalRevenueCents,
		"total_royalties_cents": run.TotalRoyaltiesCents,
		"notes":                 run.Notes,
		"created_by":            run.CreatedBy,
		"created_at":            run.CreatedAt.Format(timeLayout),
		"updated_at":            run.UpdatedAt.Format(timeLayout),
	}
	if !run.LockedAt.IsZero() {
		view["locked_at"] = run.LockedAt.Format(timeLayout)
	}
	if !run.ProcessedAt.IsZero() {
		view["processed_at"] = run.ProcessedAt.Format(timeLayout)
	}
	return view
}

func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, royalty.ErrRunNotFound), errors.Is(err, royalty.ErrStatementNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, royalty.ErrAdminRequired):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, royalty.ErrInvalidPeriod),
		errors.Is(err, royalty.ErrReasonTooShort),
		errors.Is(err, royalty.ErrNegativeAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, royalty.ErrPeriodOverlap),
		errors.Is(err, royalty.ErrInvalidTransition),
		errors.Is(err, royalty.ErrRunLocked),
		errors.Is(err, royalty.ErrRunBusy),
		errors.Is(err, royalty.ErrDisputedStatements),
		errors.Is(err, royalty.ErrPaidStatements),
		errors.Is(err, royalty.ErrValidationFailed):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
