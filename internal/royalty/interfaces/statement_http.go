package interfaces

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"royalty-engine/internal/observability/metrics"
	"royalty-engine/internal/royalty/application"
	royalty "royalty-engine/internal/royalty/domain"
)

// StatementHandler provides statement HTTP endpoints.
type StatementHandler struct {
	statements *application.StatementService
}

// NewStatementHandler constructs a handler.
func NewStatementHandler(statements *application.StatementService) (*StatementHandler, error) {
	if statements == nil {
		return nil, errors.New("statement handler: nil service")
	}
	return &StatementHandler{statements: statements}, nil
}

// ServeHTTP handles /api/v1/statements and subroutes.
func (h *StatementHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/statements":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleListByRun(w, r)
		return
	case strings.HasPrefix(r.URL.Path, "/api/v1/statements/"):
		h.handleStatement(w, r)
		return
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
}

func (h *StatementHandler) handleListByRun(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		http.Error(w, "run_id is required", http.StatusBadRequest)
		return
	}
	statements, err := h.statements.ListByRun(r.Context(), runID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(statements))
	for i := range statements {
		views = append(views, statementView(&statements[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

func (h *StatementHandler) handleStatement(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/statements/")
	parts := strings.SplitN(path, "/", 2)
	statementID := parts[0]
	if statementID == "" {
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
		h.handleGet(w, r, statementID)
	case "export.pdf":
		h.handleExport(w, r, statementID, "pdf")
	case "export.xlsx":
		h.handleExport(w, r, statementID, "xlsx")
	case "review":
		h.handleHook(w, r, func() (*royalty.Statement, error) {
			return h.statements.Review(r.Context(), statementID)
		}, "review")
	case "dispute":
		var req struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		h.handleHook(w, r, func() (*royalty.Statement, error) {
			return h.statements.Dispute(r.Context(), statementID, req.Reason)
		}, "dispute")
	case "resolve":
		h.handleHook(w, r, func() (*royalty.Statement, error) {
			return h.statements.Resolve(r.Context(), statementID)
		}, "resolve")
	case "pay":
		var req struct {
			PaymentRef string `json:"payment_ref"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		h.handleHook(w, r, func() (*royalty.Statement, error) {
			return h.statements.MarkPaid(r.Context(), statementID, req.PaymentRef)
		}, "pay")
	case "corrections":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			AmountCents int64  `json:"amount_cents"`
			Note        string `json:"note"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		result, err := h.statements.AddCorrection(r.Context(), statementID, req.AmountCents, req.Note)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statementWithLinesView(result))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *StatementHandler) handleGet(w http.ResponseWriter, r *http.Request, statementID string) {
	result, err := h.statements.Get(r.Context(), statementID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statementWithLinesView(result))
}

func (h *StatementHandler) handleHook(w http.ResponseWriter, r *http.Request, hook func() (*royalty.Statement, error), name string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stmt, err := hook()
	if err != nil {
		respondDomainError(w, err)
		return
	}
	metrics.IncStatementHook(name)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statementView(stmt))
}

func (h *StatementHandler) handleExport(w http.ResponseWriter, r *http.Request, statementID, format string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	result, err := h.statements.Get(r.Context(), statementID)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		respondDomainError(w, err)
		return
	}

	var data []byte
	var contentType string
	switch format {
	case "pdf":
		data, err = BuildStatementPDF(&result.Statement, result.Lines)
		contentType = "application/pdf"
	case "xlsx":
		data, err = BuildStatementXLSX(&result.Statement, result.Lines)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		http.Error(w, "unknown format", http.StatusBadRequest)
		return
	}
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(start))

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.%s", statementID, format))
	_, _ = w.Write(data)
}

func statementView(stmt *royalty.Statement) map[string]any {
	view := map[string]any{
		"id":               stmt.ID,
		"run_id":           stmt.RunID,
		"creator_id":       stmt.CreatorID,
		"total_cents":      stmt.TotalCents,
		"status":           string(stmt.Status),
		"correction_count": stmt.CorrectionCount,
		"created_at":       stmt.CreatedAt.Format(timeLayout),
		"updated_at":       stmt.UpdatedAt.Format(timeLayout),
	}
	if !stmt.ReviewedAt.IsZero() {
		view["reviewed_at"] = stmt.ReviewedAt.Format(timeLayout)
	}
	if !stmt.DisputedAt.IsZero() {
		view["disputed_at"] = stmt.DisputedAt.Format(timeLayout)
	}
	if stmt.DisputeReason != "" {
		view["dispute_reason"] = stmt.DisputeReason
	}
	if stmt.PaymentRef != "" {
		view["payment_ref"] = stmt.PaymentRef
	}
	return view
}

func statementWithLinesView(result *royalty.StatementWithLines) map[string]any {
	view := statementView(&result.Statement)
	lines := make([]map[string]any, 0, len(result.Lines))
	for _, line := range result.Lines {
		lines = append(lines, map[string]any{
			"id":            line.ID,
			"kind":          string(line.Kind),
			"license_id":    line.LicenseID,
			"asset_id":      line.AssetID,
			"revenue_cents": line.RevenueCents,
			"share_bps":     line.ShareBps,
			"royalty_cents": line.RoyaltyCents,
			"period_start":  line.PeriodStart.Format(timeLayout),
			"period_end":    line.PeriodEnd.Format(timeLayout),
			"note":          line.Note,
		})
	}
	view["lines"] = lines
	return view
}
