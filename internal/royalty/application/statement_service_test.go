package application

import (
	"context"
	"errors"
	"testing"

	royalty "royalty-engine/internal/royalty/domain"
)

func (env *testEnv) calculatedStatement(t *testing.T, creatorID string) (*royalty.Run, royalty.Statement) {
	t.Helper()
	env.seedJanuaryFee(10000)
	run := env.calculatedRun(t, utcDay(2025, 1, 1), utcDay(2025, 2, 1))
	statements, err := env.store.Statements.ListByRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	return run, statementFor(t, statements, creatorID)
}

func TestStatementReviewCycle(t *testing.T) {
	env := newTestEnv(t)
	_, stmt := env.calculatedStatement(t, "creator-a")

	reviewed, err := env.statements.Review(operatorCtx(), stmt.ID)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if reviewed.Status != royalty.StatementStatusReviewed {
		t.Fatalf("status = %s, want REVIEWED", reviewed.Status)
	}
	if reviewed.ReviewedAt.IsZero() {
		t.Fatal("reviewed_at should be set")
	}

	// Reviewing twice is an invalid hook transition.
	if _, err := env.statements.Review(operatorCtx(), stmt.ID); !errors.Is(err, royalty.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	disputed, err := env.statements.Dispute(operatorCtx(), stmt.ID, "line items disagree with the usage report")
	if err != nil {
		t.Fatalf("Dispute: %v", err)
	}
	if disputed.Status != royalty.StatementStatusDisputed || disputed.DisputeReason == "" {
		t.Fatalf("disputed = %+v", disputed)
	}

	resolved, err := env.statements.Resolve(operatorCtx(), stmt.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != royalty.StatementStatusResolved {
		t.Fatalf("status = %s, want RESOLVED", resolved.Status)
	}
}

func TestStatementDispute_RequiresReason(t *testing.T) {
	env := newTestEnv(t)
	_, stmt := env.calculatedStatement(t, "creator-a")

	if _, err := env.statements.Dispute(operatorCtx(), stmt.ID, "  "); !errors.Is(err, royalty.ErrReasonTooShort) {
		t.Fatalf("err = %v, want ErrReasonTooShort", err)
	}
}

func TestStatementMarkPaid(t *testing.T) {
	env := newTestEnv(t)
	run, stmt := env.calculatedStatement(t, "creator-a")

	// Payment before PROCESSING is rejected.
	if _, err := env.statements.MarkPaid(operatorCtx(), stmt.ID, "pay-001"); !errors.Is(err, royalty.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	if _, err := env.runs.Lock(operatorCtx(), run.ID, true, ""); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := env.runs.Transition(operatorCtx(), run.ID, royalty.RunStatusProcessing); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	paid, err := env.statements.MarkPaid(operatorCtx(), stmt.ID, "pay-001")
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if paid.Status != royalty.StatementStatusPaid || paid.PaymentRef != "pay-001" {
		t.Fatalf("paid = %+v", paid)
	}

	// Paying twice is rejected.
	if _, err := env.statements.MarkPaid(operatorCtx(), stmt.ID, "pay-002"); !errors.Is(err, royalty.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestStatementMarkPaid_DisputedBlocks(t *testing.T) {
	env := newTestEnv(t)
	run, stmt := env.calculatedStatement(t, "creator-a")
	if _, err := env.statements.Dispute(operatorCtx(), stmt.ID, "numbers disagree with the source data"); err != nil {
		t.Fatalf("Dispute: %v", err)
	}
	if _, err := env.statements.Resolve(operatorCtx(), stmt.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := env.runs.Lock(operatorCtx(), run.ID, true, ""); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := env.runs.Transition(operatorCtx(), run.ID, royalty.RunStatusProcessing); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	// Flag the statement disputed again behind the hook to exercise the guard.
	if err := env.store.Statements.UpdateStatus(context.Background(), stmt.ID, royalty.StatementStatusDisputed, env.clock.Now(), "reopened"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := env.statements.MarkPaid(operatorCtx(), stmt.ID, "pay-001"); !errors.Is(err, royalty.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestStatementAddCorrection(t *testing.T) {
	env := newTestEnv(t)
	run, stmt := env.calculatedStatement(t, "creator-a")

	// Corrections are a post-lock tool.
	if _, err := env.statements.AddCorrection(adminCtx(), stmt.ID, 250, "late usage report"); !errors.Is(err, royalty.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	if _, err := env.runs.Lock(operatorCtx(), run.ID, true, ""); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if _, err := env.statements.AddCorrection(operatorCtx(), stmt.ID, 250, "late usage report"); !errors.Is(err, royalty.ErrAdminRequired) {
		t.Fatalf("err = %v, want ErrAdminRequired", err)
	}

	corrected, err := env.statements.AddCorrection(adminCtx(), stmt.ID, 250, "late usage report")
	if err != nil {
		t.Fatalf("AddCorrection: %v", err)
	}
	if corrected.Statement.TotalCents != 6250 {
		t.Fatalf("total = %d, want 6250", corrected.Statement.TotalCents)
	}
	if corrected.Statement.CorrectionCount != 1 {
		t.Fatalf("correction count = %d, want 1", corrected.Statement.CorrectionCount)
	}
	var line *royalty.Line
	for i := range corrected.Lines {
		if corrected.Lines[i].Kind == royalty.LineKindCorrection {
			line = &corrected.Lines[i]
		}
	}
	if line == nil {
		t.Fatal("correction line missing")
	}
	if line.RoyaltyCents != 250 || line.Note != "late usage report" {
		t.Fatalf("line = %+v", line)
	}

	// Negative corrections may not take the statement below zero.
	if _, err := env.statements.AddCorrection(adminCtx(), stmt.ID, -7000, "claw back everything"); !errors.Is(err, royalty.ErrNegativeAmount) {
		t.Fatalf("err = %v, want ErrNegativeAmount", err)
	}
	negative, err := env.statements.AddCorrection(adminCtx(), stmt.ID, -250, "duplicate usage removed")
	if err != nil {
		t.Fatalf("negative AddCorrection: %v", err)
	}
	if negative.Statement.TotalCents != 6000 {
		t.Fatalf("total = %d, want 6000", negative.Statement.TotalCents)
	}
}

func TestStatementGet_IncludesLines(t *testing.T) {
	env := newTestEnv(t)
	_, stmt := env.calculatedStatement(t, "creator-b")

	got, err := env.statements.Get(operatorCtx(), stmt.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Statement.ID != stmt.ID {
		t.Fatalf("statement = %+v", got.Statement)
	}
	if len(got.Lines) == 0 {
		t.Fatal("expected usage lines")
	}
	if got.Lines[0].Kind != royalty.LineKindUsage || got.Lines[0].RoyaltyCents != 4000 {
		t.Fatalf("line = %+v", got.Lines[0])
	}

	if _, err := env.statements.Get(operatorCtx(), "missing"); !errors.Is(err, royalty.ErrStatementNotFound) {
		t.Fatalf("err = %v, want ErrStatementNotFound", err)
	}
}
