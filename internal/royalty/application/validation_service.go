package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	catalog "royalty-engine/internal/catalog/domain"
	"royalty-engine/internal/observability/metrics"
	royalty "royalty-engine/internal/royalty/domain"
)

const defaultOutlierMultiplier = 3

// Check names are stable identifiers for downstream reviewers.
const (
	CheckMathConsistency    = "math-consistency"
	CheckOwnershipIntegrity = "ownership-integrity"
	CheckPeriodBoundary     = "period-boundary"
	CheckDisputeGate        = "dispute-gate"
	CheckNonNegativity      = "non-negativity"
)

// ValidationCheck is one named, independently pass/fail integrity check.
type ValidationCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ValidationSummary aggregates the run for the reviewer.
type ValidationSummary struct {
	TotalRevenueCents   int64 `json:"total_revenue_cents"`
	TotalRoyaltiesCents int64 `json:"total_royalties_cents"`
	StatementCount      int   `json:"statement_count"`
	LineCount           int   `json:"line_count"`
	MedianEarningsCents int64 `json:"median_earnings_cents"`
}

// ValidationReport is the structured result of a read-only validation pass.
// Errors block locking; warnings are informational.
type ValidationReport struct {
	RunID             string            `json:"run_id"`
	GeneratedAt       time.Time         `json:"generated_at"`
	IsValid           bool              `json:"is_valid"`
	Errors            []string          `json:"errors"`
	Warnings          []string          `json:"warnings"`
	Checks            []ValidationCheck `json:"checks"`
	Summary           ValidationSummary `json:"summary"`
	RevenueByAsset    map[string]int64  `json:"revenue_by_asset"`
	EarningsByCreator map[string]int64  `json:"earnings_by_creator"`
}

// ValidationService inspects a calculated run without mutating anything. It
// is deterministic for a fixed run state and safe to call repeatedly.
type ValidationService struct {
	runs       royalty.RunRepository
	statements royalty.StatementRepository
	ownerships catalog.OwnershipReader
	clock      Clock
	multiplier int64
}

// NewValidationService constructs the service. outlierMultiplier flags
// creators earning more than that many times the median; zero means the
// default of 3.
func NewValidationService(
	runs royalty.RunRepository,
	statements royalty.StatementRepository,
	ownerships catalog.OwnershipReader,
	clock Clock,
	outlierMultiplier int64,
) (*ValidationService, error) {
	if runs == nil {
		return nil, errors.New("validation service: nil run repository")
	}
	if statements == nil {
		return nil, errors.New("validation service: nil statement repository")
	}
	if ownerships == nil {
		return nil, errors.New("validation service: nil ownership reader")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if outlierMultiplier <= 0 {
		outlierMultiplier = defaultOutlierMultiplier
	}
	return &ValidationService{
		runs:       runs,
		statements: statements,
		ownerships: ownerships,
		clock:      clock,
		multiplier: outlierMultiplier,
	}, nil
}

// Report runs every check against a CALCULATED (or later) run.
func (s *ValidationService) Report(ctx context.Context, runID string) (*ValidationReport, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveValidate(result, time.Since(start))
	}()

	report, err := s.report(ctx, runID)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return report, nil
}

func (s *ValidationService) report(ctx context.Context, runID string) (*ValidationReport, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, royalty.ErrRunNotFound
	}
	if run.Status == royalty.RunStatusDraft || (run.Status.Terminal() && run.Status != royalty.RunStatusCompleted) {
		return nil, royalty.ErrInvalidTransition
	}

	statements, err := s.statements.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	lines, err := s.statements.ListLinesByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	report := &ValidationReport{
		RunID:             runID,
		GeneratedAt:       s.clock.Now(),
		Errors:            []string{},
		Warnings:          []string{},
		RevenueByAsset:    make(map[string]int64),
		EarningsByCreator: make(map[string]int64),
	}

	linesByStatement := make(map[string][]royalty.Line, len(statements))
	for _, line := range lines {
		linesByStatement[line.StatementID] = append(linesByStatement[line.StatementID], line)
	}

	// Breakdowns. Usage lines carry the full license revenue per owner, so
	// revenue-by-asset counts each (license, window) once.
	seenRevenue := make(map[string]bool)
	for _, line := range lines {
		if line.Kind != royalty.LineKindUsage {
			continue
		}
		key := line.LicenseID + "|" + line.PeriodStart.Format(time.RFC3339)
		if !seenRevenue[key] {
			seenRevenue[key] = true
			report.RevenueByAsset[line.AssetID] += line.RevenueCents
		}
	}
	for _, stmt := range statements {
		report.EarningsByCreator[stmt.CreatorID] += stmt.TotalCents
	}

	s.checkMathConsistency(report, run, statements, lines)
	s.checkOwnershipIntegrity(ctx, report, lines)
	s.checkPeriodBoundary(report, run, lines)
	s.checkDisputeGate(report, statements)
	s.checkNonNegativity(report, statements, lines)
	s.detectOutliers(report, statements, linesByStatement)

	report.Summary = ValidationSummary{
		TotalRevenueCents:   run.TotalRevenueCents,
		TotalRoyaltiesCents: run.TotalRoyaltiesCents,
		StatementCount:      len(statements),
		LineCount:           len(lines),
		MedianEarningsCents: medianEarnings(statements),
	}
	report.IsValid = len(report.Errors) == 0
	return report, nil
}

func (s *ValidationService) addCheck(report *ValidationReport, name string, passed bool, detail string) {
	report.Checks = append(report.Checks, ValidationCheck{Name: name, Passed: passed, Detail: detail})
	if !passed {
		report.Errors = append(report.Errors, name+": "+detail)
	}
}

func (s *ValidationService) checkMathConsistency(report *ValidationReport, run *royalty.Run, statements []royalty.Statement, lines []royalty.Line) {
	var sum int64
	for _, stmt := range statements {
		sum += stmt.TotalCents
	}
	if sum != run.TotalRoyaltiesCents {
		s.addCheck(report, CheckMathConsistency, false,
			fmt.Sprintf("run total royalties %d != sum of statement totals %d", run.TotalRoyaltiesCents, sum))
		return
	}

	// Statement totals include balances carried over from prior runs, so only
	// the royalties earned in this period are bounded by this period's revenue.
	var carried int64
	for _, line := range lines {
		if line.Kind == royalty.LineKindCarryover {
			carried += line.RoyaltyCents
		}
	}
	if sum-carried > run.TotalRevenueCents {
		s.addCheck(report, CheckMathConsistency, false,
			fmt.Sprintf("royalties earned this period %d exceed total revenue %d", sum-carried, run.TotalRevenueCents))
		return
	}
	s.addCheck(report, CheckMathConsistency, true, "")
}

func (s *ValidationService) checkOwnershipIntegrity(ctx context.Context, report *ValidationReport, lines []royalty.Line) {
	assets := make(map[string]bool)
	for _, line := range lines {
		if line.Kind == royalty.LineKindUsage && line.AssetID != "" {
			assets[line.AssetID] = true
		}
	}
	assetIDs := make([]string, 0, len(assets))
	for id := range assets {
		assetIDs = append(assetIDs, id)
	}
	sort.Strings(assetIDs)

	for _, assetID := range assetIDs {
		shares, err := s.ownerships.ListActiveByAsset(ctx, assetID)
		if err != nil {
			s.addCheck(report, CheckOwnershipIntegrity, false, "asset "+assetID+": "+err.Error())
			return
		}
		total := 0
		for _, share := range shares {
			total += share.ShareBps
		}
		if total != royalty.TotalShareBps {
			s.addCheck(report, CheckOwnershipIntegrity, false,
				fmt.Sprintf("asset %s: shares sum to %d bps", assetID, total))
			return
		}
	}
	s.addCheck(report, CheckOwnershipIntegrity, true, "")
}

func (s *ValidationService) checkPeriodBoundary(report *ValidationReport, run *royalty.Run, lines []royalty.Line) {
	period := run.Period()
	for _, line := range lines {
		window := royalty.Period{Start: line.PeriodStart.UTC(), End: line.PeriodEnd.UTC()}
		if !period.Contains(window) {
			s.addCheck(report, CheckPeriodBoundary, false,
				fmt.Sprintf("line %s window [%s, %s) outside run period", line.ID,
					window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339)))
			return
		}
	}
	s.addCheck(report, CheckPeriodBoundary, true, "")
}

func (s *ValidationService) checkDisputeGate(report *ValidationReport, statements []royalty.Statement) {
	disputed := 0
	for _, stmt := range statements {
		if stmt.Status == royalty.StatementStatusDisputed {
			disputed++
		}
	}
	if disputed > 0 {
		s.addCheck(report, CheckDisputeGate, false, fmt.Sprintf("%d statements disputed", disputed))
		return
	}
	s.addCheck(report, CheckDisputeGate, true, "")
}

func (s *ValidationService) checkNonNegativity(report *ValidationReport, statements []royalty.Statement, lines []royalty.Line) {
	for _, stmt := range statements {
		if stmt.TotalCents < 0 {
			s.addCheck(report, CheckNonNegativity, false, "statement "+stmt.ID+" has negative total")
			return
		}
	}
	for _, line := range lines {
		if line.RoyaltyCents < 0 || line.RevenueCents < 0 {
			s.addCheck(report, CheckNonNegativity, false, "line "+line.ID+" has negative amount")
			return
		}
	}
	s.addCheck(report, CheckNonNegativity, true, "")
}

func (s *ValidationService) detectOutliers(report *ValidationReport, statements []royalty.Statement, linesByStatement map[string][]royalty.Line) {
	median := medianEarnings(statements)
	ordered := append([]royalty.Statement(nil), statements...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].CreatorID < ordered[j].CreatorID })

	for _, stmt := range ordered {
		if median > 0 && stmt.TotalCents > s.multiplier*median {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("creator %s earnings %d exceed %dx median %d", stmt.CreatorID, stmt.TotalCents, s.multiplier, median))
		}
		if stmt.TotalCents == 0 && len(linesByStatement[stmt.ID]) > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("statement %s has %d lines but zero earnings", stmt.ID, len(linesByStatement[stmt.ID])))
		}
	}
}

func medianEarnings(statements []royalty.Statement) int64 {
	if len(statements) == 0 {
		return 0
	}
	totals := make([]int64, 0, len(statements))
	for _, stmt := range statements {
		totals = append(totals, stmt.TotalCents)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i] < totals[j] })
	mid := len(totals) / 2
	if len(totals)%2 == 1 {
		return totals[mid]
	}
	return (totals[mid-1] + totals[mid]) / 2
}
