package royalty

import (
	"strings"
	"testing"
	"time"
)

func TestArchiveRecordRoundTrip(t *testing.T) {
	record := ArchiveRecord{
		SchemaVersion: ArchiveSchemaVersion,
		ArchivedAt:    day(2025, 2, 3),
		Reason:        "ownership split corrected after calculation",
		Actor:         "admin-1",
		Run: ArchivedRun{
			ID:                  "run-1",
			Status:              string(RunStatusCalculated),
			PeriodStart:         day(2025, 1, 1),
			PeriodEnd:           day(2025, 2, 1),
			TotalRevenueCents:   10000,
			TotalRoyaltiesCents: 10000,
		},
		Statements: []ArchivedStatement{
			{
				ID:         "stmt-1",
				CreatorID:  "creator-a",
				TotalCents: 6000,
				Status:     string(StatementStatusPending),
				Lines: []ArchivedLine{
					{Kind: string(LineKindUsage), LicenseID: "lic-1", AssetID: "asset-1", RevenueCents: 10000, ShareBps: 6000, RoyaltyCents: 6000},
				},
			},
		},
	}

	encoded, err := record.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(encoded, "\n") {
		t.Fatal("encoded record must be a single ledger line")
	}

	notes := "opened for january\n" + encoded
	records := ParseArchiveLedger(notes)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	got := records[0]
	if got.SchemaVersion != ArchiveSchemaVersion {
		t.Fatalf("schema version = %d", got.SchemaVersion)
	}
	if got.Run.ID != "run-1" || got.Run.TotalRoyaltiesCents != 10000 {
		t.Fatalf("run = %+v", got.Run)
	}
	if len(got.Statements) != 1 || len(got.Statements[0].Lines) != 1 {
		t.Fatalf("statements = %+v", got.Statements)
	}
}

func TestParseArchiveLedger_SkipsNoise(t *testing.T) {
	notes := strings.Join([]string{
		"free-text note",
		"{not json",
		`{"schema_version":0}`,
		`{"schema_version":1,"archived_at":"2025-02-03T00:00:00Z","reason":"r","run":{"id":"run-2"}}`,
		"",
	}, "\n")

	records := ParseArchiveLedger(notes)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].Run.ID != "run-2" {
		t.Fatalf("run id = %s", records[0].Run.ID)
	}
	if !records[0].ArchivedAt.Equal(time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("archived at = %s", records[0].ArchivedAt)
	}
}

func TestParseArchiveLedger_MultipleRollbacks(t *testing.T) {
	first := ArchiveRecord{SchemaVersion: 1, Reason: "first", Run: ArchivedRun{ID: "run-3"}}
	second := ArchiveRecord{SchemaVersion: 1, Reason: "second", Run: ArchivedRun{ID: "run-3"}}
	firstLine, _ := first.Encode()
	secondLine, _ := second.Encode()

	records := ParseArchiveLedger(firstLine + "\n" + secondLine)
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].Reason != "first" || records[1].Reason != "second" {
		t.Fatalf("order not preserved: %+v", records)
	}
}
