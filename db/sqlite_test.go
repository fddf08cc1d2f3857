package db

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"swing-trigger/models"
)

func newTestClient(t *testing.T) *SQLiteClient {
	t.Helper()
	client, err := NewSQLiteClient(filepath.Join(t.TempDir(), "triggers.db"))
	if err != nil {
		t.Fatalf("NewSQLiteClient failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func testRecord(ts time.Time, confidence float64) models.TriggerRecord {
	return models.TriggerRecord{
		Timestamp:  ts,
		Confidence: confidence,
		Level:      0.6,
		Threshold:  0.3,
		Features:   json.RawMessage(`{"crest_factor":8.2}`),
		SampleBase: "trigger_" + ts.UTC().Format("20060102150405"),
	}
}

func TestStoreTriggerAssignsID(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)

	record := testRecord(time.Now(), 0.8)
	if err := client.StoreTrigger(&record); err != nil {
		t.Fatalf("StoreTrigger failed: %v", err)
	}
	if record.ID == 0 {
		t.Error("stored record was not assigned an ID")
	}
}

func TestRecentTriggersNewestFirst(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 5; i++ {
		record := testRecord(base.Add(time.Duration(i)*time.Minute), float64(i))
		if err := client.StoreTrigger(&record); err != nil {
			t.Fatalf("StoreTrigger failed: %v", err)
		}
	}

	records, err := client.RecentTriggers(3)
	if err != nil {
		t.Fatalf("RecentTriggers failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("record count = %d, want 3", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].Timestamp.After(records[i-1].Timestamp) {
			t.Errorf("records out of order: %v before %v", records[i-1].Timestamp, records[i].Timestamp)
		}
	}
	if records[0].Confidence != 4 {
		t.Errorf("newest record confidence = %v, want 4", records[0].Confidence)
	}
}

func TestTotalTriggersCountsAllRows(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)

	if n, err := client.TotalTriggers(); err != nil || n != 0 {
		t.Fatalf("TotalTriggers on empty log = %d, %v; want 0, nil", n, err)
	}

	base := time.Now()
	for i := 0; i < 4; i++ {
		record := testRecord(base.Add(time.Duration(i)*time.Second), 0.9)
		if err := client.StoreTrigger(&record); err != nil {
			t.Fatalf("StoreTrigger failed: %v", err)
		}
	}

	n, err := client.TotalTriggers()
	if err != nil {
		t.Fatalf("TotalTriggers failed: %v", err)
	}
	if n != 4 {
		t.Errorf("TotalTriggers = %d, want 4", n)
	}
}
