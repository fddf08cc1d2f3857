package db

// SQLite-backed trigger event log. Every fired trigger is appended so the
// host can review session history and correlate clips with the training
// samples that produced them (via sample_base).

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"swing-trigger/models"
	"swing-trigger/utils"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %s", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %s", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("error creating tables: %s", err)
	}

	return &SQLiteClient{db: db}, nil
}

func createTables(db *sql.DB) error {
	createTriggersTable := `
    CREATE TABLE IF NOT EXISTS triggers (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        confidence REAL NOT NULL DEFAULT 0,
        level REAL NOT NULL DEFAULT 0,
        threshold REAL NOT NULL DEFAULT 0,
        features TEXT NOT NULL,
        sample_base TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_triggers_timestamp ON triggers(timestamp);
    `

	if _, err := db.Exec(createTriggersTable); err != nil {
		return fmt.Errorf("error creating triggers table: %s", err)
	}
	return nil
}

func (c *SQLiteClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// StoreTrigger appends one trigger record and fills in its assigned ID.
func (c *SQLiteClient) StoreTrigger(record *models.TriggerRecord) error {
	result, err := c.db.Exec(
		`INSERT INTO triggers (timestamp, confidence, level, threshold, features, sample_base)
         VALUES (?, ?, ?, ?, ?, ?)`,
		record.Timestamp, record.Confidence, record.Level, record.Threshold,
		string(record.Features), record.SampleBase,
	)
	if err != nil {
		return fmt.Errorf("error inserting trigger: %s", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		record.ID = id
	}
	return nil
}

// RecentTriggers returns up to limit records, newest first.
func (c *SQLiteClient) RecentTriggers(limit int) ([]models.TriggerRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.db.Query(
		`SELECT id, timestamp, confidence, level, threshold, features, COALESCE(sample_base, '')
         FROM triggers ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying triggers: %s", err)
	}
	defer rows.Close()

	var records []models.TriggerRecord
	for rows.Next() {
		var rec models.TriggerRecord
		var features string
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Confidence, &rec.Level,
			&rec.Threshold, &features, &rec.SampleBase); err != nil {
			return nil, fmt.Errorf("error scanning trigger row: %s", err)
		}
		rec.Features = []byte(features)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trigger rows: %s", err)
	}
	return records, nil
}

// TotalTriggers counts all stored trigger events.
func (c *SQLiteClient) TotalTriggers() (int, error) {
	var count int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM triggers").Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting triggers: %s", err)
	}
	return count, nil
}
