package db

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/purifier-controller/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Cycle is one recorded automation cycle.
type Cycle struct {
	ID         int64          `json:"id"`
	RecordedAt time.Time      `json:"recorded_at"`
	Sensor     *float64       `json:"sensor,omitempty"`
	Status     model.Status   `json:"status"`
	Outcome    string         `json:"outcome"`
	LowerBound float64        `json:"lower_bound"`
	UpperBound float64        `json:"upper_bound"`
	Applied    model.Commands `json:"applied"`
	Error      string         `json:"error,omitempty"`
}

// Override is one recorded manual change on a managed property.
type Override struct {
	ID         int64       `json:"id"`
	RecordedAt time.Time   `json:"recorded_at"`
	Property   string      `json:"property"`
	Expected   model.Value `json:"expected"`
	Actual     model.Value `json:"actual"`
	Paused     bool        `json:"paused"`
}

// Open opens the history database at dbPath, creating the parent directory
// and schema when missing. ":memory:" is accepted for tests.
func Open(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a pooled second connection to :memory: would see an empty database
	conn.SetMaxOpenConns(1)

	if err := ApplySchema(conn); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info().Str("path", dbPath).Msg("History database ready")
	return conn, nil
}

// ApplySchema creates any missing tables. It is safe to run repeatedly.
func ApplySchema(conn *sql.DB) error {
	if _, err := conn.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func marshalJSON(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}
