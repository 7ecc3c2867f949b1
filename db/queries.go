package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/thatsimonsguy/purifier-controller/internal/model"
)

// RecentCycles returns up to limit cycles, newest first.
func RecentCycles(db *sql.DB, limit int) ([]Cycle, error) {
	rows, err := db.Query(`SELECT id, recorded_at, sensor, status, outcome, lower_bound, upper_bound, applied, error FROM automation_cycles ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query automation cycles: %w", err)
	}
	defer rows.Close()

	cycles := []Cycle{}
	for rows.Next() {
		var c Cycle
		var recordedAt, applied, status string
		var sensor sql.NullFloat64

		err = rows.Scan(&c.ID, &recordedAt, &sensor, &status, &c.Outcome, &c.LowerBound, &c.UpperBound, &applied, &c.Error)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation cycle: %w", err)
		}
		c.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		c.Status = model.Status(status)
		if sensor.Valid {
			v := sensor.Float64
			c.Sensor = &v
		}
		if err := json.Unmarshal([]byte(applied), &c.Applied); err != nil {
			return nil, fmt.Errorf("failed to decode applied commands for cycle %d: %w", c.ID, err)
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// RecentOverrides returns up to limit overrides, newest first.
func RecentOverrides(db *sql.DB, limit int) ([]Override, error) {
	rows, err := db.Query(`SELECT id, recorded_at, property, expected, actual, paused FROM overrides ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	defer rows.Close()

	overrides := []Override{}
	for rows.Next() {
		var o Override
		var recordedAt, expected, actual string

		if err := rows.Scan(&o.ID, &recordedAt, &o.Property, &expected, &actual, &o.Paused); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		o.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		o.Expected = model.Value(expected)
		o.Actual = model.Value(actual)
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}
