package db

import (
	"database/sql"
	"fmt"
	"time"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

// InsertCycle records one automation cycle and returns its row id.
func InsertCycle(db *sql.DB, c Cycle) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("start transaction: %w", err)
	}
	id, err := InsertCycleWithTx(tx, c)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	return id, tx.Commit()
}

func InsertCycleWithTx(tx *sql.Tx, c Cycle) (int64, error) {
	var sensor sql.NullFloat64
	if c.Sensor != nil {
		sensor = sql.NullFloat64{Float64: *c.Sensor, Valid: true}
	}
	applied := "{}"
	if len(c.Applied) > 0 {
		applied = marshalJSON(c.Applied)
	}

	res, err := tx.Exec(`INSERT INTO automation_cycles (recorded_at, sensor, status, outcome, lower_bound, upper_bound, applied, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.RecordedAt.UTC().Format(time.RFC3339), sensor, string(c.Status), c.Outcome, c.LowerBound, c.UpperBound, applied, c.Error)
	if err != nil {
		return 0, fmt.Errorf("insert automation cycle: %w", err)
	}
	return res.LastInsertId()
}

// InsertOverride records one detected manual change.
func InsertOverride(db *sql.DB, o Override) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO overrides (recorded_at, property, expected, actual, paused) VALUES (?, ?, ?, ?, ?)`,
		o.RecordedAt.UTC().Format(time.RFC3339), o.Property, string(o.Expected), string(o.Actual), o.Paused)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert override: %w", err)
	}
	return tx.Commit()
}

// PruneCycles deletes cycles recorded before cutoff and returns how many went.
func PruneCycles(db *sql.DB, cutoff time.Time) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("start transaction: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM automation_cycles WHERE recorded_at < ?`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("prune automation cycles: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return res.RowsAffected()
}
