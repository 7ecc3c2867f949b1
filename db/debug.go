package db

import (
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

func PrintHistoryCLI(w io.Writer, dbPath string, limit int) error {
	dbConn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	cycles, err := RecentCycles(dbConn, limit)
	if err != nil {
		return err
	}
	for _, c := range cycles {
		sensor := "-"
		if c.Sensor != nil {
			sensor = fmt.Sprintf("%g", *c.Sensor)
		}
		outcome := c.Outcome
		if c.Error != "" {
			outcome = c.Error
		}
		fmt.Fprintf(w, "%s  sensor=%-6s band=[%g,%g]  %-8s %s %s\n",
			c.RecordedAt.Local().Format(time.DateTime), sensor, c.LowerBound, c.UpperBound,
			c.Status, outcome, formatApplied(c))
	}
	return nil
}

func PrintOverridesCLI(w io.Writer, dbPath string, limit int) error {
	dbConn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	overrides, err := RecentOverrides(dbConn, limit)
	if err != nil {
		return err
	}
	for _, o := range overrides {
		paused := ""
		if o.Paused {
			paused = " (paused)"
		}
		fmt.Fprintf(w, "%s  %s: %s -> %s%s\n",
			o.RecordedAt.Local().Format(time.DateTime), o.Property, o.Expected, o.Actual, paused)
	}
	return nil
}

func PruneCyclesCLI(dbPath string, olderThan time.Duration) (int64, error) {
	dbConn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return 0, err
	}
	defer dbConn.Close()
	return PruneCycles(dbConn, time.Now().Add(-olderThan))
}

func formatApplied(c Cycle) string {
	if len(c.Applied) == 0 {
		return ""
	}
	keys := make([]string, 0, len(c.Applied))
	for k := range c.Applied {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + string(c.Applied[k])
	}
	return strings.Join(parts, " ")
}
