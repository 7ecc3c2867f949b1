package automation

import (
	"fmt"

	"github.com/thatsimonsguy/purifier-controller/internal/appliance"
	"github.com/thatsimonsguy/purifier-controller/internal/model"
)

// selectPoint scans the table from the top and returns the index of the first
// point whose threshold lies strictly below v, or -1 when none does. A reading
// equal to a threshold therefore lands on the point beneath it.
func selectPoint(points []model.SwitchPoint, v float64) int {
	for i := len(points) - 1; i >= 0; i-- {
		if v > points[i].Threshold {
			return i
		}
	}
	return -1
}

// boundsFor returns the dead-band that keeps point i selected.
func boundsFor(cfg model.AutomationConfig, i int) (lower, upper float64) {
	last := len(cfg.SwitchPoints) - 1
	lower = cfg.SwitchPoints[i].Threshold - cfg.SwitchDelta

	switch i {
	case 0:
		upper = cfg.SwitchOnPoint
	case last:
		upper = cfg.SensorMax() + 1
	default:
		upper = cfg.SwitchPoints[i+1].Threshold + cfg.SwitchDelta
	}
	return lower, upper
}

// validateConfig rejects tables the appliance cannot carry out: structural
// problems and command keys that have no registered setter.
func validateConfig(cfg model.AutomationConfig, reg *appliance.Registry) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for i, p := range cfg.SwitchPoints {
		for key := range p.Commands {
			if !reg.Has(key) {
				return fmt.Errorf("switch_points[%d]: no capability registered for %q", i, key)
			}
		}
	}
	return nil
}
