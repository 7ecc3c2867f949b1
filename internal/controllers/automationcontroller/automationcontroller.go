package automationcontroller

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/purifier-controller/db"
	"github.com/thatsimonsguy/purifier-controller/internal/appliance"
	"github.com/thatsimonsguy/purifier-controller/internal/automation"
	"github.com/thatsimonsguy/purifier-controller/internal/datadog"
	"github.com/thatsimonsguy/purifier-controller/internal/model"
	"github.com/thatsimonsguy/purifier-controller/internal/mqtt"
	"github.com/thatsimonsguy/purifier-controller/internal/notifications"
)

var gauge = datadog.Gauge
var count = datadog.Count

// NotifyFunc delivers a push notification, e.g. notifications.Send.
type NotifyFunc func(n notifications.Notice) error

// Runner owns a Controller and is the only way the rest of the process
// reaches it. Every call is serialized on one mutex.
type Runner struct {
	mu sync.Mutex

	ctrl      *automation.Controller
	appliance appliance.Appliance
	db        *sql.DB
	publisher mqtt.Publisher
	notify    NotifyFunc

	overrides []automation.Override
}

// New wires a runner. dbConn, publisher and notify may be nil.
func New(ctrl *automation.Controller, a appliance.Appliance, dbConn *sql.DB, publisher mqtt.Publisher, notify NotifyFunc) *Runner {
	r := &Runner{
		ctrl:      ctrl,
		appliance: a,
		db:        dbConn,
		publisher: publisher,
		notify:    notify,
	}
	ctrl.OnOverride = func(o automation.Override) {
		r.overrides = append(r.overrides, o)
	}
	return r
}

// RunAutomationController polls the appliance every interval until ctx is
// cancelled.
func RunAutomationController(ctx context.Context, r *Runner, interval time.Duration) {
	go func() {
		log.Info().Dur("interval", interval).Msg("Starting automation controller")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Automation controller stopped")
				return
			case <-time.After(interval):
			}

			r.RunCycle(ctx, nil)
		}
	}()
}

// RunCycle runs one automation cycle, then records and reports it. reading
// overrides the sensor property when non-nil.
func (r *Runner) RunCycle(ctx context.Context, reading *float64) automation.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := r.ctrl.State()
	r.overrides = nil

	res := r.ctrl.DoAutomation(ctx, reading)

	after := r.ctrl.State()
	now := r.ctrl.Now()
	props := r.appliance.Properties()
	sensor := r.sensorValue(reading, props)
	pauseOpened := after.PauseEnd.After(before.PauseEnd)

	log.Debug().
		Str("automation", res.Automation).
		Str("error", res.Error).
		Str("status", string(after.Status)).
		Float64("lower_bound", after.Lower).
		Float64("upper_bound", after.Upper).
		Msg("Automation cycle complete")

	r.record(now, sensor, res, after, pauseOpened)
	r.emitMetrics(sensor, res, after)
	r.publish(now, sensor, res, after, props)
	r.notifyTransitions(before, after, res, pauseOpened)

	return res
}

func (r *Runner) sensorValue(reading *float64, props model.Properties) *float64 {
	if reading != nil {
		v := *reading
		return &v
	}
	raw, ok := props[r.ctrl.Config().SensorKey]
	if !ok {
		return nil
	}
	v, ok := raw.Float()
	if !ok {
		return nil
	}
	return &v
}

func outcome(res automation.Result) string {
	if res.Error != "" {
		return "error"
	}
	return res.Automation
}

func (r *Runner) record(now time.Time, sensor *float64, res automation.Result, st automation.State, pauseOpened bool) {
	if r.db == nil {
		return
	}

	_, err := db.InsertCycle(r.db, db.Cycle{
		RecordedAt: now,
		Sensor:     sensor,
		Status:     st.Status,
		Outcome:    outcome(res),
		LowerBound: st.Lower,
		UpperBound: st.Upper,
		Applied:    res.Applied,
		Error:      res.Error,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to record automation cycle")
	}

	marked := false
	for _, o := range r.overrides {
		paused := pauseOpened && o.Armed && !marked
		if paused {
			marked = true
		}
		err := db.InsertOverride(r.db, db.Override{
			RecordedAt: o.At,
			Property:   o.Property,
			Expected:   o.Expected,
			Actual:     o.Actual,
			Paused:     paused,
		})
		if err != nil {
			log.Error().Err(err).Str("property", o.Property).Msg("Failed to record override")
		}
	}
}

func (r *Runner) emitMetrics(sensor *float64, res automation.Result, st automation.State) {
	if sensor != nil {
		gauge("sensor", *sensor)
	}
	gauge("lower_bound", st.Lower)
	gauge("upper_bound", st.Upper)

	paused := 0.0
	if !st.PauseEnd.IsZero() {
		paused = 1
	}
	gauge("paused", paused)

	count("cycles", 1, "outcome:"+outcome(res))
	if len(res.Applied) > 0 {
		count("commands_applied", int64(len(res.Applied)))
	}
	if len(r.overrides) > 0 {
		count("overrides", int64(len(r.overrides)))
	}
}

func (r *Runner) publish(now time.Time, sensor *float64, res automation.Result, st automation.State, props model.Properties) {
	if r.publisher == nil {
		return
	}

	result, err := json.Marshal(res)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode cycle result")
		return
	}
	properties, err := json.Marshal(props)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode appliance properties")
		return
	}

	err = r.publisher.PublishStatus(mqtt.Status{
		Timestamp:  now,
		Sensor:     sensor,
		Lower:      st.Lower,
		Upper:      st.Upper,
		State:      string(st.Status),
		PausedFor:  r.ctrl.Automation().Paused,
		Result:     result,
		Properties: properties,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to publish automation status")
	}
}

func (r *Runner) notifyTransitions(before, after automation.State, res automation.Result, pauseOpened bool) {
	if r.notify == nil {
		return
	}

	switch {
	case after.Status == model.StatusError && before.Status != model.StatusError:
		r.send(notifications.AutomationError(res.Error))
	case before.Status == model.StatusError && after.Status == model.StatusReady:
		r.send(notifications.AutomationRecovered())
	}
	if pauseOpened {
		r.send(notifications.AutomationPaused(r.pausingProperty(), res.Automation))
	}
}

func (r *Runner) send(n notifications.Notice) {
	if err := r.notify(n); err != nil {
		log.Warn().Err(err).Str("title", n.Title).Msg("Failed to send notification")
	}
}

// pausingProperty is the first armed override of the cycle, the one that
// opened the pause.
func (r *Runner) pausingProperty() string {
	for _, o := range r.overrides {
		if o.Armed {
			return o.Property
		}
	}
	return ""
}

func (r *Runner) Automation() automation.Toggle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctrl.Automation()
}

func (r *Runner) SetAutomation(enabled bool) automation.Toggle {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.ctrl.SetAutomation(enabled)
}

func (r *Runner) Config() model.AutomationConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctrl.Config()
}

func (r *Runner) SetConfig(cfg model.AutomationConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ctrl.SetConfig(cfg); err != nil {
		return err
	}
	log.Info().
		Str("sensor_key", cfg.SensorKey).
		Int("switch_points", len(cfg.SwitchPoints)).
		Msg("Automation config updated")
	return nil
}

func (r *Runner) State() automation.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctrl.State()
}

func (r *Runner) Properties() model.Properties {
	return r.appliance.Properties()
}

// History returns the latest recorded cycles, newest first.
func (r *Runner) History(limit int) ([]db.Cycle, error) {
	if r.db == nil {
		return []db.Cycle{}, nil
	}
	return db.RecentCycles(r.db, limit)
}

// Overrides returns the latest recorded overrides, newest first.
func (r *Runner) Overrides(limit int) ([]db.Override, error) {
	if r.db == nil {
		return []db.Override{}, nil
	}
	return db.RecentOverrides(r.db, limit)
}
