package monitor

import (
	"fmt"
	"log"
	"sync"

	"github.com/itohio/gofreqmeter/pkg/config"
)

// Alarm identifies a monitored quantity.
type Alarm string

const (
	OverPressure    Alarm = "over_pressure"
	OverTemperature Alarm = "over_temperature"
	CPUOverheat     Alarm = "cpu_overheat"
	LowVoltage      Alarm = "low_voltage"
)

// All lists every alarm.
var All = []Alarm{OverPressure, OverTemperature, CPUOverheat, LowVoltage}

// Event describes a confirmed alarm.
type Event struct {
	Alarm Alarm   `json:"alarm"`
	Value float32 `json:"value"`
	Limit float32 `json:"limit"`
}

type rule struct {
	dir   Direction
	limit func(c *config.Config) float32
	flag  func(c *config.Config) *bool
}

var rules = map[Alarm]rule{
	OverPressure: {
		dir:   Above,
		limit: func(c *config.Config) float32 { return c.Ranges.Pressure.AbsMax },
		flag:  func(c *config.Config) *bool { return &c.Monitoring.Flags.OverPressure },
	},
	OverTemperature: {
		dir:   Above,
		limit: func(c *config.Config) float32 { return c.Ranges.Temperature.AbsMax },
		flag:  func(c *config.Config) *bool { return &c.Monitoring.Flags.OverTemperature },
	},
	CPUOverheat: {
		dir:   Above,
		limit: func(c *config.Config) float32 { return c.Monitoring.CPUTemperature },
		flag:  func(c *config.Config) *bool { return &c.Monitoring.Flags.CPUOverheat },
	},
	LowVoltage: {
		dir:   Below,
		limit: func(c *config.Config) float32 { return c.Power.MinBatteryVoltage },
		flag:  func(c *config.Config) *bool { return &c.Monitoring.Flags.LowVoltage },
	},
}

// Alarms checks readings against the limits held in the settings store and
// records confirmed alarms as sticky flags.
type Alarms struct {
	store *config.Store

	mu       sync.Mutex
	monitors map[Alarm]*Threshold

	cbMu      sync.RWMutex
	callbacks []func(Event)
}

// NewAlarms creates the alarm set. The confirmation count is taken from
// the store once.
func NewAlarms(store *config.Store) (*Alarms, error) {
	var confirm uint32
	if err := store.Read(func(c *config.Config) { confirm = c.Monitoring.ConfirmCount }); err != nil {
		return nil, fmt.Errorf("read monitoring settings: %w", err)
	}

	a := &Alarms{
		store:    store,
		monitors: make(map[Alarm]*Threshold, len(rules)),
	}
	for name, r := range rules {
		a.monitors[name] = NewThreshold(r.dir, confirm)
	}
	return a, nil
}

// OnRise registers a callback invoked for every confirmed alarm.
func (a *Alarms) OnRise(cb func(Event)) {
	a.cbMu.Lock()
	defer a.cbMu.Unlock()
	a.callbacks = append(a.callbacks, cb)
}

// Check feeds a reading of the quantity behind alarm. It returns true when
// the alarm was confirmed and recorded. Errors are transient settings
// access failures: the monitor is left ready to confirm on the next reading.
func (a *Alarms) Check(alarm Alarm, current float32) (bool, error) {
	r, ok := rules[alarm]
	if !ok {
		return false, fmt.Errorf("unknown alarm %q", alarm)
	}

	var limit float32
	if err := a.store.Read(func(c *config.Config) { limit = r.limit(c) }); err != nil {
		return false, err
	}

	a.mu.Lock()
	th := a.monitors[alarm]
	rose := th.Check(current, limit)
	a.mu.Unlock()
	if !rose {
		return false, nil
	}

	err := a.store.Modify(func(c *config.Config) error {
		*r.flag(c) = true
		return nil
	})
	if err != nil {
		a.mu.Lock()
		th.Retry()
		a.mu.Unlock()
		return false, fmt.Errorf("record %s: %w", alarm, err)
	}
	a.store.RequestPersist()
	log.Printf("monitor: %s confirmed (value %.3f, limit %.3f)", alarm, current, limit)

	ev := Event{Alarm: alarm, Value: current, Limit: limit}
	a.cbMu.RLock()
	callbacks := make([]func(Event), len(a.callbacks))
	copy(callbacks, a.callbacks)
	a.cbMu.RUnlock()
	for _, cb := range callbacks {
		cb(ev)
	}
	return true, nil
}

// Acknowledge clears the sticky flag of alarm and re-arms its monitor.
func (a *Alarms) Acknowledge(alarm Alarm) error {
	r, ok := rules[alarm]
	if !ok {
		return fmt.Errorf("unknown alarm %q", alarm)
	}
	if err := a.store.Modify(func(c *config.Config) error {
		*r.flag(c) = false
		return nil
	}); err != nil {
		return err
	}
	a.mu.Lock()
	a.monitors[alarm].Reset()
	a.mu.Unlock()
	a.store.RequestPersist()
	return nil
}
