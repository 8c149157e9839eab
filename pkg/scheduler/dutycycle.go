// Package scheduler paces sensor power and page writes.
package scheduler

// State of a channel in its duty cycle.
type State int

const (
	Ready    State = iota // powered and measuring
	Heating               // powered, waiting for the sensor to settle
	Sleeping              // powered off
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Heating:
		return "heating"
	case Sleeping:
		return "sleeping"
	}
	return "unknown"
}

// Event is an action the controller must take for a channel.
type Event int

const (
	None            Event = iota
	Preheat               // power the sensor on
	MeasureAndSleep       // take the result and power the sensor off
	Measure               // take the result, the sensor stays on
)

func (e Event) String() string {
	switch e {
	case None:
		return "none"
	case Preheat:
		return "preheat"
	case MeasureAndSleep:
		return "measure_and_sleep"
	case Measure:
		return "measure"
	}
	return "unknown"
}

// Mode is the cadence of a channel.
type Mode int

const (
	// HeatMeasureStop powers the sensor only for preheat before every measurement.
	HeatMeasureStop Mode = iota
	// MeasureOnly keeps the sensor powered, used when preheat is not shorter than the write period.
	MeasureOnly
)

func (m Mode) String() string {
	if m == MeasureOnly {
		return "measure_only"
	}
	return "heat_measure_stop"
}

// DutyCycle tracks the state of one channel in milliseconds.
type DutyCycle struct {
	mode    Mode
	period  uint32
	preheat uint32
	state   State
	elapsed uint32 // since the last event
}

// NewDutyCycle derives the mode from the write period and the preheat
// time. A HeatMeasureStop cycle starts asleep.
func NewDutyCycle(periodMs, preheatMs uint32) *DutyCycle {
	d := &DutyCycle{period: max(periodMs, 1), preheat: preheatMs}
	if preheatMs >= periodMs {
		d.mode = MeasureOnly
		d.state = Ready
	} else {
		d.mode = HeatMeasureStop
		d.state = Sleeping
	}
	return d
}

// NewAlwaysOn creates a MeasureOnly cycle regardless of preheat.
func NewAlwaysOn(periodMs uint32) *DutyCycle {
	return &DutyCycle{mode: MeasureOnly, period: max(periodMs, 1), state: Ready}
}

// StartHeating puts a HeatMeasureStop cycle into Heating as if Preheat had
// just fired; the next event is MeasureAndSleep after the preheat time.
func (d *DutyCycle) StartHeating() {
	if d.mode == HeatMeasureStop {
		d.state = Heating
		d.elapsed = 0
	}
}

// StartAligned schedules the first measurement leadMs from now. A
// HeatMeasureStop cycle whose preheat is shorter than leadMs sleeps for the
// difference first, so channels with different preheat times measure
// together. A MeasureOnly cycle measures after leadMs, or after a full
// period when leadMs is zero.
func (d *DutyCycle) StartAligned(leadMs uint32) {
	if d.mode == MeasureOnly {
		d.state = Ready
		d.elapsed = 0
		if leadMs > 0 {
			d.elapsed = d.period - min(leadMs, d.period)
		}
		return
	}
	if leadMs <= d.preheat {
		d.StartHeating()
		d.elapsed = d.preheat - leadMs
		return
	}
	d.state = Sleeping
	asleep := d.period - d.preheat
	d.elapsed = asleep - min(leadMs-d.preheat, asleep)
}

func (d *DutyCycle) Mode() Mode        { return d.mode }
func (d *DutyCycle) State() State      { return d.state }
func (d *DutyCycle) Period() uint32    { return d.period }
func (d *DutyCycle) PreheatMs() uint32 { return d.preheat }

// Powered reports whether the sensor should be powered in the current state.
func (d *DutyCycle) Powered() bool { return d.state != Sleeping }

func (d *DutyCycle) threshold() uint32 {
	switch d.state {
	case Sleeping:
		return d.period - d.preheat
	case Heating:
		return d.preheat
	}
	return d.period
}

// Tick advances the cycle by ms.
func (d *DutyCycle) Tick(ms uint32) {
	d.elapsed += ms
}

// ToNextEvent returns the milliseconds until the next event is due.
func (d *DutyCycle) ToNextEvent() uint32 {
	t := d.threshold()
	if d.elapsed >= t {
		return 0
	}
	return t - d.elapsed
}

// CheckEvent returns the due event, if any, and moves to the next state.
// Overshoot is carried into the next interval so the cadence does not drift.
func (d *DutyCycle) CheckEvent() Event {
	t := d.threshold()
	if d.elapsed < t {
		return None
	}
	d.elapsed -= t

	switch d.state {
	case Sleeping:
		d.state = Heating
		return Preheat
	case Heating:
		d.state = Sleeping
		return MeasureAndSleep
	}
	return Measure
}
