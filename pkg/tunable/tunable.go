// Package tunable holds driver-adjustable parameters, such as the speed
// scale, that can be nudged from the joystick while driving.
package tunable

import (
	"math"
	"sync/atomic"

	"go.uber.org/zap"
)

type Tunable struct {
	Name     string
	Step     float64
	Min, Max float64

	bits atomic.Uint64
	log  *zap.SugaredLogger
}

// Add moves the value by steps multiples of Step, clamped to [Min, Max].
func (t *Tunable) Add(steps int) float64 {
	for {
		old := t.bits.Load()
		newV := clamp(math.Float64frombits(old)+float64(steps)*t.Step, t.Min, t.Max)
		if t.bits.CompareAndSwap(old, math.Float64bits(newV)) {
			t.log.Infow("Tunable updated", "name", t.Name, "value", newV)
			return newV
		}
	}
}

func (t *Tunable) Get() float64 {
	return math.Float64frombits(t.bits.Load())
}

func (t *Tunable) Set(v float64) {
	t.bits.Store(math.Float64bits(clamp(v, t.Min, t.Max)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Tunables is a list with one entry selected.  Selection is not
// goroutine-safe; values are.
type Tunables struct {
	All      []*Tunable
	selected int
	log      *zap.SugaredLogger
}

func New(logger *zap.SugaredLogger) *Tunables {
	return &Tunables{log: logger.Named("tunable")}
}

func (t *Tunables) Create(name string, value, step, min, max float64) *Tunable {
	newTunable := &Tunable{
		Name: name,
		Step: step,
		Min:  min,
		Max:  max,
		log:  t.log,
	}
	newTunable.Set(value)
	t.All = append(t.All, newTunable)
	return newTunable
}

func (t *Tunables) SelectNext() {
	if len(t.All) == 0 {
		return
	}
	t.selected++
	if t.selected >= len(t.All) {
		t.selected = 0
	}
	t.log.Infow("Tunable selected", "name", t.Current().Name, "value", t.Current().Get())
}

func (t *Tunables) SelectPrev() {
	if len(t.All) == 0 {
		return
	}
	t.selected--
	if t.selected < 0 {
		t.selected = len(t.All) - 1
	}
	t.log.Infow("Tunable selected", "name", t.Current().Name, "value", t.Current().Get())
}

// Current returns nil if there are no tunables.
func (t *Tunables) Current() *Tunable {
	if len(t.All) == 0 {
		return nil
	}
	return t.All[t.selected]
}
