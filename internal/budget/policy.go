// Package budget decides how many work units one invocation may process.
//
// Policies are pure functions of a counter. They never read the clock, so the
// worst-case invocation length is MaxUnits times the slowest unit, which the
// operator tunes to stay under the host's execution ceiling.
package budget

// Policy reports whether another unit may be processed after unitsProcessed units.
type Policy interface {
	ShouldContinue(unitsProcessed int) bool
}

// MaxUnits caps an invocation at a fixed number of units.
type MaxUnits int

// NewMaxUnits returns a MaxUnits policy; values below 1 become 1 so every
// invocation makes progress.
func NewMaxUnits(k int) MaxUnits {
	if k < 1 {
		k = 1
	}
	return MaxUnits(k)
}

func (m MaxUnits) ShouldContinue(unitsProcessed int) bool {
	return unitsProcessed < int(m)
}

// Func adapts a plain function to Policy.
type Func func(unitsProcessed int) bool

func (f Func) ShouldContinue(unitsProcessed int) bool {
	return f(unitsProcessed)
}
