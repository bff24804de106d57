package beacon

import (
	"fmt"
	"sync"
)

// StateHandler owns the report-enable flag.
type StateHandler interface {
	// ReadState returns the current value.
	ReadState() bool

	// WriteState applies a requested value and returns the value now in effect.
	// It may refuse or clamp the request; the result is what gets reported.
	WriteState(requested bool) bool
}

// StateFuncs adapts a pair of functions to StateHandler.
type StateFuncs struct {
	Read  func() bool
	Write func(requested bool) bool
}

// ReadState calls f.Read.
func (f StateFuncs) ReadState() bool {
	return f.Read()
}

// WriteState calls f.Write.
func (f StateFuncs) WriteState(requested bool) bool {
	return f.Write(requested)
}

// complete reports whether both functions are set.
func (f StateFuncs) complete() bool {
	return f.Read != nil && f.Write != nil
}

// Flag is a mutex-guarded StateHandler that accepts every write.
type Flag struct {
	mu    sync.Mutex
	value bool

	// OnChange is called with the new value after a write changed it.
	// It runs with the flag unlocked.
	OnChange func(value bool)
}

// NewFlag creates a flag with an initial value.
func NewFlag(initial bool) *Flag {
	return &Flag{value: initial}
}

// ReadState implements StateHandler.
func (f *Flag) ReadState() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// WriteState implements StateHandler.
func (f *Flag) WriteState(requested bool) bool {
	f.mu.Lock()
	changed := f.value != requested
	f.value = requested
	onChange := f.OnChange
	f.mu.Unlock()

	if changed && onChange != nil {
		onChange(requested)
	}
	return requested
}

// Toggle inverts the flag and returns the new value.
func (f *Flag) Toggle() bool {
	f.mu.Lock()
	f.value = !f.value
	value := f.value
	onChange := f.OnChange
	f.mu.Unlock()

	if onChange != nil {
		onChange(value)
	}
	return value
}

// BoolPolicy decides how request bytes outside {0, 1} are treated.
type BoolPolicy uint8

const (
	// BoolCoerce reads any non-zero byte as true.
	BoolCoerce BoolPolicy = iota
	// BoolStrict rejects bytes other than 0 and 1 with ErrInvalidBool.
	BoolStrict
)

// String returns the policy name.
func (p BoolPolicy) String() string {
	switch p {
	case BoolCoerce:
		return "coerce"
	case BoolStrict:
		return "strict"
	default:
		return "unknown"
	}
}

// ParseBoolPolicy parses "coerce" or "strict". The empty string is coerce.
func ParseBoolPolicy(s string) (BoolPolicy, error) {
	switch s {
	case "", "coerce":
		return BoolCoerce, nil
	case "strict":
		return BoolStrict, nil
	default:
		return 0, fmt.Errorf("unknown bool policy %q", s)
	}
}
