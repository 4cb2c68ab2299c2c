package vm

import (
	"io"

	"github.com/BurntSushi/toml"
)

// Limits holds the resource bounds a host may configure for a State.
// The interpreter enforces only MaxCallDepth (alias call recursion);
// MaxStackDepth and MaxLoopCount are loaded and stored but not checked
// anywhere.
type Limits struct {
	MaxCallDepth  int `toml:"max_call_depth"`
	MaxStackDepth int `toml:"max_stack_depth"`
	MaxLoopCount  int `toml:"max_loop_count"`
}

// DefaultLimits returns the limits a State starts with: generous enough
// for ordinary scripts, tight enough to turn runaway recursion into a
// RuntimeError instead of a stack overflow.
func DefaultLimits() Limits {
	return Limits{
		MaxCallDepth:  255,
		MaxStackDepth: 1 << 16,
		MaxLoopCount:  1 << 20,
	}
}

// LoadLimits reads a TOML document describing a Limits override, laid
// on top of DefaultLimits so a config file may set only the fields it
// cares about.
func LoadLimits(r io.Reader) (Limits, error) {
	limits := DefaultLimits()
	if _, err := toml.NewDecoder(r).Decode(&limits); err != nil {
		return Limits{}, err
	}
	return limits, nil
}
