package strategies

import (
	"fmt"
	"strings"
)

// Params is the named option set a strategy is constructed from, as loaded
// from the pairs file. Values are validated once at construction; strategies
// never touch Params afterwards.
type Params map[string]interface{}

// Float returns the named option as a float64, or def when absent.
// JSON numbers decode as float64; plain ints are accepted for convenience.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("option %q must be a number, got %T", key, v)
	}
}

// Int returns the named option as an int, or def when absent. Fractional
// values are rejected.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("option %q must be an integer, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("option %q must be an integer, got %T", key, v)
	}
}

// Bool returns the named option as a bool, or def when absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("option %q must be a boolean, got %T", key, v)
	}
	return b, nil
}

// collectErrs joins parameter errors into one message.
func collectErrs(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("strategy parameter validation failed: %s", strings.Join(errs, "; "))
}
