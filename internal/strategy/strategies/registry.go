package strategies

import (
	"fmt"
	"sort"

	"candlebot/internal/ports"
)

// Factory constructs a strategy instance bound to a symbol.
type Factory func(symbol, id string, params Params, logger ports.Logger) (ports.Strategy, error)

// Registry maps strategy names from the pairs file to their factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with all built-in strategies registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("falling_candles", func(symbol, id string, params Params, logger ports.Logger) (ports.Strategy, error) {
		return NewFallingCandles(symbol, id, params, logger)
	})
	r.Register("red_candles_sequence", func(symbol, id string, params Params, logger ports.Logger) (ports.Strategy, error) {
		return NewRedCandlesSequence(symbol, id, params, logger)
	})
	r.Register("doge_momentum", func(symbol, id string, params Params, logger ports.Logger) (ports.Strategy, error) {
		return NewDogeMomentum(symbol, id, params, logger)
	})
	r.Register("doge_momentum_v2", func(symbol, id string, params Params, logger ports.Logger) (ports.Strategy, error) {
		return NewDogeMomentumV2(symbol, id, params, logger)
	})
	return r
}

// Register adds a factory under a name, replacing any previous registration.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Construct builds a strategy by registered name. An unknown name is a
// configuration error.
func (r *Registry) Construct(name, symbol, id string, params Params, logger ports.Logger) (ports.Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q (known: %v)", ports.ErrConfiguration, name, r.Names())
	}
	strat, err := f(symbol, id, params, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: strategy %q for %s: %v", ports.ErrConfiguration, name, symbol, err)
	}
	return strat, nil
}
