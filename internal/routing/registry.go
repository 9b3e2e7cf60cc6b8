package routing

import (
	"sort"

	"github.com/rs/zerolog"
)

// Registry holds the evaluator plugins in descending priority order.
// Evaluators are loaded once at startup; the list is immutable for the
// process lifetime.
type Registry struct {
	logger     zerolog.Logger
	evaluators []Evaluator
	loaded     bool
}

// NewRegistry creates an empty registry. Call Load exactly once with the
// full evaluator set before handing the registry to the engine.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger: logger.With().Str("component", "routing-registry").Logger(),
	}
}

// Load validates and installs the evaluator set, then sorts it by
// descending priority. Evaluators failing validation are logged and
// skipped; a single bad plugin never aborts startup. Subsequent calls
// are ignored.
func (r *Registry) Load(evaluators ...Evaluator) {
	if r.loaded {
		r.logger.Warn().Msg("evaluator registry already loaded, ignoring")
		return
	}
	r.loaded = true

	accepted := make([]Evaluator, 0, len(evaluators))
	seen := make(map[string]bool, len(evaluators))

	for _, ev := range evaluators {
		if ev == nil {
			r.logger.Warn().Msg("skipping nil evaluator")
			continue
		}
		name := ev.Name()
		if name == "" {
			r.logger.Warn().Str("description", ev.Description()).
				Msg("skipping evaluator without a name")
			continue
		}
		if seen[name] {
			r.logger.Warn().Str("evaluator", name).
				Msg("skipping evaluator with duplicate name")
			continue
		}
		seen[name] = true
		accepted = append(accepted, ev)
	}

	// Stable sort keeps registration order for equal priorities, which
	// the decision resolver relies on for tie-breaking.
	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].Priority() > accepted[j].Priority()
	})

	r.evaluators = accepted

	for _, ev := range accepted {
		r.logger.Debug().Str("evaluator", ev.Name()).Int("priority", ev.Priority()).
			Msg("evaluator registered")
	}
	r.logger.Info().Int("count", len(accepted)).Msg("evaluator registry loaded")
}

// Evaluators returns the loaded evaluators in evaluation order.
// Callers must not modify the returned slice.
func (r *Registry) Evaluators() []Evaluator {
	return r.evaluators
}
