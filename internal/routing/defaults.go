package routing

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
)

// DefaultRouter is the fallback policy used when no rule exists or no
// rule produced a decision: route to the configured default instance for
// the content type plus any instances kept in sync with it, each using
// its own stored settings.
type DefaultRouter struct {
	instances InstanceStore
	logger    zerolog.Logger
}

// NewDefaultRouter creates a default router.
func NewDefaultRouter(instances InstanceStore, logger zerolog.Logger) *DefaultRouter {
	return &DefaultRouter{
		instances: instances,
		logger:    logger.With().Str("component", "default-router").Logger(),
	}
}

// Plan computes the default-routing decision set without dispatching.
// An empty result means no default instance is configured; that is the
// one case where routing legitimately does nothing.
func (d *DefaultRouter) Plan(ctx context.Context, t media.ContentType) ([]Decision, error) {
	def, err := d.instances.DefaultInstance(ctx, t)
	if err != nil {
		return nil, err
	}
	if def == nil {
		d.logger.Warn().Str("contentType", string(t)).
			Msg("no default instance configured, nothing to route")
		return nil, nil
	}

	decisions := []Decision{def.Decision()}

	if len(def.SyncedInstanceIDs) == 0 {
		return decisions, nil
	}

	all, err := d.instances.Instances(ctx, t)
	if err != nil {
		d.logger.Error().Err(err).
			Msg("failed to list instances for synced routing, using default only")
		return decisions, nil
	}

	byID := make(map[int64]*Instance, len(all))
	for i := range all {
		byID[all[i].ID] = &all[i]
	}

	for _, id := range def.SyncedInstanceIDs {
		inst, ok := byID[id]
		if !ok {
			d.logger.Warn().
				Int64("syncedInstanceId", id).
				Int64("defaultInstanceId", def.ID).
				Msg("synced instance does not resolve, skipping")
			continue
		}
		decisions = append(decisions, inst.Decision())
	}

	return decisions, nil
}
