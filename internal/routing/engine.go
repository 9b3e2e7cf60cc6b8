package routing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
)

// RouteOptions carries the per-call parameters of one routing invocation.
type RouteOptions struct {
	UserID               int64
	UserName             string
	ForcedInstanceID     int64
	Syncing              bool
	SyncTargetInstanceID int64
}

// Engine is the routing orchestrator and the single entry point into the
// decision subsystem. It is safe for concurrent use; all mutable state
// lives behind the store collaborators.
type Engine struct {
	registry  *Registry
	gate      *Gate
	defaults  *DefaultRouter
	rules     RuleStore
	instances InstanceStore
	approvals ApprovalStore
	metadata  MetadataLookup
	movies    Dispatcher
	series    Dispatcher
	logger    zerolog.Logger
}

// EngineParams collects the engine's collaborators.
type EngineParams struct {
	Registry  *Registry
	Gate      *Gate
	Defaults  *DefaultRouter
	Rules     RuleStore
	Instances InstanceStore
	Approvals ApprovalStore
	Metadata  MetadataLookup
	Movies    Dispatcher
	Series    Dispatcher
	Logger    zerolog.Logger
}

// NewEngine creates a routing engine.
func NewEngine(p EngineParams) *Engine {
	return &Engine{
		registry:  p.Registry,
		gate:      p.Gate,
		defaults:  p.Defaults,
		rules:     p.Rules,
		instances: p.Instances,
		approvals: p.Approvals,
		metadata:  p.Metadata,
		movies:    p.Movies,
		series:    p.Series,
		logger:    p.Logger.With().Str("component", "routing-engine").Logger(),
	}
}

// Route decides where one content item goes and dispatches it. It
// returns the instance ids actually dispatched to; an empty set is a
// legitimate outcome (held for approval, or no default configured).
//
// Recoverable failures (plugin errors, per-instance dispatch failures,
// gating persistence outages) are logged and absorbed; only unexpected
// failures such as a forced-instance dispatch error propagate.
func (e *Engine) Route(ctx context.Context, item *media.Item, key string, opts RouteOptions) ([]int64, error) {
	rctx := &Context{
		UserID:               opts.UserID,
		UserName:             opts.UserName,
		ItemKey:              key,
		Type:                 item.Type,
		Syncing:              opts.Syncing,
		SyncTargetInstanceID: opts.SyncTargetInstanceID,
	}
	log := e.logger.With().Str("title", item.Title).Str("key", key).Logger()

	// Forced routing bypasses every other stage, unless this is a sync
	// pass carrying a conflicting sync target.
	if opts.ForcedInstanceID > 0 {
		if opts.Syncing && opts.SyncTargetInstanceID > 0 && opts.SyncTargetInstanceID != opts.ForcedInstanceID {
			log.Debug().
				Int64("forcedInstanceId", opts.ForcedInstanceID).
				Int64("syncTargetInstanceId", opts.SyncTargetInstanceID).
				Msg("forced instance conflicts with sync target, ignoring forced instance")
		} else {
			return e.dispatchToInstance(ctx, item, rctx, opts.ForcedInstanceID)
		}
	}

	hasRules, err := e.rules.HasAnyRule(ctx)
	if err != nil {
		log.Error().Err(err).Msg("rule existence check failed, falling back to default routing")
		hasRules = false
	}
	if !hasRules {
		return e.routeFallback(ctx, item, rctx, log)
	}

	// Rules exist: enrich best-effort, then run every applicable plugin.
	if e.metadata != nil {
		meta, err := e.metadata.Lookup(ctx, item)
		if err != nil {
			log.Warn().Err(err).Msg("metadata enrichment failed, routing unenriched item")
		} else if meta != nil {
			item.Metadata = meta
		}
	}

	var decisions []Decision
	for _, ev := range e.registry.Evaluators() {
		can, err := ev.CanEvaluate(ctx, item, rctx)
		if err != nil {
			log.Error().Err(err).Str("evaluator", ev.Name()).
				Msg("evaluator canEvaluate failed, skipping for this item")
			continue
		}
		if !can {
			continue
		}
		ds, err := ev.Evaluate(ctx, item, rctx)
		if err != nil {
			log.Error().Err(err).Str("evaluator", ev.Name()).
				Msg("evaluator failed, skipping for this item")
			continue
		}
		decisions = append(decisions, ds...)
	}

	// Rules matching nothing is equivalent to rules not existing.
	if len(decisions) == 0 {
		log.Debug().Msg("no evaluator produced a decision, using fallback routing")
		return e.routeFallback(ctx, item, rctx, log)
	}

	SortDecisions(decisions)
	return e.applyWithApproval(ctx, item, rctx, decisions, log)
}

// routeFallback handles the no-rules and no-decisions paths: the sync
// target wins during a sync pass, otherwise default routing applies.
func (e *Engine) routeFallback(ctx context.Context, item *media.Item, rctx *Context, log zerolog.Logger) ([]int64, error) {
	if rctx.Syncing && rctx.SyncTargetInstanceID > 0 {
		ids, err := e.dispatchToInstance(ctx, item, rctx, rctx.SyncTargetInstanceID)
		if err != nil {
			log.Error().Err(err).
				Int64("syncTargetInstanceId", rctx.SyncTargetInstanceID).
				Msg("sync target dispatch failed")
			return nil, nil
		}
		return ids, nil
	}

	plan, err := e.defaults.Plan(ctx, rctx.Type)
	if err != nil {
		log.Error().Err(err).Msg("default routing plan failed")
		return nil, nil
	}
	if len(plan) == 0 {
		return nil, nil
	}
	return e.applyWithApproval(ctx, item, rctx, plan, log)
}

// applyWithApproval runs the approval phase over a decision set and, if
// routing may proceed, resolves and dispatches it.
func (e *Engine) applyWithApproval(ctx context.Context, item *media.Item, rctx *Context, decisions []Decision, log zerolog.Logger) ([]int64, error) {
	if rctx.UserID > 0 {
		handled, ids := e.checkExistingApproval(ctx, item, rctx, log)
		if handled {
			return ids, nil
		}

		check := e.gate.Check(ctx, item, rctx, decisions)
		if check.Required {
			proceed := e.holdForApproval(ctx, item, rctx, decisions, check, log)
			if !proceed {
				return nil, nil
			}
		}
	}

	return e.apply(ctx, item, rctx, decisions, log), nil
}

// checkExistingApproval enforces duplicate suppression before any gate
// trigger is evaluated. handled=true means the existing request decided
// the outcome of this call.
func (e *Engine) checkExistingApproval(ctx context.Context, item *media.Item, rctx *Context, log zerolog.Logger) (handled bool, dispatched []int64) {
	existing, err := e.approvals.FindExisting(ctx, rctx.UserID, rctx.ItemKey)
	if err != nil {
		log.Error().Err(err).Msg("approval lookup failed, continuing unguarded")
		return false, nil
	}
	if existing == nil {
		return false, nil
	}

	switch existing.Status {
	case ApprovalPending:
		log.Debug().Int64("requestId", existing.ID).
			Msg("pending approval request already exists, not routing")
		return true, nil
	case ApprovalRejected:
		log.Debug().Int64("requestId", existing.ID).
			Msg("request was rejected, respecting the rejection")
		return true, nil
	case ApprovalApproved:
		log.Info().Int64("requestId", existing.ID).
			Msg("routing with stored proposed routing from approved request")
		return true, e.apply(ctx, item, rctx, existing.ProposedRouting, log)
	}
	return false, nil
}

// holdForApproval records the approval request. It returns true when
// routing should still proceed (auto-approved, or fail-open on a
// persistence error).
func (e *Engine) holdForApproval(ctx context.Context, item *media.Item, rctx *Context, decisions []Decision, check ApprovalCheck, log zerolog.Logger) (proceed bool) {
	req, err := e.approvals.Create(ctx, CreateApprovalParams{
		UserID:          rctx.UserID,
		ContentKey:      rctx.ItemKey,
		Title:           item.Title,
		ContentType:     item.Type,
		GUIDs:           item.GUIDs,
		TriggeredBy:     check.Trigger,
		Reason:          check.Reason,
		ProposedRouting: ResolveDecisions(decisions, log),
	})
	if err != nil {
		log.Error().Err(err).Str("trigger", string(check.Trigger)).
			Msg("failed to create approval request, continuing unguarded")
		return true
	}

	if !check.AutoApprove {
		log.Info().
			Int64("requestId", req.ID).
			Str("trigger", string(check.Trigger)).
			Str("reason", check.Reason).
			Msg("routing held for approval")
		return false
	}

	// Bypass in effect: persist the approval before dispatching.
	if _, err := e.approvals.Approve(ctx, req.ID, 0, "auto-approved by bypass"); err != nil {
		log.Error().Err(err).Int64("requestId", req.ID).
			Msg("failed to persist auto-approval, dispatching anyway")
	} else {
		log.Info().Int64("requestId", req.ID).
			Str("trigger", string(check.Trigger)).
			Msg("approval auto-approved by bypass")
	}
	return true
}

// apply resolves the decision set and dispatches each surviving decision.
// A dispatch failure for one instance never blocks the others.
func (e *Engine) apply(ctx context.Context, item *media.Item, rctx *Context, decisions []Decision, log zerolog.Logger) []int64 {
	resolved := ResolveDecisions(decisions, log)
	dispatcher := e.dispatcherFor(rctx.Type)

	dispatched := make([]int64, 0, len(resolved))
	for _, d := range resolved {
		if err := dispatcher.Dispatch(ctx, item, rctx.ItemKey, rctx.UserID, d, rctx.Syncing); err != nil {
			log.Error().Err(err).
				Int64("instanceId", d.InstanceID).
				Msg("dispatch failed, continuing with remaining instances")
			continue
		}
		dispatched = append(dispatched, d.InstanceID)
	}

	if rctx.Syncing && rctx.SyncTargetInstanceID > 0 {
		found := false
		for _, id := range dispatched {
			if id == rctx.SyncTargetInstanceID {
				found = true
				break
			}
		}
		if !found {
			log.Info().
				Int64("syncTargetInstanceId", rctx.SyncTargetInstanceID).
				Msg("rules overrode the sync target instance")
		}
	}

	return dispatched
}

// dispatchToInstance routes directly to one instance using its own
// stored settings. Used for forced routing and sync-target fallback.
func (e *Engine) dispatchToInstance(ctx context.Context, item *media.Item, rctx *Context, instanceID int64) ([]int64, error) {
	inst, err := e.instances.Instance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("resolve instance %d: %w", instanceID, err)
	}
	if inst == nil {
		return nil, fmt.Errorf("instance %d not found", instanceID)
	}

	if err := e.dispatcherFor(inst.Type).Dispatch(ctx, item, rctx.ItemKey, rctx.UserID, inst.Decision(), rctx.Syncing); err != nil {
		return nil, fmt.Errorf("dispatch to instance %d: %w", instanceID, err)
	}
	return []int64{instanceID}, nil
}

// ExecuteApproval dispatches the stored proposed routing of an approved
// request. Invoked by the approvals processor hook after an admin
// approves a held request.
func (e *Engine) ExecuteApproval(ctx context.Context, req *ApprovalRequest) ([]int64, error) {
	if req.Status != ApprovalApproved {
		return nil, fmt.Errorf("approval request %d is %s, not approved", req.ID, req.Status)
	}
	if len(req.ProposedRouting) == 0 {
		return nil, nil
	}

	item := &media.Item{
		Title: req.Title,
		Type:  req.ContentType,
		GUIDs: req.GUIDs,
	}
	rctx := &Context{
		UserID:  req.UserID,
		ItemKey: req.ContentKey,
		Type:    req.ContentType,
	}
	log := e.logger.With().Str("title", item.Title).Int64("requestId", req.ID).Logger()
	return e.apply(ctx, item, rctx, req.ProposedRouting, log), nil
}

func (e *Engine) dispatcherFor(t media.ContentType) Dispatcher {
	if t == media.TypeShow {
		return e.series
	}
	return e.movies
}
