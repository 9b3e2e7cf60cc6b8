package routing

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
)

// ApprovalCheck is the gate's verdict for one routing action.
type ApprovalCheck struct {
	Required    bool
	Trigger     ApprovalTrigger
	Reason      string
	RuleID      int64
	AutoApprove bool
}

// Gate decides whether a routing action must be held for human review.
// Persistence failures during gating fail open: an outage degrades to
// unguarded routing rather than blocking acquisition.
type Gate struct {
	users    UserFlags
	rules    RuleStore
	quotas   QuotaChecker
	registry *Registry
	logger   zerolog.Logger
}

// NewGate creates an approval gate.
func NewGate(users UserFlags, rules RuleStore, quotas QuotaChecker, registry *Registry, logger zerolog.Logger) *Gate {
	return &Gate{
		users:    users,
		rules:    rules,
		quotas:   quotas,
		registry: registry,
		logger:   logger.With().Str("component", "approval-gate").Logger(),
	}
}

// Check evaluates the approval triggers in precedence order: user-level
// blanket flag, rule-level always-require-approval, quota exceeded.
// Unauthenticated routing (UserID == 0) never requires approval.
func (g *Gate) Check(ctx context.Context, item *media.Item, rctx *Context, decisions []Decision) ApprovalCheck {
	if rctx.UserID == 0 {
		return ApprovalCheck{}
	}

	// 1. User-level blanket flag.
	requiresApproval, err := g.users.RequiresApproval(ctx, rctx.UserID)
	if err != nil {
		g.logger.Error().Err(err).Int64("userId", rctx.UserID).
			Msg("user approval flag lookup failed, continuing unguarded")
	} else if requiresApproval {
		return ApprovalCheck{
			Required: true,
			Trigger:  TriggerManualFlag,
			Reason:   "user requires approval for all requests",
		}
	}

	// 2. Rule-level flag. While scanning, note rule-level quota bypass
	// for step 3.
	ruleBypassesQuotas := false
	rules, err := g.rules.EnabledRules(ctx)
	if err != nil {
		g.logger.Error().Err(err).
			Msg("rule scan failed during approval check, continuing unguarded")
	} else {
		for i := range rules {
			rule := &rules[i]
			if !rule.AppliesTo(rctx.Type) {
				continue
			}
			if !g.registry.EvaluateTree(ctx, rule.Condition, item, rctx) {
				continue
			}
			if rule.BypassQuotas {
				ruleBypassesQuotas = true
			}
			if rule.AlwaysRequireApproval {
				reason := rule.ApprovalReason
				if reason == "" {
					reason = "matched rule requires approval"
				}
				return ApprovalCheck{
					Required: true,
					Trigger:  TriggerRouterRule,
					Reason:   reason,
					RuleID:   rule.ID,
				}
			}
		}
	}

	// 3. Quota.
	status, err := g.quotas.Status(ctx, rctx.UserID, rctx.Type)
	if err != nil {
		g.logger.Error().Err(err).Int64("userId", rctx.UserID).
			Msg("quota lookup failed during approval check, continuing unguarded")
		return ApprovalCheck{}
	}
	if status == nil || !status.Exceeded {
		return ApprovalCheck{}
	}

	bypass := ruleBypassesQuotas
	if !bypass {
		userBypass, err := g.quotas.BypassesQuotas(ctx, rctx.UserID)
		if err != nil {
			g.logger.Error().Err(err).Int64("userId", rctx.UserID).
				Msg("quota bypass lookup failed, treating as no bypass")
		} else {
			bypass = userBypass
		}
	}

	check := ApprovalCheck{
		Required:    true,
		Trigger:     TriggerQuotaExceeded,
		Reason:      quotaReason(status),
		AutoApprove: bypass,
	}
	g.logger.Debug().
		Int64("userId", rctx.UserID).
		Str("quotaType", status.QuotaType).
		Int64("usage", status.CurrentUsage).
		Int64("limit", status.QuotaLimit).
		Bool("autoApprove", bypass).
		Msg("quota exceeded")
	return check
}

func quotaReason(status *QuotaStatus) string {
	if status.QuotaType == "" {
		return "quota exceeded"
	}
	return status.QuotaType + " quota exceeded"
}
