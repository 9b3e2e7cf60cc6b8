// Package routing implements the content routing decision engine: given
// an incoming content item it decides which acquisition-backend instances
// receive it, with what settings, and whether the action must first pass
// an approval gate.
package routing

import (
	"context"
	"time"

	"github.com/helmarr/helmarr/internal/media"
)

// DefaultPriority is assigned to decisions that do not specify one.
const DefaultPriority = 50

// Context carries per-call routing data. It is owned by the caller for
// the duration of one Route invocation.
type Context struct {
	UserID   int64 // 0 = system-originated (RSS, maintenance); bypasses approval
	UserName string
	ItemKey  string
	Type     media.ContentType

	// Sync-pass fields, set only during bulk synchronization.
	Syncing              bool
	SyncTargetInstanceID int64
}

// Decision is a proposed (destination instance, settings) pair for one
// content item. Nil pointer fields mean "use the instance default".
type Decision struct {
	InstanceID          int64    `json:"instanceId"`
	QualityProfileID    *int64   `json:"qualityProfileId,omitempty"`
	RootFolder          *string  `json:"rootFolder,omitempty"`
	Tags                []string `json:"tags,omitempty"`
	Priority            int      `json:"priority"`
	SearchOnAdd         *bool    `json:"searchOnAdd,omitempty"`
	SeasonMonitoring    *string  `json:"seasonMonitoring,omitempty"`
	SeriesType          *string  `json:"seriesType,omitempty"`
	MinimumAvailability *string  `json:"minimumAvailability,omitempty"`
}

// Rule is a persisted routing rule. Type names the evaluator that owns
// it; Condition is the boolean tree matched against incoming items.
type Rule struct {
	ID                    int64          `json:"id"`
	Name                  string         `json:"name"`
	Type                  string         `json:"type"`
	ContentType           string         `json:"contentType"` // movie | show | both
	Enabled               bool           `json:"enabled"`
	Condition             *ConditionNode `json:"condition"`
	InstanceID            int64          `json:"instanceId"`
	QualityProfileID      *int64         `json:"qualityProfileId,omitempty"`
	RootFolder            *string        `json:"rootFolder,omitempty"`
	Tags                  []string       `json:"tags,omitempty"`
	Priority              int            `json:"priority"`
	SearchOnAdd           *bool          `json:"searchOnAdd,omitempty"`
	SeasonMonitoring      *string        `json:"seasonMonitoring,omitempty"`
	SeriesType            *string        `json:"seriesType,omitempty"`
	MinimumAvailability   *string        `json:"minimumAvailability,omitempty"`
	AlwaysRequireApproval bool           `json:"alwaysRequireApproval"`
	BypassQuotas          bool           `json:"bypassQuotas"`
	ApprovalReason        string         `json:"approvalReason,omitempty"`
	CreatedAt             time.Time      `json:"createdAt"`
	UpdatedAt             time.Time      `json:"updatedAt"`
}

// AppliesTo reports whether the rule targets the given content type.
func (r *Rule) AppliesTo(t media.ContentType) bool {
	return r.ContentType == "both" || r.ContentType == string(t)
}

// Decision maps the rule's routing settings to a Decision.
func (r *Rule) Decision() Decision {
	priority := r.Priority
	if priority == 0 {
		priority = DefaultPriority
	}
	return Decision{
		InstanceID:          r.InstanceID,
		QualityProfileID:    r.QualityProfileID,
		RootFolder:          r.RootFolder,
		Tags:                r.Tags,
		Priority:            priority,
		SearchOnAdd:         r.SearchOnAdd,
		SeasonMonitoring:    r.SeasonMonitoring,
		SeriesType:          r.SeriesType,
		MinimumAvailability: r.MinimumAvailability,
	}
}

// Instance is a configured acquisition-backend instance.
type Instance struct {
	ID                  int64             `json:"id"`
	Name                string            `json:"name"`
	Type                media.ContentType `json:"contentType"`
	BaseURL             string            `json:"baseUrl"`
	APIKey              string            `json:"-"`
	QualityProfileID    *int64            `json:"qualityProfileId,omitempty"`
	RootFolder          *string           `json:"rootFolder,omitempty"`
	Tags                []string          `json:"tags,omitempty"`
	SearchOnAdd         bool              `json:"searchOnAdd"`
	SeasonMonitoring    *string           `json:"seasonMonitoring,omitempty"`
	SeriesType          *string           `json:"seriesType,omitempty"`
	MinimumAvailability *string           `json:"minimumAvailability,omitempty"`
	IsDefault           bool              `json:"isDefault"`
	SyncedInstanceIDs   []int64           `json:"syncedInstanceIds,omitempty"`
	Enabled             bool              `json:"enabled"`
}

// Decision builds a Decision from the instance's own stored settings,
// used by default routing and forced dispatch.
func (inst *Instance) Decision() Decision {
	searchOnAdd := inst.SearchOnAdd
	return Decision{
		InstanceID:          inst.ID,
		QualityProfileID:    inst.QualityProfileID,
		RootFolder:          inst.RootFolder,
		Tags:                inst.Tags,
		Priority:            DefaultPriority,
		SearchOnAdd:         &searchOnAdd,
		SeasonMonitoring:    inst.SeasonMonitoring,
		SeriesType:          inst.SeriesType,
		MinimumAvailability: inst.MinimumAvailability,
	}
}

// ApprovalStatus is the lifecycle state of an approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalTrigger identifies which gate condition held a routing action
// for review.
type ApprovalTrigger string

const (
	TriggerManualFlag    ApprovalTrigger = "manual_flag"
	TriggerRouterRule    ApprovalTrigger = "router_rule"
	TriggerQuotaExceeded ApprovalTrigger = "quota_exceeded"
)

// ApprovalRequest is a routing action held for human review.
type ApprovalRequest struct {
	ID              int64             `json:"id"`
	UserID          int64             `json:"userId"`
	ContentKey      string            `json:"contentKey"`
	Title           string            `json:"title"`
	ContentType     media.ContentType `json:"contentType"`
	GUIDs           []string          `json:"guids,omitempty"`
	Status          ApprovalStatus    `json:"status"`
	TriggeredBy     ApprovalTrigger   `json:"triggeredBy"`
	Reason          string            `json:"reason,omitempty"`
	ProposedRouting []Decision        `json:"proposedRouting"`
	ApprovedBy      *int64            `json:"approvedBy,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// CreateApprovalParams describes a new approval request.
type CreateApprovalParams struct {
	UserID          int64
	ContentKey      string
	Title           string
	ContentType     media.ContentType
	GUIDs           []string
	TriggeredBy     ApprovalTrigger
	Reason          string
	ProposedRouting []Decision
}

// QuotaStatus is the read-only quota view consumed by the approval gate.
type QuotaStatus struct {
	Exceeded     bool   `json:"exceeded"`
	QuotaType    string `json:"quotaType"`
	CurrentUsage int64  `json:"currentUsage"`
	QuotaLimit   int64  `json:"quotaLimit"`
}

// RuleStore provides persisted routing rules.
type RuleStore interface {
	HasAnyRule(ctx context.Context) (bool, error)
	EnabledRules(ctx context.Context) ([]Rule, error)
}

// InstanceStore provides configured backend instances.
type InstanceStore interface {
	Instance(ctx context.Context, id int64) (*Instance, error)
	DefaultInstance(ctx context.Context, t media.ContentType) (*Instance, error)
	Instances(ctx context.Context, t media.ContentType) ([]Instance, error)
}

// ApprovalStore persists approval requests. Uniqueness of pending
// requests per (user, content) is enforced by the store, not the engine.
type ApprovalStore interface {
	FindExisting(ctx context.Context, userID int64, contentKey string) (*ApprovalRequest, error)
	Create(ctx context.Context, params CreateApprovalParams) (*ApprovalRequest, error)
	Approve(ctx context.Context, id, approverID int64, notes string) (*ApprovalRequest, error)
}

// QuotaChecker provides per-user quota state.
type QuotaChecker interface {
	Status(ctx context.Context, userID int64, t media.ContentType) (*QuotaStatus, error)
	BypassesQuotas(ctx context.Context, userID int64) (bool, error)
}

// UserFlags exposes the per-user approval settings the gate needs.
type UserFlags interface {
	RequiresApproval(ctx context.Context, userID int64) (bool, error)
}

// Dispatcher sends one routing decision to a backend instance. Expected
// to return an error on hard failure; the engine logs and continues.
type Dispatcher interface {
	Dispatch(ctx context.Context, item *media.Item, key string, userID int64, d Decision, syncing bool) error
}

// MetadataLookup enriches an item with its backend lookup payload.
// Best-effort: a nil result with nil error means "nothing found".
type MetadataLookup interface {
	Lookup(ctx context.Context, item *media.Item) (*media.Metadata, error)
}

// Evaluator is a prioritized unit that produces routing decisions.
// Implementations are immutable after registration.
type Evaluator interface {
	Name() string
	Description() string
	Priority() int
	CanEvaluate(ctx context.Context, item *media.Item, rctx *Context) (bool, error)
	Evaluate(ctx context.Context, item *media.Item, rctx *Context) ([]Decision, error)
	SupportedFields() []string
	SupportedOperators() map[string][]string
}

// ConditionEvaluator is implemented by evaluators that can judge leaf
// conditions for the fields they understand.
type ConditionEvaluator interface {
	CanEvaluateConditionField(field string) bool
	EvaluateCondition(ctx context.Context, cond *Condition, item *media.Item, rctx *Context) (bool, error)
}

// TreeEvaluator evaluates a boolean condition tree against an item.
type TreeEvaluator interface {
	EvaluateTree(ctx context.Context, node *ConditionNode, item *media.Item, rctx *Context) bool
}
