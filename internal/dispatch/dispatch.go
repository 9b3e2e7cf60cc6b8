// Package dispatch sends resolved routing decisions to acquisition
// backend instances, merging decision overrides with instance defaults.
package dispatch

import (
	"context"
	"errors"

	"github.com/helmarr/helmarr/internal/media"
)

// ErrNoGUID is returned when an item lacks the external id its backend
// needs for an add.
var ErrNoGUID = errors.New("item has no usable external id")

// QuotaRecorder records successful user-initiated dispatches against the
// user's quota window.
type QuotaRecorder interface {
	RecordUsage(ctx context.Context, userID int64, t media.ContentType) error
}
