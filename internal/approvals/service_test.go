package approvals

import (
	"context"
	"errors"
	"testing"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/routing"
	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/testutil"
)

type fakeExecutor struct {
	requests   []*routing.ApprovalRequest
	dispatched []int64
	err        error
}

func (e *fakeExecutor) ExecuteApproval(ctx context.Context, req *routing.ApprovalRequest) ([]int64, error) {
	e.requests = append(e.requests, req)
	return e.dispatched, e.err
}

type approvalFixture struct {
	svc       *Service
	executor  *fakeExecutor
	users     *store.UserStore
	watchlist *store.WatchlistStore
	userID    int64
}

func newApprovalFixture(t *testing.T) *approvalFixture {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)

	users := store.NewUserStore(tdb.Conn, tdb.Logger)
	user, err := users.Upsert(context.Background(), "alice", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	watchlist := store.NewWatchlistStore(tdb.Conn, tdb.Logger)
	executor := &fakeExecutor{dispatched: []int64{1}}
	svc := NewService(store.NewApprovalStore(tdb.Conn, tdb.Logger), watchlist, nil, tdb.Logger)
	svc.SetExecutor(executor)

	return &approvalFixture{
		svc:       svc,
		executor:  executor,
		users:     users,
		watchlist: watchlist,
		userID:    user.ID,
	}
}

func (f *approvalFixture) createRequest(t *testing.T, key string) *routing.ApprovalRequest {
	t.Helper()
	req, err := f.svc.Create(context.Background(), routing.CreateApprovalParams{
		UserID:      f.userID,
		ContentKey:  key,
		Title:       "Heat",
		ContentType: media.TypeMovie,
		TriggeredBy: routing.TriggerRouterRule,
		Reason:      "matched rule requires approval",
		ProposedRouting: []routing.Decision{
			{InstanceID: 1, Priority: 80},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return req
}

func (f *approvalFixture) addWatchlistItem(t *testing.T, key string) *store.WatchlistItem {
	t.Helper()
	item, err := f.watchlist.Upsert(context.Background(), store.WatchlistItem{
		UserID: f.userID,
		Key:    key,
		Title:  "Heat",
		Type:   media.TypeMovie,
	})
	if err != nil {
		t.Fatalf("watchlist upsert: %v", err)
	}
	return item
}

func TestCreate_MarksWatchlistHeld(t *testing.T) {
	f := newApprovalFixture(t)
	item := f.addWatchlistItem(t, "item-1")

	req := f.createRequest(t, "item-1")
	if req.Status != routing.ApprovalPending {
		t.Fatalf("status = %q", req.Status)
	}

	got, err := f.watchlist.Get(context.Background(), f.userID, item.Key)
	if err != nil {
		t.Fatalf("watchlist get: %v", err)
	}
	if got.Status != store.WatchlistHeld {
		t.Errorf("watchlist status = %q, want held", got.Status)
	}
}

func TestResolve_ApproveDispatchesAndMarksRouted(t *testing.T) {
	f := newApprovalFixture(t)
	f.addWatchlistItem(t, "item-1")
	req := f.createRequest(t, "item-1")

	resolved, err := f.svc.Resolve(context.Background(), req.ID, 7, true, "looks fine")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != routing.ApprovalApproved {
		t.Fatalf("status = %q", resolved.Status)
	}
	if resolved.ApprovedBy == nil || *resolved.ApprovedBy != 7 {
		t.Errorf("approvedBy = %v", resolved.ApprovedBy)
	}
	if len(f.executor.requests) != 1 {
		t.Fatalf("executor called %d times", len(f.executor.requests))
	}

	item, err := f.watchlist.Get(context.Background(), f.userID, "item-1")
	if err != nil {
		t.Fatalf("watchlist get: %v", err)
	}
	if item.Status != store.WatchlistRouted {
		t.Errorf("watchlist status = %q, want routed", item.Status)
	}
}

func TestResolve_RejectSkipsExecutor(t *testing.T) {
	f := newApprovalFixture(t)
	req := f.createRequest(t, "item-1")

	resolved, err := f.svc.Resolve(context.Background(), req.ID, 7, false, "not this one")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != routing.ApprovalRejected {
		t.Fatalf("status = %q", resolved.Status)
	}
	if len(f.executor.requests) != 0 {
		t.Error("rejection must not dispatch")
	}
}

func TestResolve_DispatchFailureKeepsApproval(t *testing.T) {
	f := newApprovalFixture(t)
	f.addWatchlistItem(t, "item-1")
	req := f.createRequest(t, "item-1")
	f.executor.err = errors.New("backend unreachable")

	resolved, err := f.svc.Resolve(context.Background(), req.ID, 7, true, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != routing.ApprovalApproved {
		t.Fatalf("status = %q, dispatch failure must not roll back the approval", resolved.Status)
	}

	item, err := f.watchlist.Get(context.Background(), f.userID, "item-1")
	if err != nil {
		t.Fatalf("watchlist get: %v", err)
	}
	if item.Status == store.WatchlistRouted {
		t.Error("failed dispatch must not mark the entry routed")
	}
}

func TestResolve_AlreadyResolvedReturnsErrNotPending(t *testing.T) {
	f := newApprovalFixture(t)
	req := f.createRequest(t, "item-1")

	if _, err := f.svc.Resolve(context.Background(), req.ID, 7, false, ""); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := f.svc.Resolve(context.Background(), req.ID, 7, true, ""); !errors.Is(err, ErrNotPending) {
		t.Fatalf("err = %v, want ErrNotPending", err)
	}
}

func TestApprove_MissingRequest(t *testing.T) {
	f := newApprovalFixture(t)
	if _, err := f.svc.Approve(context.Background(), 999, 0, "auto"); !errors.Is(err, ErrNotPending) {
		t.Fatalf("err = %v, want ErrNotPending", err)
	}
}
