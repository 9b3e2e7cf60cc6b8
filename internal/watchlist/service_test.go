package watchlist

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/routing"
	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/testutil"
)

type routeCall struct {
	key  string
	opts routing.RouteOptions
}

type fakeRouter struct {
	calls      []routeCall
	dispatched []int64
	err        error
}

func (r *fakeRouter) Route(ctx context.Context, item *media.Item, key string, opts routing.RouteOptions) ([]int64, error) {
	r.calls = append(r.calls, routeCall{key: key, opts: opts})
	if r.err != nil {
		return nil, r.err
	}
	return r.dispatched, nil
}

// tokenFeeds maps a user token to the watchlist body (or a status code
// for failure injection) the fake provider serves.
type tokenFeeds struct {
	bodies map[string]string
	fail   map[string]int
}

func feedJSON(titles ...string) string {
	body := `{"MediaContainer":{"Metadata":[`
	for i, title := range titles {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(
			`{"ratingKey":"key-%s","title":"%s","type":"movie","Guid":[{"id":"tmdb://60%d"}]}`,
			title, title, i)
	}
	return body + `]}}`
}

type syncFixture struct {
	svc    *Service
	router *fakeRouter
	users  *store.UserStore
	items  *store.WatchlistStore
	feeds  *tokenFeeds
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)

	feeds := &tokenFeeds{bodies: map[string]string{}, fail: map[string]int{}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Plex-Token")
		if code, ok := feeds.fail[token]; ok {
			w.WriteHeader(code)
			return
		}
		body, ok := feeds.bodies[token]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	logger := zerolog.Nop()
	client, err := NewClient(ClientConfig{URL: server.URL, Logger: &logger})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	router := &fakeRouter{dispatched: []int64{1}}
	users := store.NewUserStore(tdb.Conn, tdb.Logger)
	items := store.NewWatchlistStore(tdb.Conn, tdb.Logger)
	return &syncFixture{
		svc:    NewService(client, users, items, router, nil, tdb.Logger),
		router: router,
		users:  users,
		items:  items,
		feeds:  feeds,
	}
}

func (f *syncFixture) addUser(t *testing.T, name, token string) *store.User {
	t.Helper()
	user, err := f.users.Upsert(context.Background(), name, "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if token != "" {
		if err := f.users.SetPlexToken(context.Background(), user.ID, token); err != nil {
			t.Fatalf("set token: %v", err)
		}
	}
	return user
}

func TestSync_RoutesNewEntriesAndMarksThem(t *testing.T) {
	f := newSyncFixture(t)
	user := f.addUser(t, "alice", "tok-alice")
	f.feeds.bodies["tok-alice"] = feedJSON("Heat", "Alien")

	stats, err := f.svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Users != 1 || stats.Items != 2 || stats.Added != 2 || stats.Routed != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(f.router.calls) != 2 {
		t.Fatalf("router called %d times, want 2", len(f.router.calls))
	}
	if opts := f.router.calls[0].opts; opts.UserID != user.ID || opts.UserName != "alice" || opts.Syncing {
		t.Errorf("route opts = %+v", opts)
	}

	items, err := f.items.ListByUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	for _, item := range items {
		if item.Status != store.WatchlistRouted {
			t.Errorf("item %q status = %q, want routed", item.Key, item.Status)
		}
	}
}

func TestSync_AlreadyRoutedEntriesNotReRouted(t *testing.T) {
	f := newSyncFixture(t)
	f.addUser(t, "alice", "tok-alice")
	f.feeds.bodies["tok-alice"] = feedJSON("Heat")

	if _, err := f.svc.Sync(context.Background()); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	f.router.calls = nil

	stats, err := f.svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if stats.Added != 0 || len(f.router.calls) != 0 {
		t.Fatalf("stats = %+v, routed again: %v", stats, f.router.calls)
	}
}

func TestSync_UsersWithoutTokensSkipped(t *testing.T) {
	f := newSyncFixture(t)
	f.addUser(t, "alice", "")

	stats, err := f.svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Users != 0 {
		t.Fatalf("stats = %+v, tokenless users must not sync", stats)
	}
}

func TestSync_FetchFailureSkipsUserWithoutRemovals(t *testing.T) {
	f := newSyncFixture(t)
	alice := f.addUser(t, "alice", "tok-alice")
	f.addUser(t, "bob", "tok-bob")
	f.feeds.bodies["tok-alice"] = feedJSON("Heat")
	f.feeds.bodies["tok-bob"] = feedJSON("Alien")

	if _, err := f.svc.Sync(context.Background()); err != nil {
		t.Fatalf("seed Sync: %v", err)
	}

	// Alice's provider starts failing. Her stored items must survive.
	f.feeds.fail["tok-alice"] = http.StatusServiceUnavailable

	stats, err := f.svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Errors != 1 || stats.Removed != 0 {
		t.Fatalf("stats = %+v, want one error and no removals", stats)
	}

	items, err := f.items.ListByUser(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("alice's items = %d, a failed fetch must not empty the watchlist", len(items))
	}
}

func TestSync_MarksDroppedEntriesRemoved(t *testing.T) {
	f := newSyncFixture(t)
	alice := f.addUser(t, "alice", "tok-alice")
	f.feeds.bodies["tok-alice"] = feedJSON("Heat", "Alien")

	if _, err := f.svc.Sync(context.Background()); err != nil {
		t.Fatalf("seed Sync: %v", err)
	}

	f.feeds.bodies["tok-alice"] = feedJSON("Heat")
	stats, err := f.svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Removed != 1 {
		t.Fatalf("stats = %+v, want one removal", stats)
	}

	items, err := f.items.ListByUser(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(items) != 1 || items[0].Key != "key-Heat" {
		t.Fatalf("items = %+v", items)
	}
}

func TestSync_RoutingFailureLeavesEntryPending(t *testing.T) {
	f := newSyncFixture(t)
	alice := f.addUser(t, "alice", "tok-alice")
	f.feeds.bodies["tok-alice"] = feedJSON("Heat")
	f.router.err = errors.New("engine exploded")

	stats, err := f.svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Errors != 1 || stats.Routed != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	item, err := f.items.Get(context.Background(), alice.ID, "key-Heat")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.Status != store.WatchlistPending {
		t.Errorf("status = %q, failed routing must leave the entry pending for retry", item.Status)
	}
}

func TestSync_HeldItemNotMarkedRouted(t *testing.T) {
	f := newSyncFixture(t)
	alice := f.addUser(t, "alice", "tok-alice")
	f.feeds.bodies["tok-alice"] = feedJSON("Heat")
	f.router.dispatched = nil // held for approval, nothing dispatched

	stats, err := f.svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Routed != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	item, err := f.items.Get(context.Background(), alice.ID, "key-Heat")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.Status == store.WatchlistRouted {
		t.Error("empty dispatch must not mark the entry routed")
	}
}

func TestSync_OnlyOnePassAtATime(t *testing.T) {
	f := newSyncFixture(t)
	f.svc.mu.Lock()
	defer f.svc.mu.Unlock()

	if _, err := f.svc.Sync(context.Background()); !errors.Is(err, ErrSyncRunning) {
		t.Fatalf("err = %v, want ErrSyncRunning", err)
	}
}

func TestSyncInstance_ReRoutesLiveItemsWithSyncTarget(t *testing.T) {
	f := newSyncFixture(t)
	alice := f.addUser(t, "alice", "tok-alice")
	f.feeds.bodies["tok-alice"] = feedJSON("Heat", "Alien")

	if _, err := f.svc.Sync(context.Background()); err != nil {
		t.Fatalf("seed Sync: %v", err)
	}
	f.router.calls = nil

	stats, err := f.svc.SyncInstance(context.Background(), 7)
	if err != nil {
		t.Fatalf("SyncInstance: %v", err)
	}
	if stats.Items != 2 || stats.Routed != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	for _, call := range f.router.calls {
		if !call.opts.Syncing || call.opts.SyncTargetInstanceID != 7 {
			t.Errorf("route opts = %+v, want syncing with target 7", call.opts)
		}
		if call.opts.UserID != alice.ID || call.opts.UserName != "alice" {
			t.Errorf("route opts = %+v, want owner identity", call.opts)
		}
	}
}
