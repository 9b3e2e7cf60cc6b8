package store

import (
	"context"
	"errors"
	"testing"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/routing"
	"github.com/helmarr/helmarr/internal/testutil"
)

func newInstanceFixture(t *testing.T) *InstanceStore {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)
	return NewInstanceStore(tdb.Conn, tdb.Logger)
}

func TestInstanceStore_CreateAndGet(t *testing.T) {
	instances := newInstanceFixture(t)

	created, err := instances.Create(context.Background(), routing.Instance{
		Name:              "radarr-4k",
		Type:              media.TypeMovie,
		BaseURL:           "http://localhost:7878",
		APIKey:            "secret",
		QualityProfileID:  testutil.Int64Ptr(4),
		RootFolder:        testutil.StringPtr("/movies-4k"),
		Tags:              []string{"4k"},
		SearchOnAdd:       true,
		SyncedInstanceIDs: []int64{2, 3},
		Enabled:           true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := instances.Instance(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Instance: %v", err)
	}
	if got == nil {
		t.Fatal("instance not found after create")
	}
	if got.Name != "radarr-4k" || got.APIKey != "secret" || !got.SearchOnAdd {
		t.Errorf("got %+v", got)
	}
	if got.QualityProfileID == nil || *got.QualityProfileID != 4 {
		t.Errorf("qualityProfileId = %v", got.QualityProfileID)
	}
	if len(got.SyncedInstanceIDs) != 2 || got.SyncedInstanceIDs[0] != 2 {
		t.Errorf("syncedInstanceIds = %v", got.SyncedInstanceIDs)
	}
}

func TestInstanceStore_UnknownInstanceIsNil(t *testing.T) {
	instances := newInstanceFixture(t)

	got, err := instances.Instance(context.Background(), 42)
	if err != nil {
		t.Fatalf("Instance: %v", err)
	}
	if got != nil {
		t.Fatalf("got %+v, want nil", got)
	}
}

func TestInstanceStore_DefaultPerContentType(t *testing.T) {
	instances := newInstanceFixture(t)

	_, err := instances.Create(context.Background(), routing.Instance{
		Name: "radarr", Type: media.TypeMovie, BaseURL: "http://r:7878", IsDefault: true, Enabled: true,
	})
	if err != nil {
		t.Fatalf("Create movie default: %v", err)
	}
	_, err = instances.Create(context.Background(), routing.Instance{
		Name: "sonarr", Type: media.TypeShow, BaseURL: "http://s:8989", IsDefault: true, Enabled: true,
	})
	if err != nil {
		t.Fatalf("Create show default: %v", err)
	}

	movieDef, err := instances.DefaultInstance(context.Background(), media.TypeMovie)
	if err != nil {
		t.Fatalf("DefaultInstance movie: %v", err)
	}
	showDef, err := instances.DefaultInstance(context.Background(), media.TypeShow)
	if err != nil {
		t.Fatalf("DefaultInstance show: %v", err)
	}
	if movieDef == nil || movieDef.Name != "radarr" {
		t.Errorf("movie default = %+v", movieDef)
	}
	if showDef == nil || showDef.Name != "sonarr" {
		t.Errorf("show default = %+v", showDef)
	}
}

func TestInstanceStore_NewDefaultClearsPrevious(t *testing.T) {
	instances := newInstanceFixture(t)

	first, err := instances.Create(context.Background(), routing.Instance{
		Name: "radarr-a", Type: media.TypeMovie, BaseURL: "http://a:7878", IsDefault: true, Enabled: true,
	})
	if err != nil {
		t.Fatalf("Create first: %v", err)
	}
	second, err := instances.Create(context.Background(), routing.Instance{
		Name: "radarr-b", Type: media.TypeMovie, BaseURL: "http://b:7878", IsDefault: true, Enabled: true,
	})
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}

	def, err := instances.DefaultInstance(context.Background(), media.TypeMovie)
	if err != nil {
		t.Fatalf("DefaultInstance: %v", err)
	}
	if def == nil || def.ID != second.ID {
		t.Fatalf("default = %+v, want instance %d", def, second.ID)
	}

	demoted, err := instances.Instance(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("Instance: %v", err)
	}
	if demoted.IsDefault {
		t.Error("previous default was not cleared")
	}
}

func TestInstanceStore_DisabledDefaultNotReturned(t *testing.T) {
	instances := newInstanceFixture(t)

	created, err := instances.Create(context.Background(), routing.Instance{
		Name: "radarr", Type: media.TypeMovie, BaseURL: "http://r:7878", IsDefault: true, Enabled: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	created.Enabled = false
	if _, err := instances.Update(context.Background(), *created); err != nil {
		t.Fatalf("Update: %v", err)
	}

	def, err := instances.DefaultInstance(context.Background(), media.TypeMovie)
	if err != nil {
		t.Fatalf("DefaultInstance: %v", err)
	}
	if def != nil {
		t.Fatalf("disabled default still returned: %+v", def)
	}
}

func TestInstanceStore_InstancesFiltersDisabled(t *testing.T) {
	instances := newInstanceFixture(t)

	if _, err := instances.Create(context.Background(), routing.Instance{
		Name: "on", Type: media.TypeMovie, BaseURL: "http://a:7878", Enabled: true,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := instances.Create(context.Background(), routing.Instance{
		Name: "off", Type: media.TypeMovie, BaseURL: "http://b:7878", Enabled: false,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	enabled, err := instances.Instances(context.Background(), media.TypeMovie)
	if err != nil {
		t.Fatalf("Instances: %v", err)
	}
	if len(enabled) != 1 || enabled[0].Name != "on" {
		t.Fatalf("enabled = %+v, want just 'on'", enabled)
	}

	all, err := instances.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List returned %d, want 2", len(all))
	}
}

func TestInstanceStore_UpdateMissing(t *testing.T) {
	instances := newInstanceFixture(t)
	_, err := instances.Update(context.Background(), routing.Instance{
		ID: 42, Name: "ghost", Type: media.TypeMovie, BaseURL: "http://g:7878",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
