package routing

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSortDecisions_DescendingAndStable(t *testing.T) {
	a := "a"
	b := "b"
	decisions := []Decision{
		{InstanceID: 1, Priority: 10},
		{InstanceID: 2, Priority: 50, RootFolder: &a},
		{InstanceID: 3, Priority: 50, RootFolder: &b},
		{InstanceID: 4, Priority: 90},
	}
	SortDecisions(decisions)

	wantOrder := []int64{4, 2, 3, 1}
	for i, id := range wantOrder {
		if decisions[i].InstanceID != id {
			t.Errorf("position %d = instance %d, want %d", i, decisions[i].InstanceID, id)
		}
	}
}

func TestResolveDecisions_FirstSeenWinsPerInstance(t *testing.T) {
	decisions := []Decision{
		{InstanceID: 1, Priority: 90},
		{InstanceID: 2, Priority: 70},
		{InstanceID: 1, Priority: 50},
		{InstanceID: 3, Priority: 40},
		{InstanceID: 2, Priority: 10},
	}
	resolved := ResolveDecisions(decisions, zerolog.Nop())

	if len(resolved) != 3 {
		t.Fatalf("got %d decisions, want 3", len(resolved))
	}
	wantPriorities := map[int64]int{1: 90, 2: 70, 3: 40}
	for _, d := range resolved {
		if want := wantPriorities[d.InstanceID]; d.Priority != want {
			t.Errorf("instance %d kept priority %d, want %d", d.InstanceID, d.Priority, want)
		}
	}
}

func TestResolveDecisions_Idempotent(t *testing.T) {
	decisions := []Decision{
		{InstanceID: 1, Priority: 90},
		{InstanceID: 2, Priority: 70},
	}
	once := ResolveDecisions(decisions, zerolog.Nop())
	twice := ResolveDecisions(once, zerolog.Nop())

	if len(twice) != len(once) {
		t.Fatalf("resolving twice changed the result: %d vs %d", len(twice), len(once))
	}
}

func TestResolveDecisions_Empty(t *testing.T) {
	if got := ResolveDecisions(nil, zerolog.Nop()); len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}
