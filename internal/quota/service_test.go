package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/testutil"
)

func newQuotaFixture(t *testing.T) (*Service, int64) {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)

	res, err := tdb.Conn.Exec("INSERT INTO users (name) VALUES ('alice')")
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	userID, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	return NewService(tdb.Conn, tdb.Logger), userID
}

func TestStatus_NoLimitMeansUnlimited(t *testing.T) {
	svc, userID := newQuotaFixture(t)

	status, err := svc.Status(context.Background(), userID, media.TypeMovie)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status == nil || status.Exceeded {
		t.Fatalf("status = %+v, want not exceeded", status)
	}
}

func TestStatus_CountsUsageWithinWindow(t *testing.T) {
	svc, userID := newQuotaFixture(t)
	if err := svc.SetLimit(context.Background(), Limit{
		UserID: userID, ContentType: "movie", QuotaType: TypeWeeklyRolling, QuotaLimit: 2,
	}); err != nil {
		t.Fatalf("SetLimit: %v", err)
	}

	if err := svc.RecordUsage(context.Background(), userID, media.TypeMovie); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	status, err := svc.Status(context.Background(), userID, media.TypeMovie)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Exceeded || status.CurrentUsage != 1 || status.QuotaLimit != 2 {
		t.Fatalf("status = %+v", status)
	}

	if err := svc.RecordUsage(context.Background(), userID, media.TypeMovie); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	status, err = svc.Status(context.Background(), userID, media.TypeMovie)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Exceeded || status.CurrentUsage != 2 {
		t.Fatalf("status = %+v, want exceeded at the limit", status)
	}
	if status.QuotaType != TypeWeeklyRolling {
		t.Errorf("quotaType = %q", status.QuotaType)
	}
}

func TestStatus_UsageOutsideWindowIgnored(t *testing.T) {
	svc, userID := newQuotaFixture(t)
	if err := svc.SetLimit(context.Background(), Limit{
		UserID: userID, ContentType: "movie", QuotaType: TypeWeeklyRolling, QuotaLimit: 1,
	}); err != nil {
		t.Fatalf("SetLimit: %v", err)
	}

	// Record a usage eight days ago, outside the rolling week.
	base := time.Now()
	svc.now = func() time.Time { return base.AddDate(0, 0, -8) }
	if err := svc.RecordUsage(context.Background(), userID, media.TypeMovie); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	svc.now = func() time.Time { return base }

	status, err := svc.Status(context.Background(), userID, media.TypeMovie)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Exceeded || status.CurrentUsage != 0 {
		t.Fatalf("status = %+v, want stale usage ignored", status)
	}
}

func TestStatus_DailyWindowResetsAtMidnight(t *testing.T) {
	svc, userID := newQuotaFixture(t)
	if err := svc.SetLimit(context.Background(), Limit{
		UserID: userID, ContentType: "movie", QuotaType: TypeDaily, QuotaLimit: 1,
	}); err != nil {
		t.Fatalf("SetLimit: %v", err)
	}

	// Usage recorded late yesterday does not count against today.
	noon := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return noon.Add(-13 * time.Hour) }
	if err := svc.RecordUsage(context.Background(), userID, media.TypeMovie); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	svc.now = func() time.Time { return noon }

	status, err := svc.Status(context.Background(), userID, media.TypeMovie)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Exceeded || status.CurrentUsage != 0 {
		t.Fatalf("status = %+v, want yesterday's usage excluded", status)
	}
}

func TestStatus_ZeroLimitNeverExceeds(t *testing.T) {
	svc, userID := newQuotaFixture(t)
	if err := svc.SetLimit(context.Background(), Limit{
		UserID: userID, ContentType: "movie", QuotaType: TypeMonthly, QuotaLimit: 0,
	}); err != nil {
		t.Fatalf("SetLimit: %v", err)
	}
	if err := svc.RecordUsage(context.Background(), userID, media.TypeMovie); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	status, err := svc.Status(context.Background(), userID, media.TypeMovie)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Exceeded {
		t.Fatalf("status = %+v, zero limit means unlimited", status)
	}
}

func TestSetLimit_RejectsUnknownType(t *testing.T) {
	svc, userID := newQuotaFixture(t)
	err := svc.SetLimit(context.Background(), Limit{
		UserID: userID, ContentType: "movie", QuotaType: "hourly", QuotaLimit: 1,
	})
	if err == nil {
		t.Fatal("expected error for unknown quota type")
	}
}

func TestBypassesQuotas(t *testing.T) {
	svc, userID := newQuotaFixture(t)

	bypass, err := svc.BypassesQuotas(context.Background(), userID)
	if err != nil {
		t.Fatalf("BypassesQuotas: %v", err)
	}
	if bypass {
		t.Error("no quota configured, must not bypass")
	}

	if err := svc.SetLimit(context.Background(), Limit{
		UserID: userID, ContentType: "show", QuotaType: TypeMonthly, QuotaLimit: 5, BypassApproval: true,
	}); err != nil {
		t.Fatalf("SetLimit: %v", err)
	}
	bypass, err = svc.BypassesQuotas(context.Background(), userID)
	if err != nil {
		t.Fatalf("BypassesQuotas: %v", err)
	}
	if !bypass {
		t.Error("bypass flag on any quota must apply")
	}
}

func TestClearLimit(t *testing.T) {
	svc, userID := newQuotaFixture(t)
	if err := svc.SetLimit(context.Background(), Limit{
		UserID: userID, ContentType: "movie", QuotaType: TypeMonthly, QuotaLimit: 5,
	}); err != nil {
		t.Fatalf("SetLimit: %v", err)
	}
	if err := svc.ClearLimit(context.Background(), userID, "movie"); err != nil {
		t.Fatalf("ClearLimit: %v", err)
	}
	if err := svc.ClearLimit(context.Background(), userID, "movie"); !errors.Is(err, ErrQuotaNotFound) {
		t.Fatalf("second ClearLimit = %v, want ErrQuotaNotFound", err)
	}

	limits, err := svc.Limits(context.Background(), userID)
	if err != nil {
		t.Fatalf("Limits: %v", err)
	}
	if len(limits) != 0 {
		t.Fatalf("limits = %+v, want empty", limits)
	}
}

func TestPruneUsage(t *testing.T) {
	svc, userID := newQuotaFixture(t)

	base := time.Now()
	svc.now = func() time.Time { return base.AddDate(0, 0, -90) }
	if err := svc.RecordUsage(context.Background(), userID, media.TypeMovie); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	svc.now = func() time.Time { return base }
	if err := svc.RecordUsage(context.Background(), userID, media.TypeMovie); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	pruned, err := svc.PruneUsage(context.Background())
	if err != nil {
		t.Fatalf("PruneUsage: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned = %d, want only the 90-day-old row", pruned)
	}
}
