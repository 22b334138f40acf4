package application_test

import (
	"context"
	"testing"
	"time"

	"settlement-platform/internal/money"
	"settlement-platform/internal/settlement/application"
	settlement "settlement-platform/internal/settlement/domain"
	settlementmem "settlement-platform/internal/settlement/infrastructure/memory"
)

func newConfirmationJob(t *testing.T, store *settlementmem.Store, now time.Time) *application.ConfirmationJob {
	t.Helper()
	job, err := application.NewConfirmationJob(store, "Asia/Seoul", nil, nil, fixedClock{now: now})
	if err != nil {
		t.Fatalf("new confirmation job: %v", err)
	}
	return job
}

func TestConfirmDailyRecomputesFromTransactions(t *testing.T) {
	loc := seoul(t)
	store := settlementmem.NewStore(nil)
	now := time.Date(2025, time.October, 31, 2, 0, 0, 0, time.UTC)
	engine := newEngine(t, store, nil, now)
	job := newConfirmationJob(t, store, now)

	approved := time.Date(2025, time.October, 30, 3, 0, 0, 0, time.UTC)
	seedRow(t, store, 7, 1, settlement.TransactionOrder, 10000, 1000, 100, 300, approved, loc)
	seedRow(t, store, 7, 2, settlement.TransactionRefund, 3000, 300, 30, 90, approved, loc)
	seedRow(t, store, 8, 3, settlement.TransactionOrder, 5000, 500, 50, 150, approved, loc)

	if _, err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	confirmed, err := job.ConfirmDaily(context.Background(), time.Date(2025, time.October, 30, 0, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("confirm daily: %v", err)
	}
	if confirmed != 2 {
		t.Fatalf("confirmed count: got=%d want=2", confirmed)
	}

	daily := store.Tier(settlement.TierDaily, 7, "20251030")
	if daily.Status() != settlement.StatusConfirmed {
		t.Fatalf("status: got=%s want=%s", daily.Status(), settlement.StatusConfirmed)
	}
	if daily.Totals().OrderCount != 2 {
		t.Fatalf("order count: got=%d want=2", daily.Totals().OrderCount)
	}
	if !daily.Totals().SalesAmount.Equal(money.FromInt64(7000)) {
		t.Fatalf("sales: got=%s want=7000.00", daily.Totals().SalesAmount)
	}
	if !daily.FinalSettlementAmount().Equal(money.FromInt64(6020)) {
		t.Fatalf("final: got=%s want=6020.00", daily.FinalSettlementAmount())
	}
}

func TestConfirmDailyIsIdempotent(t *testing.T) {
	loc := seoul(t)
	store := settlementmem.NewStore(nil)
	now := time.Date(2025, time.October, 31, 2, 0, 0, 0, time.UTC)
	engine := newEngine(t, store, nil, now)
	job := newConfirmationJob(t, store, now)

	approved := time.Date(2025, time.October, 30, 3, 0, 0, 0, time.UTC)
	seedRow(t, store, 7, 1, settlement.TransactionOrder, 10000, 1000, 100, 300, approved, loc)
	if _, err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	target := time.Date(2025, time.October, 30, 0, 0, 0, 0, loc)
	if _, err := job.ConfirmDaily(context.Background(), target); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if _, err := job.ConfirmDaily(context.Background(), target); err != nil {
		t.Fatalf("second confirm: %v", err)
	}

	daily := store.Tier(settlement.TierDaily, 7, "20251030")
	if daily.Totals().OrderCount != 1 {
		t.Fatalf("repeated confirmation must replace, got order count %d", daily.Totals().OrderCount)
	}
	if !daily.Totals().SalesAmount.Equal(money.FromInt64(10000)) {
		t.Fatalf("sales: got=%s want=10000.00", daily.Totals().SalesAmount)
	}
}

func TestConfirmDailyCorrectsDriftedTier(t *testing.T) {
	loc := seoul(t)
	store := settlementmem.NewStore(nil)
	now := time.Date(2025, time.October, 31, 2, 0, 0, 0, time.UTC)
	job := newConfirmationJob(t, store, now)

	// A drifted daily tier with no backing transactions is reset to zero.
	period, err := settlement.PeriodFor(settlement.TierDaily, time.Date(2025, time.October, 30, 0, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("period: %v", err)
	}
	drifted, err := settlement.NewTierAggregate(7, period, "Asia/Seoul")
	if err != nil {
		t.Fatalf("new aggregate: %v", err)
	}
	if err := drifted.SetAggregatedData(settlement.AggregationTotals{OrderCount: 9, SalesAmount: money.FromInt64(99999)}, now); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.SaveTier(context.Background(), drifted); err != nil {
		t.Fatalf("save: %v", err)
	}

	confirmed, err := job.ConfirmDaily(context.Background(), time.Date(2025, time.October, 30, 0, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed != 1 {
		t.Fatalf("confirmed: got=%d want=1", confirmed)
	}

	daily := store.Tier(settlement.TierDaily, 7, "20251030")
	if daily.Totals().OrderCount != 0 || !daily.Totals().SalesAmount.IsZero() {
		t.Fatalf("drifted tier should be reset, got %+v", daily.Totals())
	}
	if daily.Status() != settlement.StatusConfirmed {
		t.Fatalf("status: got=%s", daily.Status())
	}
}

func TestConfirmMonthlyRecomputesFromDailyTiers(t *testing.T) {
	loc := seoul(t)
	store := settlementmem.NewStore(nil)
	now := time.Date(2025, time.November, 1, 2, 0, 0, 0, time.UTC)
	engine := newEngine(t, store, nil, now)
	job := newConfirmationJob(t, store, now)

	// Ten transactions spread over three local dates in October.
	dates := []time.Time{
		time.Date(2025, time.October, 10, 3, 0, 0, 0, time.UTC),
		time.Date(2025, time.October, 20, 3, 0, 0, 0, time.UTC),
		time.Date(2025, time.October, 30, 3, 0, 0, 0, time.UTC),
	}
	paymentID := int64(1)
	for i, approved := range dates {
		for j := 0; j <= i; j++ {
			seedRow(t, store, 7, paymentID, settlement.TransactionOrder, 10000, 1000, 100, 300, approved, loc)
			paymentID++
		}
	}
	seedRow(t, store, 7, paymentID, settlement.TransactionRefund, 10000, 1000, 100, 300, dates[2], loc)
	paymentID++
	for j := 0; j < 3; j++ {
		seedRow(t, store, 8, paymentID, settlement.TransactionOrder, 5000, 500, 50, 150, dates[1], loc)
		paymentID++
	}

	if _, err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	confirmed, err := job.ConfirmMonthly(context.Background(), time.Date(2025, time.October, 15, 0, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("confirm monthly: %v", err)
	}
	if confirmed != 2 {
		t.Fatalf("confirmed: got=%d want=2", confirmed)
	}

	monthly := store.Tier(settlement.TierMonthly, 7, "202510")
	if monthly.Status() != settlement.StatusConfirmed {
		t.Fatalf("status: got=%s", monthly.Status())
	}
	// Brand 7: 1+2+3 orders plus one refund, sales 6x10000 - 10000.
	if monthly.Totals().OrderCount != 7 {
		t.Fatalf("order count: got=%d want=7", monthly.Totals().OrderCount)
	}
	if !monthly.Totals().SalesAmount.Equal(money.FromInt64(50000)) {
		t.Fatalf("sales: got=%s want=50000.00", monthly.Totals().SalesAmount)
	}

	other := store.Tier(settlement.TierMonthly, 8, "202510")
	if !other.Totals().SalesAmount.Equal(money.FromInt64(15000)) {
		t.Fatalf("brand 8 sales: got=%s want=15000.00", other.Totals().SalesAmount)
	}
}

func TestConfirmWeeklySumsOnlyItsWeek(t *testing.T) {
	loc := seoul(t)
	store := settlementmem.NewStore(nil)
	now := time.Date(2025, time.November, 3, 2, 0, 0, 0, time.UTC)
	engine := newEngine(t, store, nil, now)
	job := newConfirmationJob(t, store, now)

	// Oct 30 is inside the Oct 27 week; Nov 3 starts the next week.
	inWeek := time.Date(2025, time.October, 30, 3, 0, 0, 0, time.UTC)
	nextWeek := time.Date(2025, time.November, 3, 3, 0, 0, 0, time.UTC)
	seedRow(t, store, 7, 1, settlement.TransactionOrder, 10000, 1000, 100, 300, inWeek, loc)
	seedRow(t, store, 7, 2, settlement.TransactionOrder, 20000, 2000, 200, 600, nextWeek, loc)

	if _, err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if _, err := job.ConfirmWeekly(context.Background(), time.Date(2025, time.October, 30, 0, 0, 0, 0, loc)); err != nil {
		t.Fatalf("confirm weekly: %v", err)
	}

	weekly := store.Tier(settlement.TierWeekly, 7, "202510W4")
	if weekly.Status() != settlement.StatusConfirmed {
		t.Fatalf("status: got=%s", weekly.Status())
	}
	if !weekly.Totals().SalesAmount.Equal(money.FromInt64(10000)) {
		t.Fatalf("weekly sales: got=%s want=10000.00", weekly.Totals().SalesAmount)
	}

	following := store.Tier(settlement.TierWeekly, 7, "202511W1")
	if following == nil || following.Status() == settlement.StatusConfirmed {
		t.Fatalf("next week must stay unconfirmed")
	}
}

func TestConfirmYearlyRecomputesFromMonthlyTiers(t *testing.T) {
	loc := seoul(t)
	store := settlementmem.NewStore(nil)
	now := time.Date(2026, time.January, 1, 2, 0, 0, 0, time.UTC)
	engine := newEngine(t, store, nil, now)
	job := newConfirmationJob(t, store, now)

	seedRow(t, store, 7, 1, settlement.TransactionOrder, 10000, 1000, 100, 300,
		time.Date(2025, time.March, 10, 3, 0, 0, 0, time.UTC), loc)
	seedRow(t, store, 7, 2, settlement.TransactionOrder, 20000, 2000, 200, 600,
		time.Date(2025, time.October, 30, 3, 0, 0, 0, time.UTC), loc)

	if _, err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	confirmed, err := job.ConfirmYearly(context.Background(), time.Date(2025, time.December, 31, 0, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("confirm yearly: %v", err)
	}
	if confirmed != 1 {
		t.Fatalf("confirmed: got=%d want=1", confirmed)
	}

	yearly := store.Tier(settlement.TierYearly, 7, "2025")
	if yearly.Status() != settlement.StatusConfirmed {
		t.Fatalf("status: got=%s", yearly.Status())
	}
	if yearly.Totals().OrderCount != 2 {
		t.Fatalf("order count: got=%d want=2", yearly.Totals().OrderCount)
	}
	if !yearly.Totals().SalesAmount.Equal(money.FromInt64(30000)) {
		t.Fatalf("sales: got=%s want=30000.00", yearly.Totals().SalesAmount)
	}
}

func TestSchedulerConfirmsAtConfiguredLocalTime(t *testing.T) {
	loc := seoul(t)
	store := settlementmem.NewStore(nil)
	now := time.Date(2025, time.October, 31, 2, 0, 0, 0, time.UTC)
	engine := newEngine(t, store, nil, now)
	job := newConfirmationJob(t, store, now)

	approved := time.Date(2025, time.October, 30, 3, 0, 0, 0, time.UTC)
	seedRow(t, store, 7, 1, settlement.TransactionOrder, 10000, 1000, 100, 300, approved, loc)
	if _, err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	scheduler := application.NewScheduler(nil, nil, job, loc, "05:00", nil, fixedClock{now: now})

	// 19:00 UTC Oct 30 is 04:00 Oct 31 in Seoul, before the window.
	scheduler.RunMinute(context.Background(), time.Date(2025, time.October, 30, 19, 0, 0, 0, time.UTC))
	if agg := store.Tier(settlement.TierDaily, 7, "20251030"); agg.Status() == settlement.StatusConfirmed {
		t.Fatalf("confirmation ran outside its window")
	}

	// 20:00 UTC Oct 30 is 05:00 Oct 31 in Seoul: confirm yesterday.
	scheduler.RunMinute(context.Background(), time.Date(2025, time.October, 30, 20, 0, 0, 0, time.UTC))
	if agg := store.Tier(settlement.TierDaily, 7, "20251030"); agg.Status() != settlement.StatusConfirmed {
		t.Fatalf("daily confirmation did not run, status=%s", agg.Status())
	}
}
