package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"settlement-platform/internal/settlement/application"
	settlement "settlement-platform/internal/settlement/domain"
)

// PaymentMarker stamps payments as settled. The in-memory payment
// repository satisfies it.
type PaymentMarker interface {
	MarkSettled(ids []int64, at time.Time)
}

// Store is an in-memory settlement store for tests. It satisfies the
// batch writer, aggregation store and confirmation store contracts.
type Store struct {
	mu       sync.RWMutex
	nextRow  int64
	nextTier int64
	rows     map[int64]*settlement.TransactionSettlement
	tiers    map[string]*settlement.TierAggregate
	payments PaymentMarker

	// FailCommit makes the next CommitTick fail, for crash tests.
	FailCommit error
}

var (
	_ application.SettlementBatchWriter = (*Store)(nil)
	_ application.AggregationStore     = (*Store)(nil)
	_ application.ConfirmationStore    = (*Store)(nil)
)

// NewStore constructs an empty store. payments may be nil when the
// test never exercises ingestion.
func NewStore(payments PaymentMarker) *Store {
	return &Store{
		rows:     make(map[int64]*settlement.TransactionSettlement),
		tiers:    make(map[string]*settlement.TierAggregate),
		payments: payments,
	}
}

func tierKey(kind settlement.TierKind, brandID int64, periodKey string) string {
	return string(kind) + "/" + periodKey + "/" + strconv.FormatInt(brandID, 10)
}

// InsertBatchAndMarkSettled appends the rows and stamps the source
// payments, emulating the chunk transaction.
func (s *Store) InsertBatchAndMarkSettled(ctx context.Context, rows []*settlement.TransactionSettlement, paymentIDs []int64, settledAt time.Time) error {
	_ = ctx

	s.mu.Lock()
	for _, row := range rows {
		s.nextRow++
		copied := *row
		copied.ID = s.nextRow
		copied.CreatedAt = settledAt
		s.rows[copied.ID] = &copied
	}
	s.mu.Unlock()

	if s.payments != nil {
		s.payments.MarkSettled(paymentIDs, settledAt)
	}
	return nil
}

// ResetStuckProcessing returns PROCESSING rows to NOT_AGGREGATED.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	var reset int64
	for _, row := range s.rows {
		if row.AggregationStatus == settlement.AggregationProcessing {
			row.AggregationStatus = settlement.AggregationNotAggregated
			reset++
		}
	}
	return reset, nil
}

// ClaimUnaggregated flips up to limit rows to PROCESSING in id order.
func (s *Store) ClaimUnaggregated(ctx context.Context, limit int) (int64, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.rows))
	for id, row := range s.rows {
		if row.AggregationStatus == settlement.AggregationNotAggregated {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	for _, id := range ids {
		s.rows[id].AggregationStatus = settlement.AggregationProcessing
	}
	return int64(len(ids)), nil
}

// GroupClaimed groups PROCESSING rows by brand and local date.
func (s *Store) GroupClaimed(ctx context.Context) ([]settlement.AggregationGroup, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	type groupKey struct {
		brandID int64
		date    string
	}
	grouped := make(map[groupKey]*settlement.AggregationGroup)
	var keys []groupKey
	for _, row := range s.rows {
		if row.AggregationStatus != settlement.AggregationProcessing {
			continue
		}
		key := groupKey{brandID: row.BrandID, date: row.TransactionDateLocal.Format("20060102")}
		group, ok := grouped[key]
		if !ok {
			group = &settlement.AggregationGroup{BrandID: row.BrandID, LocalDate: row.TransactionDateLocal}
			grouped[key] = group
			keys = append(keys, key)
		}
		group.Totals = group.Totals.Add(row.SignedTotals())
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].brandID != keys[j].brandID {
			return keys[i].brandID < keys[j].brandID
		}
		return keys[i].date < keys[j].date
	})
	groups := make([]settlement.AggregationGroup, 0, len(keys))
	for _, key := range keys {
		groups = append(groups, *grouped[key])
	}
	return groups, nil
}

// FindTier returns a detached copy of one tier aggregate.
func (s *Store) FindTier(ctx context.Context, kind settlement.TierKind, brandID int64, periodKey string) (*settlement.TierAggregate, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	agg, ok := s.tiers[tierKey(kind, brandID, periodKey)]
	if !ok {
		return nil, nil
	}
	return agg.Clone(), nil
}

// CommitTick stores the tier writes and flips PROCESSING rows to
// AGGREGATED. FailCommit simulates a crash before the commit.
func (s *Store) CommitTick(ctx context.Context, writes []application.TierWrite) (int64, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailCommit != nil {
		err := s.FailCommit
		s.FailCommit = nil
		return 0, err
	}

	for _, write := range writes {
		s.saveLocked(write.Aggregate)
	}

	var swept int64
	for _, row := range s.rows {
		if row.AggregationStatus == settlement.AggregationProcessing {
			row.AggregationStatus = settlement.AggregationAggregated
			swept++
		}
	}
	return swept, nil
}

// GroupTransactionsByLocalDate groups all rows on one local date by
// brand, regardless of aggregation status.
func (s *Store) GroupTransactionsByLocalDate(ctx context.Context, localDate time.Time) ([]settlement.AggregationGroup, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := localDate.Format("20060102")
	grouped := make(map[int64]*settlement.AggregationGroup)
	var brands []int64
	for _, row := range s.rows {
		if row.TransactionDateLocal.Format("20060102") != wanted {
			continue
		}
		group, ok := grouped[row.BrandID]
		if !ok {
			group = &settlement.AggregationGroup{BrandID: row.BrandID, LocalDate: row.TransactionDateLocal}
			grouped[row.BrandID] = group
			brands = append(brands, row.BrandID)
		}
		group.Totals = group.Totals.Add(row.SignedTotals())
	}

	sort.Slice(brands, func(i, j int) bool { return brands[i] < brands[j] })
	groups := make([]settlement.AggregationGroup, 0, len(brands))
	for _, brandID := range brands {
		groups = append(groups, *grouped[brandID])
	}
	return groups, nil
}

// ListTiersInRange lists tier aggregates of one kind with period start
// in [from, to), ordered by brand then period key.
func (s *Store) ListTiersInRange(ctx context.Context, kind settlement.TierKind, from, to time.Time) ([]*settlement.TierAggregate, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*settlement.TierAggregate
	for _, agg := range s.tiers {
		if agg.Kind() != kind {
			continue
		}
		start := agg.Period().Start()
		if start.Before(from) || !start.Before(to) {
			continue
		}
		result = append(result, agg.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].BrandID() != result[j].BrandID() {
			return result[i].BrandID() < result[j].BrandID()
		}
		return result[i].Period().Key() < result[j].Period().Key()
	})
	return result, nil
}

// SaveTier upserts one tier aggregate.
func (s *Store) SaveTier(ctx context.Context, agg *settlement.TierAggregate) error {
	_ = ctx
	if agg == nil {
		return settlement.ErrNilAggregate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked(agg)
	return nil
}

func (s *Store) saveLocked(agg *settlement.TierAggregate) {
	if agg.ID() == 0 {
		s.nextTier++
		agg.MarkPersisted(s.nextTier)
	} else {
		agg.MarkPersisted(agg.ID())
	}
	s.tiers[tierKey(agg.Kind(), agg.BrandID(), agg.Period().Key())] = agg.Clone()
}

// Rows returns copies of all per-transaction rows ordered by id.
func (s *Store) Rows() []settlement.TransactionSettlement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.rows))
	for id := range s.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	result := make([]settlement.TransactionSettlement, 0, len(ids))
	for _, id := range ids {
		result = append(result, *s.rows[id])
	}
	return result
}

// Tier returns a copy of one tier aggregate, nil when absent.
func (s *Store) Tier(kind settlement.TierKind, brandID int64, periodKey string) *settlement.TierAggregate {
	agg, _ := s.FindTier(context.Background(), kind, brandID, periodKey)
	return agg
}
