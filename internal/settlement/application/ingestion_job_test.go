package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"settlement-platform/internal/fees"
	feesmem "settlement-platform/internal/fees/infrastructure/memory"
	"settlement-platform/internal/money"
	payments "settlement-platform/internal/payments/domain"
	paymentsmem "settlement-platform/internal/payments/infrastructure/memory"
	"settlement-platform/internal/settlement/application"
	settlement "settlement-platform/internal/settlement/domain"
	settlementmem "settlement-platform/internal/settlement/infrastructure/memory"
)

func TestPartitionRangeTilesExactly(t *testing.T) {
	cases := []struct {
		name  string
		lo    int64
		hi    int64
		grid  int
		sizes []int64
	}{
		{name: "even split", lo: 1, hi: 100, grid: 4, sizes: []int64{25, 25, 25, 25}},
		{name: "remainder spread", lo: 1, hi: 10, grid: 3, sizes: []int64{4, 3, 3}},
		{name: "grid larger than range", lo: 5, hi: 7, grid: 10, sizes: []int64{1, 1, 1}},
		{name: "single id", lo: 9, hi: 9, grid: 4, sizes: []int64{1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parts := application.PartitionRange(payments.IDRange{Lo: tc.lo, Hi: tc.hi}, tc.grid)
			if len(parts) != len(tc.sizes) {
				t.Fatalf("partition count: got=%d want=%d", len(parts), len(tc.sizes))
			}
			next := tc.lo
			for i, part := range parts {
				if part.Lo != next {
					t.Fatalf("partition %d: lo=%d want=%d", i, part.Lo, next)
				}
				if got := part.Hi - part.Lo + 1; got != tc.sizes[i] {
					t.Fatalf("partition %d: size=%d want=%d", i, got, tc.sizes[i])
				}
				next = part.Hi + 1
			}
			if next != tc.hi+1 {
				t.Fatalf("partitions end at %d, want %d", next-1, tc.hi)
			}
		})
	}
}

func TestPartitionRangeEmptyInputs(t *testing.T) {
	if parts := application.PartitionRange(payments.IDRange{Lo: 1, Hi: 0}, 4); parts != nil {
		t.Fatalf("empty range should yield no partitions, got %v", parts)
	}
	if parts := application.PartitionRange(payments.IDRange{Lo: 1, Hi: 10}, 0); parts != nil {
		t.Fatalf("zero grid should yield no partitions, got %v", parts)
	}
}

func newIngestionFixture(t *testing.T, chunkSize int) (*paymentsmem.PaymentRepository, *settlementmem.Store, *application.IngestionJob) {
	t.Helper()
	paymentRepo := paymentsmem.NewPaymentRepository()
	store := settlementmem.NewStore(paymentRepo)

	calc, err := fees.NewCalculator(feesmem.NewPolicyRepository(), decimal.NewFromInt(3))
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}
	job, err := application.NewIngestionJob(
		paymentRepo, store, calc, seoul(t), 2, chunkSize, nil, nil,
	)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return paymentRepo, store, job
}

func approvedPayment(id int64, provider string, items ...payments.LineItem) payments.Payment {
	total := money.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return payments.Payment{
		ID:              id,
		PGTransactionID: "pg-" + time.Now().Format("150405") + "-" + provider,
		Provider:        provider,
		Method:          "CARD",
		Amount:          total,
		ApprovedAt:      time.Date(2025, time.October, 30, 3, 0, 0, 0, time.UTC),
		LineItems:       items,
	}
}

func TestIngestionCreatesRowsAndMarksSettled(t *testing.T) {
	paymentRepo, store, job := newIngestionFixture(t, 100)

	paymentRepo.Add(approvedPayment(1, "TOSS",
		payments.LineItem{BrandID: 7, Type: payments.LineItemOrder, Amount: money.FromInt64(10000), CommissionRate: decimal.NewFromInt(10)},
		payments.LineItem{BrandID: 8, Type: payments.LineItemOrder, Amount: money.FromInt64(5000), CommissionRate: decimal.NewFromInt(5)},
	))
	paymentRepo.Add(approvedPayment(2, "TOSS",
		payments.LineItem{BrandID: 7, Type: payments.LineItemRefund, Amount: money.FromInt64(3000), CommissionRate: decimal.NewFromInt(10)},
	))

	result, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Reads != 2 || result.Writes != 3 || result.FailedChunks != 0 {
		t.Fatalf("result mismatch: %+v", result)
	}

	rows := store.Rows()
	if len(rows) != 3 {
		t.Fatalf("row count: got=%d want=3", len(rows))
	}

	var brand7Order *settlement.TransactionSettlement
	for i := range rows {
		if rows[i].BrandID == 7 && rows[i].TransactionType == settlement.TransactionOrder {
			brand7Order = &rows[i]
		}
	}
	if brand7Order == nil {
		t.Fatalf("brand 7 order row missing")
	}
	if !brand7Order.CommissionAmount.Equal(money.FromInt64(1000)) {
		t.Fatalf("commission: got=%s want=1000.00", brand7Order.CommissionAmount)
	}
	if !brand7Order.TaxAmount.Equal(money.FromInt64(100)) {
		t.Fatalf("tax: got=%s want=100.00", brand7Order.TaxAmount)
	}
	if !brand7Order.PGFeeAmount.Equal(money.FromInt64(300)) {
		t.Fatalf("pg fee: got=%s want=300.00", brand7Order.PGFeeAmount)
	}
	if !brand7Order.FinalSettlementAmount().Equal(money.FromInt64(8600)) {
		t.Fatalf("final: got=%s want=8600.00", brand7Order.FinalSettlementAmount())
	}
	if brand7Order.AggregationStatus != settlement.AggregationNotAggregated {
		t.Fatalf("fresh row status: got=%s", brand7Order.AggregationStatus)
	}

	for _, id := range []int64{1, 2} {
		payment, ok := paymentRepo.Get(id)
		if !ok || !payment.IsSettled() {
			t.Fatalf("payment %d should be settled", id)
		}
	}
}

func TestIngestionIsIdempotentAcrossRuns(t *testing.T) {
	paymentRepo, store, job := newIngestionFixture(t, 100)
	paymentRepo.Add(approvedPayment(1, "TOSS",
		payments.LineItem{BrandID: 7, Type: payments.LineItemOrder, Amount: money.FromInt64(10000), CommissionRate: decimal.NewFromInt(10)},
	))

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Reads != 0 || second.Writes != 0 {
		t.Fatalf("second run should be a no-op: %+v", second)
	}
	if got := len(store.Rows()); got != 1 {
		t.Fatalf("row count after two runs: got=%d want=1", got)
	}
}

type failingFeeCalculator struct {
	inner       application.FeeCalculator
	badProvider string
}

func (f failingFeeCalculator) Calculate(ctx context.Context, provider, method string, amount money.Money, at time.Time) (money.Money, error) {
	if provider == f.badProvider {
		return money.Zero, errors.New("no policy for provider")
	}
	return f.inner.Calculate(ctx, provider, method, amount, at)
}

func TestIngestionFailedChunkDoesNotBlockOthers(t *testing.T) {
	paymentRepo := paymentsmem.NewPaymentRepository()
	store := settlementmem.NewStore(paymentRepo)

	calc, err := fees.NewCalculator(feesmem.NewPolicyRepository(), decimal.NewFromInt(3))
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}
	// Chunk size 1 isolates each payment in its own chunk; one worker
	// keeps the walk order deterministic.
	job, err := application.NewIngestionJob(
		paymentRepo, store,
		failingFeeCalculator{inner: calc, badProvider: "BROKEN"},
		seoul(t), 1, 1, nil, nil,
	)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	item := payments.LineItem{BrandID: 7, Type: payments.LineItemOrder, Amount: money.FromInt64(10000), CommissionRate: decimal.NewFromInt(10)}
	paymentRepo.Add(approvedPayment(1, "TOSS", item))
	paymentRepo.Add(approvedPayment(2, "BROKEN", item))
	paymentRepo.Add(approvedPayment(3, "TOSS", item))

	result, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.FailedChunks != 1 {
		t.Fatalf("failed chunks: got=%d want=1", result.FailedChunks)
	}
	if result.Writes != 2 {
		t.Fatalf("writes: got=%d want=2", result.Writes)
	}

	if payment, _ := paymentRepo.Get(2); payment.IsSettled() {
		t.Fatalf("failed chunk payment must stay unsettled")
	}
	for _, id := range []int64{1, 3} {
		if payment, _ := paymentRepo.Get(id); !payment.IsSettled() {
			t.Fatalf("payment %d should be settled", id)
		}
	}
}
