package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"settlement-platform/internal/fees"
	"settlement-platform/internal/money"
	payments "settlement-platform/internal/payments/domain"
	settlement "settlement-platform/internal/settlement/domain"
)

// SettlementBatchWriter persists one ingestion chunk atomically:
// inserting the new settlement rows and marking the source payments
// settled must not be separable outside the chunk transaction.
type SettlementBatchWriter interface {
	InsertBatchAndMarkSettled(ctx context.Context, rows []*settlement.TransactionSettlement, paymentIDs []int64, settledAt time.Time) error
}

// FeeCalculator computes the PG fee frozen into each settlement row.
type FeeCalculator interface {
	Calculate(ctx context.Context, provider, method string, amount money.Money, at time.Time) (money.Money, error)
}

// FailureNotifier surfaces chunk-level failures to an operator channel.
type FailureNotifier interface {
	NotifyChunkFailure(ctx context.Context, partition Partition, err error)
}

// Partition is one inclusive id sub-range processed by a single worker.
type Partition struct {
	Lo int64
	Hi int64
}

// PartitionRange splits an inclusive id range into grid contiguous
// sub-ranges. The sub-ranges are pairwise disjoint and their union is
// exactly the input range; widths differ by at most one.
func PartitionRange(bounds payments.IDRange, grid int) []Partition {
	if grid <= 0 || bounds.IsEmpty() {
		return nil
	}

	total := bounds.Hi - bounds.Lo + 1
	if int64(grid) > total {
		grid = int(total)
	}
	width := total / int64(grid)
	remainder := total % int64(grid)

	partitions := make([]Partition, 0, grid)
	lo := bounds.Lo
	for i := 0; i < grid; i++ {
		size := width
		if int64(i) < remainder {
			size++
		}
		partitions = append(partitions, Partition{Lo: lo, Hi: lo + size - 1})
		lo += size
	}
	return partitions
}

// IngestionResult summarizes one ingestion run across all partitions.
type IngestionResult struct {
	Reads        int64
	Writes       int64
	FailedChunks int
	ChunkErrors  []error
	Elapsed      time.Duration
}

// IngestionJob turns approved, unsettled payments into per-transaction
// settlement rows. The eligible id range is tiled into partitions, each
// processed by its own worker streaming fixed-size chunks.
type IngestionJob struct {
	payments  payments.Repository
	store     SettlementBatchWriter
	fees      FeeCalculator
	loc       *time.Location
	gridSize  int
	chunkSize int
	metrics   Metrics
	notifier  FailureNotifier
	logger    *log.Logger
	clock     Clock
}

// IngestionOption configures the job.
type IngestionOption func(*IngestionJob)

// WithIngestionNotifier sets the operator failure channel.
func WithIngestionNotifier(notifier FailureNotifier) IngestionOption {
	return func(j *IngestionJob) { j.notifier = notifier }
}

// WithIngestionClock overrides the clock.
func WithIngestionClock(clock Clock) IngestionOption {
	return func(j *IngestionJob) {
		if clock != nil {
			j.clock = clock
		}
	}
}

// NewIngestionJob constructs the job.
func NewIngestionJob(
	paymentRepo payments.Repository,
	store SettlementBatchWriter,
	feeCalc FeeCalculator,
	loc *time.Location,
	gridSize, chunkSize int,
	metrics Metrics,
	logger *log.Logger,
	opts ...IngestionOption,
) (*IngestionJob, error) {
	if paymentRepo == nil {
		return nil, errors.New("ingestion job: nil payment repository")
	}
	if store == nil {
		return nil, errors.New("ingestion job: nil settlement writer")
	}
	if feeCalc == nil {
		return nil, errors.New("ingestion job: nil fee calculator")
	}
	if loc == nil {
		loc = time.UTC
	}
	if gridSize <= 0 {
		gridSize = 4
	}
	if chunkSize <= 0 {
		chunkSize = 2000
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}

	job := &IngestionJob{
		payments:  paymentRepo,
		store:     store,
		fees:      feeCalc,
		loc:       loc,
		gridSize:  gridSize,
		chunkSize: chunkSize,
		metrics:   metrics,
		logger:    logger,
		clock:     SystemClock{},
	}
	for _, opt := range opts {
		opt(job)
	}
	return job, nil
}

// Run executes one full ingestion pass. An empty eligible range is a
// no-op, not an error.
func (j *IngestionJob) Run(ctx context.Context) (IngestionResult, error) {
	start := j.clock.Now()

	bounds, err := j.payments.UnsettledIDRange(ctx)
	if err != nil {
		return IngestionResult{}, fmt.Errorf("ingestion job: id range: %w", err)
	}
	partitions := PartitionRange(bounds, j.gridSize)
	if len(partitions) == 0 {
		return IngestionResult{}, nil
	}

	results := make([]IngestionResult, len(partitions))
	var wg sync.WaitGroup
	for i, partition := range partitions {
		wg.Add(1)
		go func(i int, partition Partition) {
			defer wg.Done()
			results[i] = j.runPartition(ctx, partition)
		}(i, partition)
	}
	wg.Wait()

	var combined IngestionResult
	for _, result := range results {
		combined.Reads += result.Reads
		combined.Writes += result.Writes
		combined.FailedChunks += result.FailedChunks
		combined.ChunkErrors = append(combined.ChunkErrors, result.ChunkErrors...)
	}
	combined.Elapsed = j.clock.Now().Sub(start)

	j.metrics.ObserveIngestion(combined.Reads, combined.Writes, combined.FailedChunks, combined.Elapsed)
	if j.logger != nil {
		j.logger.Printf("ingestion run: partitions=%d reads=%d writes=%d failed_chunks=%d elapsed=%s",
			len(partitions), combined.Reads, combined.Writes, combined.FailedChunks, combined.Elapsed)
	}
	return combined, nil
}

// runPartition streams one partition in chunks. A failed chunk aborts
// only itself: nothing from it is committed and the worker moves on.
func (j *IngestionJob) runPartition(ctx context.Context, partition Partition) IngestionResult {
	var result IngestionResult

	afterID := partition.Lo - 1
	for {
		if ctx.Err() != nil {
			result.ChunkErrors = append(result.ChunkErrors, ctx.Err())
			return result
		}

		batch, err := j.payments.ListUnsettledInRange(ctx, partition.Lo, partition.Hi, afterID, j.chunkSize)
		if err != nil {
			result.FailedChunks++
			result.ChunkErrors = append(result.ChunkErrors, err)
			j.notifyFailure(ctx, partition, err)
			return result
		}
		if len(batch) == 0 {
			return result
		}

		result.Reads += int64(len(batch))
		afterID = batch[len(batch)-1].ID

		rows, paymentIDs, err := j.buildChunk(ctx, batch)
		if err == nil {
			err = j.store.InsertBatchAndMarkSettled(ctx, rows, paymentIDs, j.clock.Now())
		}
		if err != nil {
			result.FailedChunks++
			result.ChunkErrors = append(result.ChunkErrors, err)
			j.notifyFailure(ctx, partition, err)
			continue
		}
		result.Writes += int64(len(rows))

		if len(batch) < j.chunkSize {
			return result
		}
	}
}

// buildChunk computes the settlement rows for one chunk of payments.
// Any single row failing poisons the whole chunk.
func (j *IngestionJob) buildChunk(ctx context.Context, batch []payments.Payment) ([]*settlement.TransactionSettlement, []int64, error) {
	rows := make([]*settlement.TransactionSettlement, 0, len(batch))
	paymentIDs := make([]int64, 0, len(batch))

	for _, payment := range batch {
		for _, item := range payment.LineItems {
			fee, err := j.fees.Calculate(ctx, payment.Provider, payment.Method, item.Amount, payment.ApprovedAt)
			if err != nil {
				return nil, nil, fmt.Errorf("ingestion job: fee for payment %d brand %d: %w", payment.ID, item.BrandID, err)
			}
			commission, err := fees.Commission(item.Amount, item.CommissionRate)
			if err != nil {
				return nil, nil, fmt.Errorf("ingestion job: commission for payment %d: %w", payment.ID, err)
			}
			tax, err := fees.TaxOnCommission(commission)
			if err != nil {
				return nil, nil, fmt.Errorf("ingestion job: tax for payment %d: %w", payment.ID, err)
			}

			row, err := settlement.NewTransactionSettlement(
				item.BrandID, payment.ID, payment.PGTransactionID,
				transactionTypeFor(item.Type),
				item.Amount, item.CommissionRate,
				commission, tax, fee,
				payment.ApprovedAt, j.loc,
			)
			if err != nil {
				return nil, nil, fmt.Errorf("ingestion job: row for payment %d: %w", payment.ID, err)
			}
			rows = append(rows, row)
		}
		paymentIDs = append(paymentIDs, payment.ID)
	}
	return rows, paymentIDs, nil
}

func (j *IngestionJob) notifyFailure(ctx context.Context, partition Partition, err error) {
	if j.logger != nil {
		j.logger.Printf("ingestion chunk failed: partition=[%d,%d] err=%v", partition.Lo, partition.Hi, err)
	}
	if j.notifier != nil {
		j.notifier.NotifyChunkFailure(ctx, partition, err)
	}
}

func transactionTypeFor(itemType payments.LineItemType) settlement.TransactionType {
	if itemType == payments.LineItemRefund {
		return settlement.TransactionRefund
	}
	return settlement.TransactionOrder
}
