package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"settlement-platform/internal/settlement/application"
)

// TierWriter applies the tier writes of one tick to one tier table
// inside the tick transaction. The four implementations trade
// round-trips against statement complexity; all produce the same
// table state.
type TierWriter interface {
	WriteTiers(ctx context.Context, tx *sql.Tx, table string, writes []application.TierWrite) error
}

const tierInsertColumns = `
	brand_id, period_key, period_start, period_end, week_of_month,
	settlement_number, timezone,
	order_count, sales_amount, commission_amount, tax_amount, pg_fee_amount,
	final_settlement_amount, status, aggregated_at, completed_at, confirmed_at`

// additiveConflict merges a delta row into an existing aggregate. The
// final amount is a linear combination of the totals, so adding deltas
// keeps it consistent.
const additiveConflict = `
ON CONFLICT (brand_id, period_key) DO UPDATE SET
	order_count = %[1]s.order_count + EXCLUDED.order_count,
	sales_amount = %[1]s.sales_amount + EXCLUDED.sales_amount,
	commission_amount = %[1]s.commission_amount + EXCLUDED.commission_amount,
	tax_amount = %[1]s.tax_amount + EXCLUDED.tax_amount,
	pg_fee_amount = %[1]s.pg_fee_amount + EXCLUDED.pg_fee_amount,
	final_settlement_amount = %[1]s.final_settlement_amount + EXCLUDED.final_settlement_amount,
	status = EXCLUDED.status,
	aggregated_at = EXCLUDED.aggregated_at,
	completed_at = EXCLUDED.completed_at`

// deltaArgs renders the insert arguments of one write carrying only the
// tick's delta, so the additive conflict clause never double-counts.
func deltaArgs(write application.TierWrite) []any {
	agg := write.Aggregate
	period := agg.Period()
	delta := write.Delta
	return []any{
		agg.BrandID(), period.Key(), period.Start(), period.End(), period.WeekOfMonth,
		agg.SettlementNumber(), agg.Timezone(),
		delta.OrderCount, delta.SalesAmount, delta.CommissionAmount, delta.TaxAmount, delta.PGFeeAmount,
		delta.FinalSettlementAmount(), agg.Status(),
		nullTime(agg.AggregatedAt()), nullTime(agg.CompletedAt()), nullTime(agg.ConfirmedAt()),
	}
}

// UpsertWriter issues one additive upsert per aggregate. The simplest
// strategy and the default.
type UpsertWriter struct{}

func (UpsertWriter) WriteTiers(ctx context.Context, tx *sql.Tx, table string, writes []application.TierWrite) error {
	query := fmt.Sprintf(`
INSERT INTO %s (`+tierInsertColumns+`
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`+additiveConflict,
		table, table)
	for _, write := range writes {
		if _, err := tx.ExecContext(ctx, query, deltaArgs(write)...); err != nil {
			return fmt.Errorf("upsert writer: %s: %w", write.Aggregate.SettlementNumber(), err)
		}
	}
	return nil
}

// BatchInsertWriter folds all writes into one multi-row additive
// upsert, one round-trip per tier table.
type BatchInsertWriter struct{}

func (BatchInsertWriter) WriteTiers(ctx context.Context, tx *sql.Tx, table string, writes []application.TierWrite) error {
	if len(writes) == 0 {
		return nil
	}

	const columnsPerRow = 17
	var values strings.Builder
	args := make([]any, 0, len(writes)*columnsPerRow)
	for i, write := range writes {
		if i > 0 {
			values.WriteByte(',')
		}
		values.WriteByte('(')
		for j := 0; j < columnsPerRow; j++ {
			if j > 0 {
				values.WriteByte(',')
			}
			fmt.Fprintf(&values, "$%d", i*columnsPerRow+j+1)
		}
		values.WriteByte(')')
		args = append(args, deltaArgs(write)...)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (`+tierInsertColumns+`
) VALUES `+values.String()+additiveConflict, table, table)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("batch insert writer: %w", err)
	}
	return nil
}

// PreparedBatchWriter prepares the upsert once per tick and executes
// it per aggregate, amortizing the parse cost of large ticks.
type PreparedBatchWriter struct{}

func (PreparedBatchWriter) WriteTiers(ctx context.Context, tx *sql.Tx, table string, writes []application.TierWrite) error {
	if len(writes) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (`+tierInsertColumns+`
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`+additiveConflict,
		table, table))
	if err != nil {
		return fmt.Errorf("prepared batch writer: prepare: %w", err)
	}
	defer stmt.Close()

	for _, write := range writes {
		if _, err := stmt.ExecContext(ctx, deltaArgs(write)...); err != nil {
			return fmt.Errorf("prepared batch writer: %s: %w", write.Aggregate.SettlementNumber(), err)
		}
	}
	return nil
}

// RawBulkWriter deletes the touched keys and bulk-inserts the merged
// aggregate snapshots with row triggers suspended. It writes full
// totals rather than deltas, so it must only run with a single
// aggregation writer.
type RawBulkWriter struct{}

func (RawBulkWriter) WriteTiers(ctx context.Context, tx *sql.Tx, table string, writes []application.TierWrite) (err error) {
	if len(writes) == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `SET LOCAL session_replication_role = replica`); err != nil {
		return fmt.Errorf("raw bulk writer: suspend triggers: %w", err)
	}
	// SET LOCAL reverts with the transaction, but restore eagerly so a
	// caller reusing the tx sees default behavior again.
	defer func() {
		if _, resetErr := tx.ExecContext(ctx, `SET LOCAL session_replication_role = DEFAULT`); resetErr != nil && err == nil {
			err = fmt.Errorf("raw bulk writer: restore triggers: %w", resetErr)
		}
	}()

	for _, write := range writes {
		agg := write.Aggregate
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE brand_id = $1 AND period_key = $2`, table),
			agg.BrandID(), agg.Period().Key()); err != nil {
			return fmt.Errorf("raw bulk writer: delete %s: %w", agg.SettlementNumber(), err)
		}
	}

	const columnsPerRow = 17
	var values strings.Builder
	args := make([]any, 0, len(writes)*columnsPerRow)
	for i, write := range writes {
		agg := write.Aggregate
		period := agg.Period()
		totals := agg.Totals()
		if i > 0 {
			values.WriteByte(',')
		}
		values.WriteByte('(')
		for j := 0; j < columnsPerRow; j++ {
			if j > 0 {
				values.WriteByte(',')
			}
			fmt.Fprintf(&values, "$%d", i*columnsPerRow+j+1)
		}
		values.WriteByte(')')
		args = append(args,
			agg.BrandID(), period.Key(), period.Start(), period.End(), period.WeekOfMonth,
			agg.SettlementNumber(), agg.Timezone(),
			totals.OrderCount, totals.SalesAmount, totals.CommissionAmount, totals.TaxAmount, totals.PGFeeAmount,
			agg.FinalSettlementAmount(), agg.Status(),
			nullTime(agg.AggregatedAt()), nullTime(agg.CompletedAt()), nullTime(agg.ConfirmedAt()),
		)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (`+tierInsertColumns+`
) VALUES `+values.String(), table)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("raw bulk writer: insert: %w", err)
	}
	return nil
}

// WriterByName resolves a strategy from configuration: upsert, batch,
// prepared or raw (bulk is accepted as an alias). An unknown name
// returns nil so the caller can reject it.
func WriterByName(name string) TierWriter {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "upsert":
		return UpsertWriter{}
	case "batch":
		return BatchInsertWriter{}
	case "prepared":
		return PreparedBatchWriter{}
	case "raw", "bulk":
		return RawBulkWriter{}
	default:
		return nil
	}
}
