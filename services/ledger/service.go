// Package ledger owns the local transaction store. It enforces the
// record identity and mutation rules: one row per (account, external
// id), immutable fields never change after first insert, and status
// only moves forward from pending to posted.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"bankfeed/lib/banks"
	"bankfeed/services/ledger/db"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/ledger")

type Service struct {
	db  *sql.DB
	qry *db.Queries
	// sqlite admits one writer at a time; account pipelines run
	// concurrently, so their commits queue here
	write *sync.Mutex
}

func NewService(database *sql.DB) Service {
	return Service{
		db:    database,
		qry:   db.New(database),
		write: &sync.Mutex{},
	}
}

// UpsertResult reports what one batch did to the store.
type UpsertResult struct {
	Inserted int
	Updated  int
}

// Upsert writes a batch of normalized transactions in one database
// transaction. Re-importing the same data is a no-op. A record whose
// immutable fields (amount, posted date) disagree with the stored row
// aborts the whole batch, that means the derived identity is broken
// for this institution and silently overwriting would corrupt history.
func (s Service) Upsert(ctx context.Context, institution banks.Institution, txns []banks.Transaction) (UpsertResult, error) {
	ctx, span := tracer.Start(ctx, "Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("institution", string(institution)),
		attribute.Int("count", len(txns)),
	)

	var result UpsertResult

	s.write.Lock()
	defer s.write.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		serr := &banks.StorageError{Cause: err}
		span.RecordError(serr)
		span.SetStatus(codes.Error, serr.Error())
		return result, serr
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	now := time.Now().Unix()
	for _, t := range txns {
		existing, err := txqry.GetTransaction(ctx, db.GetTransactionParams{
			AccountID:  t.AccountID,
			ExternalID: t.ExternalID,
		})
		if errors.Is(err, sql.ErrNoRows) {
			err := txqry.CreateTransaction(ctx, db.CreateTransactionParams{
				Institution:   string(institution),
				AccountID:     t.AccountID,
				ExternalID:    t.ExternalID,
				PostedDate:    banks.DateKey(t.PostedDate),
				Amount:        t.Amount.String(),
				CurrencyCode:  t.Currency,
				Description:   t.Description,
				Category:      t.Category,
				Status:        string(t.Status),
				FirstSeenAt:   now,
				LastUpdatedAt: now,
			})
			if err != nil {
				serr := &banks.StorageError{Cause: err}
				span.RecordError(serr)
				span.SetStatus(codes.Error, serr.Error())
				return UpsertResult{}, serr
			}
			result.Inserted++
			continue
		}
		if err != nil {
			serr := &banks.StorageError{Cause: err}
			span.RecordError(serr)
			span.SetStatus(codes.Error, serr.Error())
			return UpsertResult{}, serr
		}

		if existing.Amount != t.Amount.String() || existing.PostedDate != banks.DateKey(t.PostedDate) {
			perr := &banks.ParseError{
				Institution: institution,
				Fragment:    fmt.Sprintf("account=%s external_id=%s", t.AccountID, t.ExternalID),
				Cause: fmt.Errorf(
					"immutable field drift: stored %s on %s, incoming %s on %s",
					existing.Amount, existing.PostedDate,
					t.Amount.String(), banks.DateKey(t.PostedDate),
				),
			}
			span.RecordError(perr)
			span.SetStatus(codes.Error, perr.Error())
			return UpsertResult{}, perr
		}

		status := existing.Status
		// posted is terminal
		if existing.Status == string(banks.Pending) && t.Status == banks.Posted {
			status = string(banks.Posted)
		}
		if existing.Description == t.Description &&
			existing.Category == t.Category &&
			existing.Status == status {
			continue
		}
		err = txqry.UpdateTransactionMutable(ctx, db.UpdateTransactionMutableParams{
			Description:   t.Description,
			Category:      t.Category,
			Status:        status,
			LastUpdatedAt: now,
			AccountID:     t.AccountID,
			ExternalID:    t.ExternalID,
		})
		if err != nil {
			serr := &banks.StorageError{Cause: err}
			span.RecordError(serr)
			span.SetStatus(codes.Error, serr.Error())
			return UpsertResult{}, serr
		}
		result.Updated++
	}

	if err := tx.Commit(); err != nil {
		serr := &banks.StorageError{Cause: err}
		span.RecordError(serr)
		span.SetStatus(codes.Error, serr.Error())
		return UpsertResult{}, serr
	}
	return result, nil
}

// RecordBalance appends a balance snapshot. Snapshots are append-only,
// history is the point of keeping them.
func (s Service) RecordBalance(ctx context.Context, institution banks.Institution, accountID string, balance decimal.Decimal) error {
	ctx, span := tracer.Start(ctx, "RecordBalance")
	defer span.End()

	s.write.Lock()
	defer s.write.Unlock()

	err := s.qry.CreateBalanceSnapshot(ctx, db.CreateBalanceSnapshotParams{
		Institution: string(institution),
		AccountID:   accountID,
		Balance:     balance.String(),
		CapturedAt:  time.Now().Unix(),
	})
	if err != nil {
		serr := &banks.StorageError{Cause: err}
		span.RecordError(serr)
		span.SetStatus(codes.Error, serr.Error())
		return serr
	}
	return nil
}

// Transactions returns an account's stored history, newest first, in
// the canonical model.
func (s Service) Transactions(ctx context.Context, accountID string) ([]banks.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Transactions")
	defer span.End()

	rows, err := s.qry.ListTransactionsByAccount(ctx, accountID)
	if err != nil {
		serr := &banks.StorageError{Cause: err}
		span.RecordError(serr)
		span.SetStatus(codes.Error, serr.Error())
		return nil, serr
	}
	return fromRows(rows)
}

// AllTransactions returns everything in the store, newest first.
func (s Service) AllTransactions(ctx context.Context) ([]banks.Transaction, error) {
	ctx, span := tracer.Start(ctx, "AllTransactions")
	defer span.End()

	rows, err := s.qry.ListTransactions(ctx)
	if err != nil {
		serr := &banks.StorageError{Cause: err}
		span.RecordError(serr)
		span.SetStatus(codes.Error, serr.Error())
		return nil, serr
	}
	return fromRows(rows)
}

// Balance reports the latest recorded balance snapshot for an account.
// A never-snapshotted account reports ok=false, not an error.
func (s Service) Balance(ctx context.Context, accountID string) (balance decimal.Decimal, capturedAt time.Time, ok bool, err error) {
	ctx, span := tracer.Start(ctx, "Balance")
	defer span.End()

	row, err := s.qry.GetLatestBalanceSnapshot(ctx, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Decimal{}, time.Time{}, false, nil
	}
	if err != nil {
		serr := &banks.StorageError{Cause: err}
		span.RecordError(serr)
		span.SetStatus(codes.Error, serr.Error())
		return decimal.Decimal{}, time.Time{}, false, serr
	}
	parsed, err := decimal.NewFromString(row.Balance)
	if err != nil {
		serr := &banks.StorageError{Cause: err}
		span.RecordError(serr)
		span.SetStatus(codes.Error, serr.Error())
		return decimal.Decimal{}, time.Time{}, false, serr
	}
	return parsed, time.Unix(row.CapturedAt, 0), true, nil
}

func fromRows(rows []db.Transaction) ([]banks.Transaction, error) {
	out := make([]banks.Transaction, 0, len(rows))
	for _, row := range rows {
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, &banks.StorageError{Cause: err}
		}
		date, err := banks.ParseDate("2006-01-02", row.PostedDate)
		if err != nil {
			return nil, &banks.StorageError{Cause: err}
		}
		out = append(out, banks.Transaction{
			AccountID:   row.AccountID,
			ExternalID:  row.ExternalID,
			PostedDate:  date,
			Amount:      amount,
			Currency:    row.CurrencyCode,
			Description: row.Description,
			Category:    row.Category,
			Status:      banks.Status(row.Status),
		})
	}
	return out, nil
}
