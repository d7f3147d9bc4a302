// Package storage persists payment sources, recurring payments and user
// settings in sqlite, behind embedded migrations.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/shadowlanes/recr-monkey/internal/core"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrSourceInUse rejects deletion of a payment source still
	// referenced by recurring payments. Enforced here, before the
	// database, so callers get a user-facing error instead of a
	// constraint failure.
	ErrSourceInUse = errors.New("payment source is referenced by recurring payments")
)

const displayCurrencyKey = "display_currency"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db)}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateSource stores a new payment source, assigning its ID.
func (r *SQLiteRepository) CreateSource(ctx context.Context, s core.PaymentSource) (core.PaymentSource, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	err := r.queries.CreatePaymentSource(ctx, paymentSourceRow{
		ID:         s.ID,
		Name:       s.Name,
		Type:       string(s.Type),
		Identifier: s.Identifier,
	})
	if err != nil {
		return core.PaymentSource{}, fmt.Errorf("create payment source: %w", err)
	}

	slog.InfoContext(ctx, "Payment source saved",
		"id", s.ID,
		"name", s.Name,
		"type", s.Type)
	return s, nil
}

// GetSource loads one payment source by ID.
func (r *SQLiteRepository) GetSource(ctx context.Context, id string) (core.PaymentSource, error) {
	row, err := r.queries.GetPaymentSource(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.PaymentSource{}, ErrNotFound
	}
	if err != nil {
		return core.PaymentSource{}, fmt.Errorf("get payment source: %w", err)
	}
	return sourceFromRow(row), nil
}

// ListSources returns every payment source in creation order.
func (r *SQLiteRepository) ListSources(ctx context.Context) ([]core.PaymentSource, error) {
	rows, err := r.queries.ListPaymentSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payment sources: %w", err)
	}
	out := make([]core.PaymentSource, len(rows))
	for i, row := range rows {
		out[i] = sourceFromRow(row)
	}
	return out, nil
}

// UpdateSource replaces a source's mutable fields wholesale.
func (r *SQLiteRepository) UpdateSource(ctx context.Context, s core.PaymentSource) error {
	n, err := r.queries.UpdatePaymentSource(ctx, paymentSourceRow{
		ID:         s.ID,
		Name:       s.Name,
		Type:       string(s.Type),
		Identifier: s.Identifier,
	})
	if err != nil {
		return fmt.Errorf("update payment source: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SourceInUse reports whether any recurring payment references the source.
func (r *SQLiteRepository) SourceInUse(ctx context.Context, id string) (bool, error) {
	n, err := r.queries.CountPaymentsBySource(ctx, id)
	if err != nil {
		return false, fmt.Errorf("count payments by source: %w", err)
	}
	return n > 0, nil
}

// DeleteSource removes a payment source unless a recurring payment still
// references it.
func (r *SQLiteRepository) DeleteSource(ctx context.Context, id string) error {
	inUse, err := r.SourceInUse(ctx, id)
	if err != nil {
		return err
	}
	if inUse {
		return ErrSourceInUse
	}

	n, err := r.queries.DeletePaymentSource(ctx, id)
	if err != nil {
		return fmt.Errorf("delete payment source: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Payment source deleted", "id", id)
	return nil
}

// CreatePayment stores a new recurring payment, assigning its ID and
// defaulting an empty category.
func (r *SQLiteRepository) CreatePayment(ctx context.Context, p core.RecurringPayment) (core.RecurringPayment, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Category = p.CategoryOrDefault()

	err := r.queries.CreateRecurringPayment(ctx, paymentToRow(p))
	if err != nil {
		return core.RecurringPayment{}, fmt.Errorf("create recurring payment: %w", err)
	}

	slog.InfoContext(ctx, "Recurring payment saved",
		"id", p.ID,
		"name", p.Name,
		"amount_cents", p.Amount.Cents,
		"currency", p.Amount.Currency,
		"frequency", p.Frequency,
		"start_date", p.StartDate.String())
	return p, nil
}

// GetPayment loads one recurring payment by ID.
func (r *SQLiteRepository) GetPayment(ctx context.Context, id string) (core.RecurringPayment, error) {
	row, err := r.queries.GetRecurringPayment(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringPayment{}, ErrNotFound
	}
	if err != nil {
		return core.RecurringPayment{}, fmt.Errorf("get recurring payment: %w", err)
	}
	return paymentFromRow(row)
}

// ListPayments returns every recurring payment in creation order.
func (r *SQLiteRepository) ListPayments(ctx context.Context) ([]core.RecurringPayment, error) {
	rows, err := r.queries.ListRecurringPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recurring payments: %w", err)
	}
	out := make([]core.RecurringPayment, 0, len(rows))
	for _, row := range rows {
		p, err := paymentFromRow(row)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable recurring payment row",
				"id", row.ID, "error", err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// UpdatePayment replaces a payment's fields wholesale.
func (r *SQLiteRepository) UpdatePayment(ctx context.Context, p core.RecurringPayment) error {
	p.Category = p.CategoryOrDefault()
	n, err := r.queries.UpdateRecurringPayment(ctx, paymentToRow(p))
	if err != nil {
		return fmt.Errorf("update recurring payment: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePayment removes a recurring payment.
func (r *SQLiteRepository) DeletePayment(ctx context.Context, id string) error {
	n, err := r.queries.DeleteRecurringPayment(ctx, id)
	if err != nil {
		return fmt.Errorf("delete recurring payment: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	slog.InfoContext(ctx, "Recurring payment deleted", "id", id)
	return nil
}

// DisplayCurrency reads the persisted display-currency preference,
// defaulting to USD when unset.
func (r *SQLiteRepository) DisplayCurrency(ctx context.Context) (string, error) {
	value, err := r.queries.GetSetting(ctx, displayCurrencyKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "USD", nil
	}
	if err != nil {
		return "", fmt.Errorf("get display currency: %w", err)
	}
	return value, nil
}

// SetDisplayCurrency persists the display-currency preference.
func (r *SQLiteRepository) SetDisplayCurrency(ctx context.Context, code string) error {
	if err := r.queries.SetSetting(ctx, displayCurrencyKey, code); err != nil {
		return fmt.Errorf("set display currency: %w", err)
	}
	slog.InfoContext(ctx, "Display currency updated", "currency", code)
	return nil
}

func sourceFromRow(row paymentSourceRow) core.PaymentSource {
	return core.PaymentSource{
		ID:         row.ID,
		Name:       row.Name,
		Type:       core.SourceType(row.Type),
		Identifier: row.Identifier,
	}
}

func paymentToRow(p core.RecurringPayment) recurringPaymentRow {
	return recurringPaymentRow{
		ID:          p.ID,
		Name:        p.Name,
		AmountCents: p.Amount.Cents,
		Currency:    p.Amount.Currency,
		Frequency:   string(p.Frequency),
		SourceID:    p.SourceID,
		StartDate:   p.StartDate.String(),
		Category:    p.Category,
	}
}

func paymentFromRow(row recurringPaymentRow) (core.RecurringPayment, error) {
	start, err := core.ParseDate(row.StartDate)
	if err != nil {
		return core.RecurringPayment{}, fmt.Errorf("parse start date %q: %w", row.StartDate, err)
	}
	return core.RecurringPayment{
		ID:        row.ID,
		Name:      row.Name,
		Amount:    core.Money{Cents: row.AmountCents, Currency: row.Currency},
		Frequency: core.Frequency(row.Frequency),
		SourceID:  row.SourceID,
		StartDate: start,
		Category:  row.Category,
	}, nil
}
