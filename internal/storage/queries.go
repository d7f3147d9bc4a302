package storage

import (
	"context"
	"database/sql"
)

// Queries holds the raw SQL statements behind the repository. Row types
// mirror the table shapes; domain conversion happens one level up.
type Queries struct {
	db *sql.DB
}

func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}

type paymentSourceRow struct {
	ID         string
	Name       string
	Type       string
	Identifier string
}

type recurringPaymentRow struct {
	ID          string
	Name        string
	AmountCents int64
	Currency    string
	Frequency   string
	SourceID    string
	StartDate   string
	Category    string
}

const createPaymentSource = `
INSERT INTO payment_sources (id, name, type, identifier)
VALUES (?, ?, ?, ?)
`

func (q *Queries) CreatePaymentSource(ctx context.Context, row paymentSourceRow) error {
	_, err := q.db.ExecContext(ctx, createPaymentSource, row.ID, row.Name, row.Type, row.Identifier)
	return err
}

const getPaymentSource = `
SELECT id, name, type, identifier FROM payment_sources WHERE id = ?
`

func (q *Queries) GetPaymentSource(ctx context.Context, id string) (paymentSourceRow, error) {
	var row paymentSourceRow
	err := q.db.QueryRowContext(ctx, getPaymentSource, id).
		Scan(&row.ID, &row.Name, &row.Type, &row.Identifier)
	return row, err
}

const listPaymentSources = `
SELECT id, name, type, identifier FROM payment_sources ORDER BY created_at, id
`

func (q *Queries) ListPaymentSources(ctx context.Context) ([]paymentSourceRow, error) {
	rows, err := q.db.QueryContext(ctx, listPaymentSources)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []paymentSourceRow
	for rows.Next() {
		var row paymentSourceRow
		if err := rows.Scan(&row.ID, &row.Name, &row.Type, &row.Identifier); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const updatePaymentSource = `
UPDATE payment_sources
SET name = ?, type = ?, identifier = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`

func (q *Queries) UpdatePaymentSource(ctx context.Context, row paymentSourceRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updatePaymentSource, row.Name, row.Type, row.Identifier, row.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deletePaymentSource = `
DELETE FROM payment_sources WHERE id = ?
`

func (q *Queries) DeletePaymentSource(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deletePaymentSource, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countPaymentsBySource = `
SELECT COUNT(*) FROM recurring_payments WHERE source_id = ?
`

func (q *Queries) CountPaymentsBySource(ctx context.Context, sourceID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countPaymentsBySource, sourceID).Scan(&n)
	return n, err
}

const createRecurringPayment = `
INSERT INTO recurring_payments (id, name, amount_cents, currency, frequency, source_id, start_date, category)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateRecurringPayment(ctx context.Context, row recurringPaymentRow) error {
	_, err := q.db.ExecContext(ctx, createRecurringPayment,
		row.ID, row.Name, row.AmountCents, row.Currency,
		row.Frequency, row.SourceID, row.StartDate, row.Category)
	return err
}

const getRecurringPayment = `
SELECT id, name, amount_cents, currency, frequency, source_id, start_date, category
FROM recurring_payments WHERE id = ?
`

func (q *Queries) GetRecurringPayment(ctx context.Context, id string) (recurringPaymentRow, error) {
	var row recurringPaymentRow
	err := q.db.QueryRowContext(ctx, getRecurringPayment, id).
		Scan(&row.ID, &row.Name, &row.AmountCents, &row.Currency,
			&row.Frequency, &row.SourceID, &row.StartDate, &row.Category)
	return row, err
}

const listRecurringPayments = `
SELECT id, name, amount_cents, currency, frequency, source_id, start_date, category
FROM recurring_payments ORDER BY created_at, id
`

func (q *Queries) ListRecurringPayments(ctx context.Context) ([]recurringPaymentRow, error) {
	rows, err := q.db.QueryContext(ctx, listRecurringPayments)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []recurringPaymentRow
	for rows.Next() {
		var row recurringPaymentRow
		if err := rows.Scan(&row.ID, &row.Name, &row.AmountCents, &row.Currency,
			&row.Frequency, &row.SourceID, &row.StartDate, &row.Category); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const updateRecurringPayment = `
UPDATE recurring_payments
SET name = ?, amount_cents = ?, currency = ?, frequency = ?, source_id = ?,
    start_date = ?, category = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`

func (q *Queries) UpdateRecurringPayment(ctx context.Context, row recurringPaymentRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateRecurringPayment,
		row.Name, row.AmountCents, row.Currency, row.Frequency,
		row.SourceID, row.StartDate, row.Category, row.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteRecurringPayment = `
DELETE FROM recurring_payments WHERE id = ?
`

func (q *Queries) DeleteRecurringPayment(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteRecurringPayment, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getSetting = `
SELECT value FROM settings WHERE key = ?
`

func (q *Queries) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := q.db.QueryRowContext(ctx, getSetting, key).Scan(&value)
	return value, err
}

const upsertSetting = `
INSERT INTO settings (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value
`

func (q *Queries) SetSetting(ctx context.Context, key, value string) error {
	_, err := q.db.ExecContext(ctx, upsertSetting, key, value)
	return err
}
