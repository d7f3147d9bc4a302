package core

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

const (
	Weekly         Frequency = "weekly"
	Monthly        Frequency = "monthly"
	EveryFourWeeks Frequency = "every_4_weeks"
	Yearly         Frequency = "yearly"
)

const (
	BankAccount SourceType = "bank_account"
	DebitCard   SourceType = "debit_card"
	CreditCard  SourceType = "credit_card"
)

// DefaultCategory is assigned to payments created without a category.
const DefaultCategory = "Uncategorized"

type (
	Frequency  string
	SourceType string

	// Date is a calendar date with no meaningful time component.
	// All dates are normalized to midnight UTC.
	Date struct {
		time.Time
	}

	// RecurringPayment is a subscription-style payment that recurs from
	// StartDate at the given Frequency. StartDate anchors all recurrence
	// math: no occurrence exists strictly before it.
	RecurringPayment struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Amount    Money     `json:"amount"`
		Frequency Frequency `json:"frequency"`
		SourceID  string    `json:"payment_source_id"`
		StartDate Date      `json:"start_date"`
		Category  string    `json:"category"`
	}

	// PaymentSource is the account or card a recurring payment draws from.
	PaymentSource struct {
		ID         string     `json:"id"`
		Name       string     `json:"name"`
		Type       SourceType `json:"type"`
		Identifier string     `json:"identifier"` // last 4 digits
	}

	// Occurrence is one concrete calendar-date instance of a recurring
	// payment. Derived, never persisted; Source is nil when the referenced
	// payment source no longer exists.
	Occurrence struct {
		Date    Date             `json:"date"`
		Payment RecurringPayment `json:"payment"`
		Source  *PaymentSource   `json:"payment_source,omitempty"`
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrEmptyName         = errors.New("empty name")
	ErrInvalidFrequency  = errors.New("invalid frequency")
	ErrInvalidStartDate  = errors.New("invalid start date")
	ErrMissingSource     = errors.New("missing payment source reference")
	ErrInvalidSourceType = errors.New("invalid payment source type")
	ErrInvalidIdentifier = errors.New("identifier must be exactly 4 digits")
	ErrInvalidCurrency   = errors.New("invalid currency code")
)

// NewDate creates a Date from year, month, day at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a "YYYY-MM-DD" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t.UTC()}, nil
}

// DateOf truncates a time.Time to its calendar date in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.UTC().Year(), int(t.UTC().Month()), t.UTC().Day())
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as 1-12.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year.
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) String() string {
	return d.Time.Format("2006-01-02")
}

// DaysUntil returns the number of whole days from d to other.
// Negative when other is before d.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time).Hours() / 24)
}

// MarshalJSON renders the date as "YYYY-MM-DD"; zero dates render as null
// so blank calendar cells serialize naturally.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts "YYYY-MM-DD" or null.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return err
	}
	d.Time = t.UTC()
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidStartDate
	}
	return nil
}

func (f Frequency) Valid() bool {
	switch f {
	case Weekly, Monthly, EveryFourWeeks, Yearly:
		return true
	}
	return false
}

func (t SourceType) Valid() bool {
	switch t {
	case BankAccount, DebitCard, CreditCard:
		return true
	}
	return false
}

func (p RecurringPayment) Validate() error {
	if len(strings.TrimSpace(p.Name)) == 0 {
		return ErrEmptyName
	}
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if !p.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if strings.TrimSpace(p.SourceID) == "" {
		return ErrMissingSource
	}
	if err := p.StartDate.Validate(); err != nil {
		return err
	}
	return nil
}

// CategoryOrDefault returns the payment category, falling back to
// DefaultCategory when none was recorded.
func (p RecurringPayment) CategoryOrDefault() string {
	if strings.TrimSpace(p.Category) == "" {
		return DefaultCategory
	}
	return p.Category
}

func (s PaymentSource) Validate() error {
	if len(strings.TrimSpace(s.Name)) == 0 {
		return ErrEmptyName
	}
	if !s.Type.Valid() {
		return ErrInvalidSourceType
	}
	if len(s.Identifier) != 4 {
		return ErrInvalidIdentifier
	}
	for _, r := range s.Identifier {
		if !unicode.IsDigit(r) {
			return ErrInvalidIdentifier
		}
	}
	return nil
}

// SourceIndex provides lookup of payment sources by ID for occurrence
// resolution. A missing ID is an expected condition, not an error.
type SourceIndex map[string]PaymentSource

// BuildSourceIndex indexes sources by ID. Later duplicates win.
func BuildSourceIndex(sources []PaymentSource) SourceIndex {
	idx := make(SourceIndex, len(sources))
	for _, s := range sources {
		idx[s.ID] = s
	}
	return idx
}

// Lookup returns the source for id, reporting whether it exists.
func (idx SourceIndex) Lookup(id string) (PaymentSource, bool) {
	s, ok := idx[id]
	return s, ok
}
