// Package core holds the domain types shared by the generation and mirror
// workers.
package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

const (
	Expense TemplateKind = "expense"
	Income  TemplateKind = "income"
)

type (
	// Frequency is how often a recurring template stamps out an instance.
	Frequency string

	// TemplateKind selects the instance shape: expense templates carry an
	// expense type, income templates carry a free-text source.
	TemplateKind string

	// Date is a calendar day pinned to UTC midnight. The zero value means
	// "absent" (open-ended end date, never-generated bookmark).
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// RecurringTemplate is the rule from which dated instances are stamped.
	RecurringTemplate struct {
		ID          int64
		OwnerID     int64
		Kind        TemplateKind
		Description string
		Amount      Money

		// Split metadata (expense templates only). OriginalAmount is the
		// pre-split face value, SplitWith the free-text counterpart.
		IsSplit        bool
		OriginalAmount Money
		SplitWith      string

		ExpenseType  string // categorization for expense templates
		IncomeSource string // free text for income templates

		Frequency Frequency
		StartDate Date
		EndDate   Date // inclusive bound; zero = open-ended

		// Generation bookmark. LastGenerated tracks the date of the most
		// recent generated instance; a bulk edit that deletes future
		// instances rewinds it. NextGeneration is an advisory pre-filter
		// hint, never the authority.
		LastGenerated  Date
		NextGeneration Date

		IsActive bool
	}

	// TransactionInstance is a single dated ledger entry, independent of its
	// template once created. TemplateID 0 means freestanding.
	TransactionInstance struct {
		ID          int64
		OwnerID     int64
		Kind        TemplateKind
		Description string
		Amount      Money
		Date        Date

		IsSplit        bool
		OriginalAmount Money
		SplitWith      string

		ExpenseType  string
		IncomeSource string

		TemplateID  int64
		IsGenerated bool
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidKind      = errors.New("invalid template kind")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyExpenseType = errors.New("empty expense type")
	ErrEmptySource      = errors.New("empty income source")
)

// Validate reports whether f is one of the supported frequencies.
func (f Frequency) Validate() error {
	switch f {
	case Weekly, Biweekly, Monthly, Quarterly, Yearly:
		return nil
	default:
		return ErrInvalidFrequency
	}
}

func (k TemplateKind) Validate() error {
	switch k {
	case Expense, Income:
		return nil
	default:
		return ErrInvalidKind
	}
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), int(u.Month()), u.Day())
}

// ParseDate parses a 2006-01-02 string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// String renders the date as 2006-01-02; empty for the zero value.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// After reports whether d falls on a later calendar day than other.
func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

// Before reports whether d falls on an earlier calendar day than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// Equal reports whether d and other are the same calendar day.
func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t RecurringTemplate) Validate() error {
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if err := t.Frequency.Validate(); err != nil {
		return err
	}
	if t.StartDate.IsZero() {
		return errors.New("start date cannot be zero")
	}
	if !t.EndDate.IsZero() && t.EndDate.Before(t.StartDate) {
		return errors.New("end date must not precede start date")
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	switch t.Kind {
	case Expense:
		if strings.TrimSpace(t.ExpenseType) == "" {
			return ErrEmptyExpenseType
		}
	case Income:
		if strings.TrimSpace(t.IncomeSource) == "" {
			return ErrEmptySource
		}
	}
	if t.IsSplit {
		if t.Kind != Expense {
			return errors.New("only expense templates can be split")
		}
		if err := t.OriginalAmount.Validate(); err != nil {
			return errors.New("invalid original amount for split template")
		}
		if t.OriginalAmount.Cents < t.Amount.Cents {
			return errors.New("original amount must not be less than the split amount")
		}
	}
	return nil
}

func (i TransactionInstance) Validate() error {
	if err := i.Kind.Validate(); err != nil {
		return err
	}
	if i.Date.IsZero() {
		return errors.New("date cannot be zero")
	}
	if err := i.Amount.Validate(); err != nil {
		return err
	}
	if i.IsGenerated && i.TemplateID == 0 {
		return errors.New("generated instance must reference its template")
	}
	return nil
}

// InstanceFromTemplate stamps a concrete instance for the given date,
// carrying the template's amount, description, categorization and split
// metadata, tagged as machine-generated.
func InstanceFromTemplate(t RecurringTemplate, date Date) TransactionInstance {
	return TransactionInstance{
		OwnerID:        t.OwnerID,
		Kind:           t.Kind,
		Description:    t.Description,
		Amount:         t.Amount,
		Date:           date,
		IsSplit:        t.IsSplit,
		OriginalAmount: t.OriginalAmount,
		SplitWith:      t.SplitWith,
		ExpenseType:    t.ExpenseType,
		IncomeSource:   t.IncomeSource,
		TemplateID:     t.ID,
		IsGenerated:    true,
	}
}
