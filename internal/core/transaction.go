package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Deposit  TransactionType = "deposit"
	Withdraw TransactionType = "withdraw"
)

const (
	CategoryUnset   Category = ""
	CategoryNormal  Category = "normal"
	CategoryFreeBet Category = "freebet"
	CategorySurebet Category = "surebet"
)

// Legacy description prefixes used to tag transactions before the explicit
// category field existed. Matching is case-sensitive.
const (
	FreeBetPrefix = "FreeBet"
	SurebetPrefix = "Surebet"
)

// DateLayout is the only accepted transaction date format.
const DateLayout = "2006-01-02"

type (
	TransactionType string

	Category string

	Transaction struct {
		ID          string          `json:"id,omitempty"`
		UserID      string          `json:"user_id,omitempty"`
		Type        TransactionType `json:"type"`
		Amount      Money           `json:"amount"`
		Description string          `json:"description,omitempty"`
		Date        string          `json:"date,omitempty"` // YYYY-MM-DD, compared as a string
		Category    Category        `json:"category,omitempty"`
		EmployeeID  string          `json:"employee_id,omitempty"`
		PlatformID  string          `json:"platform_id,omitempty"`
		CreatedAt   time.Time       `json:"created_at"`
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidDate        = errors.New("invalid date")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrEmptyUser          = errors.New("empty user id")
	ErrNotFound           = errors.New("not found")
)

func (t TransactionType) IsValid() bool {
	return t == Deposit || t == Withdraw
}

func (c Category) IsValid() bool {
	switch c {
	case CategoryUnset, CategoryNormal, CategoryFreeBet, CategorySurebet:
		return true
	default:
		return false
	}
}

// ClassifyDescription derives a category from the legacy description prefix.
func ClassifyDescription(desc string) Category {
	switch {
	case strings.HasPrefix(desc, FreeBetPrefix):
		return CategoryFreeBet
	case strings.HasPrefix(desc, SurebetPrefix):
		return CategorySurebet
	default:
		return CategoryNormal
	}
}

// Kind returns the explicit category, falling back to the description prefix
// for transactions recorded without one.
func (t Transaction) Kind() Category {
	if t.Category != CategoryUnset {
		return t.Category
	}
	return ClassifyDescription(t.Description)
}

// Normalize pins the category so later edits to the description do not
// reclassify the transaction.
func (t Transaction) Normalize() Transaction {
	t.Description = strings.TrimSpace(t.Description)
	t.Date = strings.TrimSpace(t.Date)
	t.Category = t.Kind()
	return t
}

// Validate checks a transaction on the write path. Aggregation never calls it.
func (t Transaction) Validate() error {
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	if !t.Category.IsValid() {
		return ErrInvalidCategory
	}
	if t.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	if utf8.RuneCountInString(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	if t.Date != "" {
		if _, err := time.Parse(DateLayout, t.Date); err != nil {
			return ErrInvalidDate
		}
	}
	return nil
}
