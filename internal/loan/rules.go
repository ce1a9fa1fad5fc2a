// Package loan implements the borrowing-eligibility and loan-lifecycle rules:
// due-date bounds, status derivation and the one-way return transition.
//
// Every function here is pure. The current date is always an argument,
// obtained by the caller from an injected Clock.
package loan

import (
	"fmt"
	"strings"
	"time"
)

// Status is the derived state of a loan. It is never stored.
type Status string

// Loan statuses.
const (
	StatusActive   Status = "active"
	StatusOverdue  Status = "overdue"
	StatusReturned Status = "returned"
)

// BorrowRequest asks to borrow BookID until DueDate.
type BorrowRequest struct {
	BookID  string
	DueDate Date
}

// ValidatedBorrowRequest is a BorrowRequest that passed every rule. It can
// only be produced by ValidateBorrowRequest.
type ValidatedBorrowRequest struct {
	bookID  string
	dueDate Date
}

// BookID returns the requested catalog item.
func (v ValidatedBorrowRequest) BookID() string { return v.bookID }

// DueDate returns the normalized due date.
func (v ValidatedBorrowRequest) DueDate() Date { return v.dueDate }

// Record is a loan as held by the remote store. Transitions return a new
// Record; a Record is never edited in place.
type Record struct {
	ID         string     `json:"id"`
	BookID     string     `json:"book_id"`
	BorrowedAt time.Time  `json:"borrowed_at"`
	DueDate    Date       `json:"due_date"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
}

// ValidateBorrowRequest checks req against availability and policy.
//
// Checks run in a fixed order: book id, copies, then the due date. A
// request for a book with no copies left is rejected with
// ErrNoCopiesAvailable even if its date is also invalid.
func ValidateBorrowRequest(req BorrowRequest, availableCopies int, today Date, policy Policy) (ValidatedBorrowRequest, error) {
	bookID := strings.TrimSpace(req.BookID)
	if bookID == "" {
		return ValidatedBorrowRequest{}, ErrBookIDMissing
	}
	if availableCopies <= 0 {
		return ValidatedBorrowRequest{}, ErrNoCopiesAvailable
	}
	if req.DueDate.IsZero() {
		return ValidatedBorrowRequest{}, ErrDueDateMissing
	}

	due := req.DueDate
	if !policy.AllowBackdatedDueDate {
		if due.Before(today) {
			return ValidatedBorrowRequest{}, reject(KindDueDateInPast,
				fmt.Sprintf("return date %s cannot be in the past (today is %s)", due, today))
		}
		if earliest, ok := policy.EarliestDueDate(today); ok && due.Before(earliest) {
			return ValidatedBorrowRequest{}, reject(KindDueDateBeforeMinimum,
				fmt.Sprintf("return date %s is before the earliest permitted date %s", due, earliest))
		}
	}
	if latest := policy.LatestDueDate(today); due.After(latest) {
		return ValidatedBorrowRequest{}, reject(KindDueDateExceedsPolicy,
			fmt.Sprintf("maximum borrowing period is %d days: return date %s is after %s",
				policy.MaxDurationDays, due, latest))
	}

	return ValidatedBorrowRequest{bookID: bookID, dueDate: due}, nil
}

// DeriveStatus computes the status of rec on today.
func DeriveStatus(rec Record, today Date) Status {
	switch {
	case rec.ReturnedAt != nil:
		return StatusReturned
	case rec.DueDate.Before(today):
		return StatusOverdue
	default:
		return StatusActive
	}
}

// IsReturnable reports whether rec has not been returned yet.
func IsReturnable(rec Record) bool {
	return rec.ReturnedAt == nil
}

// RecordReturn returns a copy of rec marked as returned at now.
// rec itself is left untouched.
func RecordReturn(rec Record, now time.Time) (Record, error) {
	if !IsReturnable(rec) {
		return rec, ErrAlreadyReturned
	}
	returned := rec
	at := now
	returned.ReturnedAt = &at
	return returned, nil
}
