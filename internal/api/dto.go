package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lendr/internal/lending"
	"github.com/starford/lendr/internal/loan"
	"github.com/starford/lendr/internal/models"
)

// BorrowRequest is the body of POST /books/{id}/borrow.
type BorrowRequest struct {
	DueDate string `json:"due_date" example:"2024-06-08"`
}

// Validate checks the date format. A missing date is left to the loan
// rules, which reject it with its own kind.
func (r BorrowRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.DueDate, validation.Date(loan.DateLayout)),
	)
}

// CheckRequest is the body of POST /borrow/check.
type CheckRequest struct {
	BookID  string `json:"book_id" example:"12"`
	DueDate string `json:"due_date" example:"2024-06-08"`
}

// Validate checks the date format.
func (r CheckRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.DueDate, validation.Date(loan.DateLayout)),
	)
}

// CheckResponse reports an accepted borrow check.
type CheckResponse struct {
	OK      bool      `json:"ok"`
	BookID  string    `json:"book_id"`
	DueDate loan.Date `json:"due_date"`
}

// PolicyResponse describes the policy in force and the due dates it allows
// for a loan starting today.
type PolicyResponse struct {
	Policy   loan.Policy `json:"policy"`
	Today    loan.Date   `json:"today"`
	Earliest *loan.Date  `json:"earliest_due_date,omitempty"`
	Latest   loan.Date   `json:"latest_due_date"`
}

func newPolicyResponse(p loan.Policy, today loan.Date) PolicyResponse {
	resp := PolicyResponse{Policy: p, Today: today, Latest: p.LatestDueDate(today)}
	if earliest, ok := p.EarliestDueDate(today); ok {
		resp.Earliest = &earliest
	}
	return resp
}

// BookListResponse wraps the member catalog.
type BookListResponse struct {
	Filter lending.Filter `json:"filter"`
	Books  []models.Book  `json:"books"`
}

// LoanListResponse wraps the member's loans.
type LoanListResponse struct {
	Loans []models.Loan `json:"loans"`
}
