package lending

import (
	"fmt"
	"strings"

	"github.com/starford/lendr/internal/loan"
	"github.com/starford/lendr/internal/models"
)

// Filter narrows the catalog shown on the member dashboard.
type Filter string

// Dashboard filters.
const (
	FilterAll       Filter = "all"
	FilterAvailable Filter = "available"
	FilterBorrowed  Filter = "borrowed"
)

// ParseFilter reads a filter name. "" selects FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterAvailable, FilterBorrowed:
		return f, nil
	default:
		return "", fmt.Errorf("unknown filter %q (want all, available or borrowed)", s)
	}
}

// StatusCounts tallies loans by derived status.
type StatusCounts struct {
	Active   int `json:"active"`
	Overdue  int `json:"overdue"`
	Returned int `json:"returned"`
}

// Dashboard is the member overview: the filtered catalog next to the
// member's loans.
type Dashboard struct {
	Today  loan.Date     `json:"today"`
	Policy loan.Policy   `json:"policy"`
	Filter Filter        `json:"filter"`
	Books  []models.Book `json:"books"`
	Loans  []models.Loan `json:"loans"`
	Counts StatusCounts  `json:"counts"`
}

func withStatus(loans []models.Loan, today loan.Date) []models.Loan {
	out := make([]models.Loan, len(loans))
	for i, l := range loans {
		l.Status = loan.DeriveStatus(l.Record, today)
		out[i] = l
	}
	return out
}

func filterBooks(books []models.Book, filter Filter) []models.Book {
	if filter != FilterAvailable {
		return books
	}
	out := make([]models.Book, 0, len(books))
	for _, b := range books {
		if b.Available() {
			out = append(out, b)
		}
	}
	return out
}

// borrowedBooks lists the books of outstanding loans, once per book.
func borrowedBooks(loans []models.Loan) []models.Book {
	seen := make(map[string]bool, len(loans))
	out := make([]models.Book, 0, len(loans))
	for _, l := range loans {
		if !loan.IsReturnable(l.Record) || seen[l.Book.ID] {
			continue
		}
		seen[l.Book.ID] = true
		out = append(out, l.Book)
	}
	return out
}

func countStatuses(loans []models.Loan) StatusCounts {
	var c StatusCounts
	for _, l := range loans {
		switch l.Status {
		case loan.StatusActive:
			c.Active++
		case loan.StatusOverdue:
			c.Overdue++
		case loan.StatusReturned:
			c.Returned++
		}
	}
	return c
}
