package libraryapi

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/starford/lendr/internal/loan"
	"github.com/starford/lendr/internal/models"
)

// wireID accepts both numeric and string identifiers.
type wireID string

func (id *wireID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*id = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = wireID(s)
	default:
		if _, err := strconv.ParseFloat(string(b), 64); err != nil {
			return fmt.Errorf("libraryapi: invalid id %s", b)
		}
		*id = wireID(b)
	}
	return nil
}

// decodeList reads a listing. The API answers either with a bare JSON array
// or with an object carrying the items under "data" and optional "meta".
func decodeList[T any](body []byte) ([]T, models.PageMeta, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, models.PageMeta{}, fmt.Errorf("libraryapi: empty list response")
	}
	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, models.PageMeta{}, fmt.Errorf("libraryapi: decode list: %w", err)
		}
		return items, models.PageMeta{}, nil
	case '{':
		var env struct {
			Data *[]T            `json:"data"`
			Meta *models.PageMeta `json:"meta"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, models.PageMeta{}, fmt.Errorf("libraryapi: decode list: %w", err)
		}
		if env.Data == nil {
			return nil, models.PageMeta{}, fmt.Errorf("libraryapi: list response has no data field")
		}
		var meta models.PageMeta
		if env.Meta != nil {
			meta = *env.Meta
		}
		return *env.Data, meta, nil
	default:
		return nil, models.PageMeta{}, fmt.Errorf("libraryapi: unexpected list response %q", truncate(trimmed, 32))
	}
}

// decodeData reads {"data": ...}. ok is false when data is absent or null.
func decodeData[T any](body []byte) (v T, ok bool, err error) {
	var env struct {
		Data *T `json:"data"`
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return v, false, nil
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return v, false, fmt.Errorf("libraryapi: decode response: %w", err)
	}
	if env.Data == nil {
		return v, false, nil
	}
	return *env.Data, true, nil
}

type wireBook struct {
	ID              wireID `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	Genre           string `json:"genre"`
	Publisher       string `json:"publisher"`
	Description     string `json:"description"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
	AddedBy         string `json:"added_by"`
	User            *struct {
		Name string `json:"name"`
	} `json:"user"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (w wireBook) toModel() (models.Book, error) {
	if w.ID == "" {
		return models.Book{}, fmt.Errorf("libraryapi: book without id")
	}
	b := models.Book{
		ID:              string(w.ID),
		Title:           orDefault(w.Title, "No Title"),
		Author:          orDefault(w.Author, "Unknown Author"),
		Genre:           orDefault(w.Genre, "Uncategorized"),
		Publisher:       w.Publisher,
		Description:     orDefault(w.Description, "No description available"),
		TotalCopies:     w.TotalCopies,
		AvailableCopies: w.AvailableCopies,
		AddedBy:         w.AddedBy,
	}
	if b.AddedBy == "" && w.User != nil {
		b.AddedBy = w.User.Name
	}
	b.CreatedAt, _ = parseTimestamp(w.CreatedAt)
	b.UpdatedAt, _ = parseTimestamp(w.UpdatedAt)
	return b, nil
}

// wireLoanRow is a row of /user/borrowed-books: book fields plus the loan.
type wireLoanRow struct {
	wireBook
	TransactionID wireID  `json:"transaction_id"`
	Status        string  `json:"status"`
	BorrowedAt    string  `json:"borrowed_at"`
	DueDate       string  `json:"due_date"`
	ReturnedDate  *string `json:"returned_date"`
}

func (w wireLoanRow) toModel() (models.Loan, error) {
	book, err := w.wireBook.toModel()
	if err != nil {
		return models.Loan{}, err
	}
	if w.TransactionID == "" {
		return models.Loan{}, fmt.Errorf("libraryapi: loan row for book %s without transaction_id", book.ID)
	}
	rec, err := buildRecord(string(w.TransactionID), book.ID, w.BorrowedAt, w.DueDate, w.ReturnedDate, w.Status)
	if err != nil {
		return models.Loan{}, err
	}
	return models.Loan{Record: rec, Book: book}, nil
}

// wireTransaction is a loan as returned by the admin listing and echoed by
// borrow and return.
type wireTransaction struct {
	ID           wireID  `json:"id"`
	BookID       wireID  `json:"book_id"`
	UserID       wireID  `json:"user_id"`
	BorrowedDate string  `json:"borrowed_date"`
	DueDate      string  `json:"due_date"`
	ReturnedDate *string `json:"returned_date"`
	Status       string  `json:"status"`
	Book         *struct {
		Title  string `json:"title"`
		Author string `json:"author"`
	} `json:"book"`
	User *struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"user"`
}

func (w wireTransaction) toRecord() (loan.Record, error) {
	if w.ID == "" {
		return loan.Record{}, fmt.Errorf("libraryapi: transaction without id")
	}
	return buildRecord(string(w.ID), string(w.BookID), w.BorrowedDate, w.DueDate, w.ReturnedDate, w.Status)
}

func (w wireTransaction) toModel() (models.Transaction, error) {
	rec, err := w.toRecord()
	if err != nil {
		return models.Transaction{}, err
	}
	t := models.Transaction{Record: rec, UserID: string(w.UserID)}
	if w.Book != nil {
		t.BookTitle = w.Book.Title
		t.Author = w.Book.Author
	}
	if w.User != nil {
		t.UserName = w.User.Name
		t.UserEmail = w.User.Email
	}
	return t, nil
}

type wireStats struct {
	BooksCount         int `json:"books_count"`
	UsersCount         int `json:"users_count"`
	TransactionsCount  int `json:"transactions_count"`
	OverdueCount       int `json:"overdue_count"`
	RecentTransactions []struct {
		ID           wireID  `json:"id"`
		UserName     string  `json:"user_name"`
		BookTitle    string  `json:"book_title"`
		BorrowedDate string  `json:"borrowed_date"`
		DueDate      string  `json:"due_date"`
		ReturnedDate *string `json:"returned_date"`
		Status       string  `json:"status"`
	} `json:"recent_transactions"`
}

func (w wireStats) toModel() (models.DashboardStats, error) {
	s := models.DashboardStats{
		BooksCount:         w.BooksCount,
		UsersCount:         w.UsersCount,
		TransactionsCount:  w.TransactionsCount,
		OverdueCount:       w.OverdueCount,
		RecentTransactions: make([]models.RecentTransaction, 0, len(w.RecentTransactions)),
	}
	for _, r := range w.RecentTransactions {
		borrowed, err := parseDay(r.BorrowedDate)
		if err != nil {
			return s, fmt.Errorf("libraryapi: recent transaction %s: %w", r.ID, err)
		}
		due, err := parseDay(r.DueDate)
		if err != nil {
			return s, fmt.Errorf("libraryapi: recent transaction %s: %w", r.ID, err)
		}
		var returned loan.Date
		if r.ReturnedDate != nil {
			if returned, err = parseDay(*r.ReturnedDate); err != nil {
				return s, fmt.Errorf("libraryapi: recent transaction %s: %w", r.ID, err)
			}
		}
		s.RecentTransactions = append(s.RecentTransactions, models.RecentTransaction{
			ID:           string(r.ID),
			UserName:     r.UserName,
			BookTitle:    r.BookTitle,
			BorrowedDate: borrowed,
			DueDate:      due,
			ReturnedDate: returned,
		})
	}
	return s, nil
}

// buildRecord converts the loan fields shared by every endpoint. A row the
// API marks "returned" without a return timestamp is still treated as
// returned, with a zero ReturnedAt.
func buildRecord(id, bookID, borrowedAt, dueDate string, returnedDate *string, status string) (loan.Record, error) {
	rec := loan.Record{ID: id, BookID: bookID}

	var err error
	if rec.BorrowedAt, err = parseTimestamp(borrowedAt); err != nil {
		return loan.Record{}, fmt.Errorf("libraryapi: loan %s: borrowed_at: %w", id, err)
	}
	if rec.DueDate, err = parseDay(dueDate); err != nil {
		return loan.Record{}, fmt.Errorf("libraryapi: loan %s: due_date: %w", id, err)
	}
	if rec.DueDate.IsZero() {
		return loan.Record{}, fmt.Errorf("libraryapi: loan %s without due_date", id)
	}

	switch {
	case returnedDate != nil && strings.TrimSpace(*returnedDate) != "":
		at, err := parseTimestamp(*returnedDate)
		if err != nil {
			return loan.Record{}, fmt.Errorf("libraryapi: loan %s: returned_date: %w", id, err)
		}
		rec.ReturnedAt = &at
	case strings.EqualFold(status, string(loan.StatusReturned)):
		rec.ReturnedAt = &time.Time{}
	}
	return rec, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	loan.DateLayout,
}

// parseTimestamp parses the timestamp formats the API emits. "" yields the
// zero time.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// parseDay parses any timestamp format the API emits down to its date.
func parseDay(s string) (loan.Date, error) {
	t, err := parseTimestamp(s)
	if err != nil || t.IsZero() {
		return loan.Date{}, err
	}
	return loan.DateOf(t), nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
