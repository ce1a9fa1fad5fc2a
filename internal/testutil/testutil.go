// Package testutil provides an in-memory fake of the remote library API for
// tests of the client, the lending service and the surfaces built on them.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// FakeToken is the bearer token the fake accepts by default.
const FakeToken = "test-token"

// FakeBook is a catalog row of the fake.
type FakeBook struct {
	ID              int
	Title           string
	Author          string
	Genre           string
	TotalCopies     int
	AvailableCopies int
}

// FakeLoan is a transaction row of the fake.
type FakeLoan struct {
	ID         int
	BookID     int
	UserID     int
	BorrowedAt time.Time
	DueDate    string
	ReturnedAt *time.Time
}

// FakeLibrary serves the library API from memory.
type FakeLibrary struct {
	Server *httptest.Server
	Token  string
	// Now stamps borrow and return times.
	Now func() time.Time
	// EchoRecords controls whether borrow and return include the record.
	EchoRecords bool

	mu     sync.Mutex
	books  map[int]*FakeBook
	loans  map[int]*FakeLoan
	nextID int
	calls  []string
}

// NewFakeLibrary starts a fake API that is shut down when t finishes.
func NewFakeLibrary(t *testing.T) *FakeLibrary {
	t.Helper()
	f := &FakeLibrary{
		Token:       FakeToken,
		Now:         func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) },
		EchoRecords: true,
		books:       make(map[int]*FakeBook),
		loans:       make(map[int]*FakeLoan),
		nextID:      100,
	}
	f.Server = httptest.NewServer(f.router())
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the base URL of the fake.
func (f *FakeLibrary) URL() string { return f.Server.URL }

// AddBook stores a book and returns its id.
func (f *FakeLibrary) AddBook(title string, copies int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.books[f.nextID] = &FakeBook{
		ID: f.nextID, Title: title, Author: "Author of " + title, Genre: "Fiction",
		TotalCopies: copies, AvailableCopies: copies,
	}
	return f.nextID
}

// AddLoan stores a loan of bookID due on due and returns its id.
func (f *FakeLibrary) AddLoan(bookID int, due string, returned bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	l := &FakeLoan{ID: f.nextID, BookID: bookID, UserID: 1, BorrowedAt: f.Now().Add(-48 * time.Hour), DueDate: due}
	if returned {
		at := f.Now()
		l.ReturnedAt = &at
	} else if b, ok := f.books[bookID]; ok {
		b.AvailableCopies--
	}
	f.loans[l.ID] = l
	return l.ID
}

// Book returns a copy of a stored book.
func (f *FakeLibrary) Book(id int) FakeBook {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.books[id]
}

// Loan returns a copy of a stored loan.
func (f *FakeLibrary) Loan(id int) FakeLoan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.loans[id]
}

// Calls returns "METHOD /path" for every request received so far.
func (f *FakeLibrary) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount counts received requests matching "METHOD /path".
func (f *FakeLibrary) CallCount(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *FakeLibrary) router() http.Handler {
	r := chi.NewRouter()
	r.Use(f.record)
	r.Use(f.auth)

	r.Get("/books", f.listBooks)
	r.Get("/user/borrowed-books", f.listBorrowed)
	r.Post("/books/{id}/borrow", f.borrow)
	r.Post("/transactions/{id}/return", f.returnLoan)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/dashboard-stats", f.stats)
		r.Get("/books", f.adminBooks)
		r.Post("/books", f.createBook)
		r.Put("/books/{id}", f.updateBook)
		r.Delete("/books/{id}", f.deleteBook)
		r.Get("/users", f.users)
		r.Delete("/users/{id}", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"message": "User deleted"})
		})
		r.Get("/transactions", f.transactions)
	})
	return r
}

func (f *FakeLibrary) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *FakeLibrary) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *FakeLibrary) bookJSON(b *FakeBook) map[string]any {
	return map[string]any{
		"id": b.ID, "title": b.Title, "author": b.Author, "genre": b.Genre,
		"description": "", "total_copies": b.TotalCopies, "available_copies": b.AvailableCopies,
		"user": map[string]any{"name": "Admin"},
	}
}

func (f *FakeLibrary) loanJSON(l *FakeLoan) map[string]any {
	m := map[string]any{
		"id": l.ID, "book_id": l.BookID, "user_id": l.UserID,
		"borrowed_date": l.BorrowedAt.Format(time.RFC3339),
		"due_date":      l.DueDate,
		"returned_date": nil,
		"status":        "borrowed",
		"user":          map[string]any{"name": "Reader One", "email": "reader@example.com"},
	}
	if b, ok := f.books[l.BookID]; ok {
		m["book"] = map[string]any{"title": b.Title, "author": b.Author}
	}
	if l.ReturnedAt != nil {
		m["returned_date"] = l.ReturnedAt.Format("2006-01-02 15:04:05")
		m["status"] = "returned"
	}
	return m
}

func (f *FakeLibrary) sortedBooks() []*FakeBook {
	out := make([]*FakeBook, 0, len(f.books))
	for _, b := range f.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *FakeLibrary) sortedLoans() []*FakeLoan {
	out := make([]*FakeLoan, 0, len(f.loans))
	for _, l := range f.loans {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *FakeLibrary) listBooks(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []map[string]any{}
	for _, b := range f.sortedBooks() {
		out = append(out, f.bookJSON(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeLibrary) listBorrowed(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []map[string]any{}
	for _, l := range f.sortedLoans() {
		b, ok := f.books[l.BookID]
		if !ok {
			continue
		}
		row := f.bookJSON(b)
		row["transaction_id"] = l.ID
		row["borrowed_at"] = l.BorrowedAt.Format(time.RFC3339)
		row["due_date"] = l.DueDate
		row["status"] = "borrowed"
		if l.ReturnedAt != nil {
			row["returned_date"] = l.ReturnedAt.Format(time.RFC3339)
			row["status"] = "returned"
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (f *FakeLibrary) borrow(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var body struct {
		DueDate string `json:"due_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DueDate == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "The due date field is required."})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Book not found"})
		return
	}
	if b.AvailableCopies <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "No copies available"})
		return
	}
	b.AvailableCopies--
	f.nextID++
	l := &FakeLoan{ID: f.nextID, BookID: id, UserID: 1, BorrowedAt: f.Now(), DueDate: body.DueDate}
	f.loans[l.ID] = l

	resp := map[string]any{"message": "Book borrowed successfully"}
	if f.EchoRecords {
		resp["data"] = f.loanJSON(l)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (f *FakeLibrary) returnLoan(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.loans[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Transaction not found"})
		return
	}
	if l.ReturnedAt != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "This book was already returned"})
		return
	}
	at := f.Now()
	l.ReturnedAt = &at
	if b, ok := f.books[l.BookID]; ok {
		b.AvailableCopies++
	}

	resp := map[string]any{"success": true, "message": "Book returned successfully"}
	if f.EchoRecords {
		resp["data"] = f.loanJSON(l)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *FakeLibrary) stats(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	today := f.Now().Format("2006-01-02")
	overdue := 0
	recent := []map[string]any{}
	for _, l := range f.sortedLoans() {
		if l.ReturnedAt == nil && l.DueDate < today {
			overdue++
		}
		row := f.loanJSON(l)
		recent = append(recent, map[string]any{
			"id": l.ID, "user_name": "Reader One", "book_title": f.books[l.BookID].Title,
			"borrowed_date": row["borrowed_date"], "due_date": l.DueDate,
			"returned_date": row["returned_date"], "status": row["status"],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"books_count": len(f.books), "users_count": 1, "transactions_count": len(f.loans),
		"overdue_count": overdue, "recent_transactions": recent,
	}})
}

func paginate[T any](r *http.Request, items []T) ([]T, map[string]any) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	last := (len(items) + perPage - 1) / perPage
	if last < 1 {
		last = 1
	}
	start := min((page-1)*perPage, len(items))
	end := min(start+perPage, len(items))
	return items[start:end], map[string]any{
		"current_page": page, "last_page": last, "per_page": perPage, "total": len(items),
	}
}

func (f *FakeLibrary) adminBooks(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	search := strings.ToLower(r.URL.Query().Get("search"))
	rows := []map[string]any{}
	for _, b := range f.sortedBooks() {
		if search != "" && !strings.Contains(strings.ToLower(b.Title), search) {
			continue
		}
		rows = append(rows, f.bookJSON(b))
	}
	page, meta := paginate(r, rows)
	writeJSON(w, http.StatusOK, map[string]any{"data": page, "meta": meta})
}

func (f *FakeLibrary) createBook(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title           string `json:"title"`
		Author          string `json:"author"`
		Genre           string `json:"genre"`
		TotalCopies     int    `json:"total_copies"`
		AvailableCopies int    `json:"available_copies"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Title == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "The title field is required."})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	b := &FakeBook{ID: f.nextID, Title: in.Title, Author: in.Author, Genre: in.Genre,
		TotalCopies: in.TotalCopies, AvailableCopies: in.AvailableCopies}
	f.books[b.ID] = b
	writeJSON(w, http.StatusCreated, map[string]any{"data": f.bookJSON(b)})
}

func (f *FakeLibrary) updateBook(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var in struct {
		Title       string `json:"title"`
		TotalCopies int    `json:"total_copies"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Book not found"})
		return
	}
	if in.Title != "" {
		b.Title = in.Title
	}
	if in.TotalCopies > 0 {
		b.AvailableCopies += in.TotalCopies - b.TotalCopies
		b.TotalCopies = in.TotalCopies
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Book updated"})
}

func (f *FakeLibrary) deleteBook(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.books[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Book not found"})
		return
	}
	delete(f.books, id)
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeLibrary) users(w http.ResponseWriter, r *http.Request) {
	rows := []map[string]any{
		{"id": 1, "name": "Reader One", "email": "reader@example.com", "role": "user"},
		{"id": 2, "name": "Admin", "email": "admin@example.com", "role": "admin"},
	}
	page, meta := paginate(r, rows)
	writeJSON(w, http.StatusOK, map[string]any{"data": page, "meta": meta})
}

func (f *FakeLibrary) transactions(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := []map[string]any{}
	for _, l := range f.sortedLoans() {
		rows = append(rows, f.loanJSON(l))
	}
	page, meta := paginate(r, rows)
	writeJSON(w, http.StatusOK, map[string]any{"data": page, "meta": meta})
}

// BookPath is the fake's borrow path for id, for CallCount assertions.
func BookPath(id int) string {
	return fmt.Sprintf("POST /books/%d/borrow", id)
}

// ReturnPath is the fake's return path for id, for CallCount assertions.
func ReturnPath(id int) string {
	return fmt.Sprintf("POST /transactions/%d/return", id)
}
