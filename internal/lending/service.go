// Package lending runs the loan rules around calls to the library API: a
// borrow or return is checked before it is submitted and reconciled with the
// store's answer afterwards.
package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/lendr/internal/apperr"
	"github.com/starford/lendr/internal/loan"
	"github.com/starford/lendr/internal/models"
)

// Store is the remote library API as seen by a member.
type Store interface {
	ListBooks(ctx context.Context) ([]models.Book, error)
	ListLoans(ctx context.Context) ([]models.Loan, error)
	Borrow(ctx context.Context, req loan.ValidatedBorrowRequest) (*loan.Record, error)
	Return(ctx context.Context, loanID string) (*loan.Record, error)
}

// PolicySource yields the policy in force.
type PolicySource interface {
	Current() loan.Policy
}

// StaticPolicy is a PolicySource that never changes.
type StaticPolicy loan.Policy

// Current returns p.
func (p StaticPolicy) Current() loan.Policy { return loan.Policy(p) }

// Event kinds passed to an EventFunc.
const (
	EventBorrowed = "borrowed"
	EventReturned = "returned"
)

// EventFunc is called after a borrow or return is accepted by the store.
type EventFunc func(kind string, rec loan.Record)

// Option configures a Service.
type Option func(*Service)

// WithEvents registers a callback for accepted borrows and returns.
func WithEvents(fn EventFunc) Option {
	return func(s *Service) {
		s.onEvent = fn
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithCallerKey scopes the in-flight guard to the caller identified by fn.
// Requests from different callers never block each other; an empty key
// means the process-wide scope.
func WithCallerKey(fn func(context.Context) string) Option {
	return func(s *Service) {
		s.callerKey = fn
	}
}

// Service coordinates the loan rules with the remote store.
type Service struct {
	store     Store
	clock     loan.Clock
	policies  PolicySource
	onEvent   EventFunc
	logger    *slog.Logger
	callerKey func(context.Context) string

	// inflight holds the keys of borrows and returns being processed.
	inflight sync.Map
}

// NewService creates a lending service.
func NewService(store Store, clock loan.Clock, policies PolicySource, opts ...Option) *Service {
	s := &Service{
		store:    store,
		clock:    clock,
		policies: policies,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the policy in force.
func (s *Service) Policy() loan.Policy {
	return s.policies.Current()
}

// Today returns the current calendar date according to the service clock.
func (s *Service) Today() loan.Date {
	return loan.Today(s.clock)
}

// CheckBorrow validates a borrow against live availability without
// submitting it.
func (s *Service) CheckBorrow(ctx context.Context, bookID string, due loan.Date) (loan.ValidatedBorrowRequest, error) {
	_, req, err := s.check(ctx, bookID, due)
	return req, err
}

func (s *Service) check(ctx context.Context, bookID string, due loan.Date) (models.Book, loan.ValidatedBorrowRequest, error) {
	req := loan.BorrowRequest{BookID: bookID, DueDate: due}
	if strings.TrimSpace(bookID) == "" {
		_, err := loan.ValidateBorrowRequest(req, 0, s.Today(), s.Policy())
		return models.Book{}, loan.ValidatedBorrowRequest{}, err
	}
	book, err := s.findBook(ctx, strings.TrimSpace(bookID))
	if err != nil {
		return models.Book{}, loan.ValidatedBorrowRequest{}, err
	}
	validated, err := loan.ValidateBorrowRequest(req, book.AvailableCopies, s.Today(), s.Policy())
	return book, validated, err
}

// Borrow validates and submits a borrow of bookID until due.
func (s *Service) Borrow(ctx context.Context, bookID string, due loan.Date) (models.Loan, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID != "" {
		release, err := s.acquire(ctx, "book:"+bookID)
		if err != nil {
			return models.Loan{}, err
		}
		defer release()
	}

	book, req, err := s.check(ctx, bookID, due)
	if err != nil {
		return models.Loan{}, err
	}

	rec, err := s.store.Borrow(ctx, req)
	if err != nil {
		return models.Loan{}, fmt.Errorf("borrow book %s: %w", req.BookID(), err)
	}
	if rec == nil {
		rec = s.locateBorrowed(ctx, req)
	}

	s.logger.Info("book borrowed",
		slog.String("book_id", req.BookID()),
		slog.String("loan_id", rec.ID),
		slog.String("due_date", req.DueDate().String()))
	s.emit(EventBorrowed, *rec)

	return models.Loan{Record: *rec, Book: book, Status: loan.DeriveStatus(*rec, s.Today())}, nil
}

// locateBorrowed finds the record of a borrow the store did not echo. When
// it cannot be found, a record without an id is synthesized from the
// request.
func (s *Service) locateBorrowed(ctx context.Context, req loan.ValidatedBorrowRequest) *loan.Record {
	loans, err := s.store.ListLoans(ctx)
	if err != nil {
		s.logger.Warn("re-read after borrow failed", slog.String("error", err.Error()))
	}
	var found *loan.Record
	for i := range loans {
		r := loans[i].Record
		if r.BookID == req.BookID() && r.DueDate.Equal(req.DueDate()) && loan.IsReturnable(r) {
			if found == nil || !r.BorrowedAt.Before(found.BorrowedAt) {
				found = &r
			}
		}
	}
	if found != nil {
		return found
	}
	return &loan.Record{BookID: req.BookID(), DueDate: req.DueDate(), BorrowedAt: s.clock.Now()}
}

// Return submits the return of loanID after checking that it is still
// outstanding.
func (s *Service) Return(ctx context.Context, loanID string) (models.Loan, error) {
	loanID = strings.TrimSpace(loanID)
	release, err := s.acquire(ctx, "loan:"+loanID)
	if err != nil {
		return models.Loan{}, err
	}
	defer release()

	current, err := s.findLoan(ctx, loanID)
	if err != nil {
		return models.Loan{}, err
	}

	now := s.clock.Now()
	expected, err := loan.RecordReturn(current.Record, now)
	if err != nil {
		return models.Loan{}, err
	}

	echoed, err := s.store.Return(ctx, loanID)
	if err != nil {
		return models.Loan{}, fmt.Errorf("return loan %s: %w", loanID, err)
	}
	result := expected
	if echoed != nil && !loan.IsReturnable(*echoed) {
		result = *echoed
		if result.ReturnedAt.IsZero() {
			// Returned without a timestamp.
			result.ReturnedAt = expected.ReturnedAt
		}
	}

	s.logger.Info("book returned",
		slog.String("loan_id", loanID),
		slog.String("book_id", result.BookID))
	s.emit(EventReturned, result)

	return models.Loan{Record: result, Book: current.Book, Status: loan.DeriveStatus(result, loan.DateOf(now))}, nil
}

// Loans returns the member's loans with their status as of today.
func (s *Service) Loans(ctx context.Context) ([]models.Loan, error) {
	loans, err := s.store.ListLoans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	return withStatus(loans, s.Today()), nil
}

// Books returns the catalog narrowed by filter. FilterBorrowed yields the
// books of outstanding loans.
func (s *Service) Books(ctx context.Context, filter Filter) ([]models.Book, error) {
	if filter == FilterBorrowed {
		loans, err := s.Loans(ctx)
		if err != nil {
			return nil, err
		}
		return borrowedBooks(loans), nil
	}
	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return filterBooks(books, filter), nil
}

// Dashboard loads the catalog and the member's loans concurrently.
func (s *Service) Dashboard(ctx context.Context, filter Filter) (Dashboard, error) {
	var (
		books []models.Book
		loans []models.Loan
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		books, err = s.store.ListBooks(gCtx)
		if err != nil {
			return fmt.Errorf("list books: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		loans, err = s.store.ListLoans(gCtx)
		if err != nil {
			return fmt.Errorf("list loans: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	today := s.Today()
	loans = withStatus(loans, today)
	d := Dashboard{
		Today:  today,
		Policy: s.Policy(),
		Filter: filter,
		Loans:  loans,
		Counts: countStatuses(loans),
	}
	if filter == FilterBorrowed {
		d.Books = borrowedBooks(loans)
	} else {
		d.Books = filterBooks(books, filter)
	}
	return d, nil
}

func (s *Service) findBook(ctx context.Context, bookID string) (models.Book, error) {
	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return models.Book{}, fmt.Errorf("list books: %w", err)
	}
	for _, b := range books {
		if b.ID == bookID {
			return b, nil
		}
	}
	return models.Book{}, fmt.Errorf("book %s: %w", bookID, apperr.ErrNotFound)
}

func (s *Service) findLoan(ctx context.Context, loanID string) (models.Loan, error) {
	loans, err := s.store.ListLoans(ctx)
	if err != nil {
		return models.Loan{}, fmt.Errorf("list loans: %w", err)
	}
	for _, l := range loans {
		if l.Record.ID == loanID {
			return l, nil
		}
	}
	return models.Loan{}, fmt.Errorf("loan %s: %w", loanID, apperr.ErrNotFound)
}

func (s *Service) acquire(ctx context.Context, key string) (func(), error) {
	scoped := key
	if s.callerKey != nil {
		if caller := s.callerKey(ctx); caller != "" {
			scoped = caller + "/" + key
		}
	}
	if _, busy := s.inflight.LoadOrStore(scoped, struct{}{}); busy {
		return nil, fmt.Errorf("%s: %w", key, apperr.ErrInFlight)
	}
	return func() { s.inflight.Delete(scoped) }, nil
}

func (s *Service) emit(kind string, rec loan.Record) {
	if s.onEvent != nil {
		s.onEvent(kind, rec)
	}
}

// IsRejection reports whether err is a rule rejection rather than a failure.
func IsRejection(err error) bool {
	var rej *loan.Rejection
	return errors.As(err, &rej)
}
