package lending

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/lendr/internal/loan"
	"github.com/starford/lendr/internal/models"
)

// AdminStore is the remote library API as seen by an administrator.
type AdminStore interface {
	Stats(ctx context.Context) (models.DashboardStats, error)
	ListAdminBooks(ctx context.Context, req models.PageRequest) (models.Page[models.Book], error)
	CreateBook(ctx context.Context, in models.BookInput) (models.Book, error)
	UpdateBook(ctx context.Context, id string, in models.BookInput) (models.Book, error)
	DeleteBook(ctx context.Context, id string) error
	ListUsers(ctx context.Context, req models.PageRequest) (models.Page[models.User], error)
	DeleteUser(ctx context.Context, id string) error
	ListTransactions(ctx context.Context, req models.PageRequest) (models.Page[models.Transaction], error)
}

// Admin serves the administrator views. Loan statuses in its results are
// derived locally rather than taken from the API.
type Admin struct {
	store  AdminStore
	clock  loan.Clock
	logger *slog.Logger
}

// NewAdmin creates the administrator service.
func NewAdmin(store AdminStore, clock loan.Clock, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{store: store, clock: clock, logger: logger}
}

// Stats returns the overview counters with statuses of recent activity.
func (a *Admin) Stats(ctx context.Context) (models.DashboardStats, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return models.DashboardStats{}, fmt.Errorf("admin stats: %w", err)
	}
	today := loan.Today(a.clock)
	for i, r := range stats.RecentTransactions {
		rec := loan.Record{ID: r.ID, DueDate: r.DueDate}
		if !r.ReturnedDate.IsZero() {
			at := r.ReturnedDate.Time()
			rec.ReturnedAt = &at
		}
		stats.RecentTransactions[i].Status = loan.DeriveStatus(rec, today)
	}
	return stats, nil
}

// Transactions returns a page of loans with derived statuses.
func (a *Admin) Transactions(ctx context.Context, req models.PageRequest) (models.Page[models.Transaction], error) {
	page, err := a.store.ListTransactions(ctx, req)
	if err != nil {
		return page, fmt.Errorf("list transactions: %w", err)
	}
	today := loan.Today(a.clock)
	for i := range page.Items {
		page.Items[i].Status = loan.DeriveStatus(page.Items[i].Record, today)
	}
	return page, nil
}

// Books returns a page of the catalog.
func (a *Admin) Books(ctx context.Context, req models.PageRequest) (models.Page[models.Book], error) {
	page, err := a.store.ListAdminBooks(ctx, req)
	if err != nil {
		return page, fmt.Errorf("list books: %w", err)
	}
	return page, nil
}

// CreateBook validates and adds a catalog item.
func (a *Admin) CreateBook(ctx context.Context, in models.BookInput) (models.Book, error) {
	if err := in.Validate(); err != nil {
		return models.Book{}, err
	}
	b, err := a.store.CreateBook(ctx, in)
	if err != nil {
		return models.Book{}, fmt.Errorf("create book: %w", err)
	}
	a.logger.Info("book created", slog.String("book_id", b.ID), slog.String("title", b.Title))
	return b, nil
}

// UpdateBook validates and replaces the fields of a catalog item.
func (a *Admin) UpdateBook(ctx context.Context, id string, in models.BookInput) (models.Book, error) {
	if err := in.Validate(); err != nil {
		return models.Book{}, err
	}
	b, err := a.store.UpdateBook(ctx, id, in)
	if err != nil {
		return models.Book{}, fmt.Errorf("update book %s: %w", id, err)
	}
	return b, nil
}

// DeleteBook removes a catalog item.
func (a *Admin) DeleteBook(ctx context.Context, id string) error {
	if err := a.store.DeleteBook(ctx, id); err != nil {
		return fmt.Errorf("delete book %s: %w", id, err)
	}
	a.logger.Info("book deleted", slog.String("book_id", id))
	return nil
}

// Users returns a page of accounts.
func (a *Admin) Users(ctx context.Context, req models.PageRequest) (models.Page[models.User], error) {
	page, err := a.store.ListUsers(ctx, req)
	if err != nil {
		return page, fmt.Errorf("list users: %w", err)
	}
	return page, nil
}

// DeleteUser removes an account.
func (a *Admin) DeleteUser(ctx context.Context, id string) error {
	if err := a.store.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	a.logger.Info("user deleted", slog.String("user_id", id))
	return nil
}
