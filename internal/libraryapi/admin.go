package libraryapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/starford/lendr/internal/models"
)

// Stats returns the admin dashboard counters.
func (c *Client) Stats(ctx context.Context) (models.DashboardStats, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: "/admin/dashboard-stats"})
	if err != nil {
		return models.DashboardStats{}, err
	}
	ws, ok, err := decodeData[wireStats](body)
	if err != nil {
		return models.DashboardStats{}, err
	}
	if !ok {
		return models.DashboardStats{}, fmt.Errorf("libraryapi: dashboard stats response has no data field")
	}
	return ws.toModel()
}

// ListAdminBooks returns one page of the admin catalog.
func (c *Client) ListAdminBooks(ctx context.Context, page models.PageRequest) (models.Page[models.Book], error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: "/admin/books", query: page.Values()})
	if err != nil {
		return models.Page[models.Book]{}, err
	}
	rows, meta, err := decodeList[wireBook](body)
	if err != nil {
		return models.Page[models.Book]{}, err
	}
	books := make([]models.Book, 0, len(rows))
	for _, r := range rows {
		b, err := r.toModel()
		if err != nil {
			return models.Page[models.Book]{}, err
		}
		books = append(books, b)
	}
	return models.NewPage(books, meta), nil
}

type bookPayload struct {
	models.BookInput
	AvailableCopies *int `json:"available_copies,omitempty"`
}

// CreateBook adds a book. All copies start available.
func (c *Client) CreateBook(ctx context.Context, in models.BookInput) (models.Book, error) {
	available := in.TotalCopies
	body, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/admin/books",
		body:   bookPayload{BookInput: in, AvailableCopies: &available},
	})
	if err != nil {
		return models.Book{}, err
	}
	return decodeBook(body)
}

// UpdateBook replaces the editable fields of a book.
func (c *Client) UpdateBook(ctx context.Context, id string, in models.BookInput) (models.Book, error) {
	body, err := c.do(ctx, request{
		method: http.MethodPut,
		path:   "/admin/books/" + url.PathEscape(id),
		body:   bookPayload{BookInput: in},
	})
	if err != nil {
		return models.Book{}, err
	}
	b, err := decodeBook(body)
	if err != nil {
		// An update answered with only a message yields the submitted fields.
		return models.Book{ID: id, Title: in.Title, Author: in.Author, Genre: in.Genre,
			Publisher: in.Publisher, Description: in.Description, TotalCopies: in.TotalCopies}, nil
	}
	return b, nil
}

// DeleteBook removes a book.
func (c *Client) DeleteBook(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: "/admin/books/" + url.PathEscape(id)})
	return err
}

// ListUsers returns one page of accounts.
func (c *Client) ListUsers(ctx context.Context, page models.PageRequest) (models.Page[models.User], error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: "/admin/users", query: page.Values()})
	if err != nil {
		return models.Page[models.User]{}, err
	}
	type wireUser struct {
		ID           wireID `json:"id"`
		Name         string `json:"name"`
		Email        string `json:"email"`
		Role         string `json:"role"`
		ProfileImage string `json:"profile_image"`
		CreatedAt    string `json:"created_at"`
	}
	rows, meta, err := decodeList[wireUser](body)
	if err != nil {
		return models.Page[models.User]{}, err
	}
	users := make([]models.User, 0, len(rows))
	for _, r := range rows {
		created, _ := parseTimestamp(r.CreatedAt)
		users = append(users, models.User{
			ID:           string(r.ID),
			Name:         r.Name,
			Email:        r.Email,
			Role:         r.Role,
			ProfileImage: r.ProfileImage,
			CreatedAt:    created,
		})
	}
	return models.NewPage(users, meta), nil
}

// DeleteUser removes an account.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: "/admin/users/" + url.PathEscape(id)})
	return err
}

// ListTransactions returns one page of loans across all members. Status is
// left empty; it is derived by the caller.
func (c *Client) ListTransactions(ctx context.Context, page models.PageRequest) (models.Page[models.Transaction], error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: "/admin/transactions", query: page.Values()})
	if err != nil {
		return models.Page[models.Transaction]{}, err
	}
	rows, meta, err := decodeList[wireTransaction](body)
	if err != nil {
		return models.Page[models.Transaction]{}, err
	}
	txs := make([]models.Transaction, 0, len(rows))
	for _, r := range rows {
		t, err := r.toModel()
		if err != nil {
			return models.Page[models.Transaction]{}, err
		}
		txs = append(txs, t)
	}
	return models.NewPage(txs, meta), nil
}

func decodeBook(body []byte) (models.Book, error) {
	wb, ok, err := decodeData[wireBook](body)
	if err != nil {
		return models.Book{}, err
	}
	if !ok {
		return models.Book{}, fmt.Errorf("libraryapi: book response has no data field")
	}
	return wb.toModel()
}
