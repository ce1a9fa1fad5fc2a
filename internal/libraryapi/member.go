package libraryapi

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/starford/lendr/internal/loan"
	"github.com/starford/lendr/internal/models"
)

// ListBooks returns the member-facing catalog.
func (c *Client) ListBooks(ctx context.Context) ([]models.Book, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: "/books"})
	if err != nil {
		return nil, err
	}
	rows, _, err := decodeList[wireBook](body)
	if err != nil {
		return nil, err
	}
	books := make([]models.Book, 0, len(rows))
	for _, r := range rows {
		b, err := r.toModel()
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, nil
}

// ListLoans returns the loans of the authenticated member. Status is left
// empty; it is derived by the caller.
func (c *Client) ListLoans(ctx context.Context) ([]models.Loan, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: "/user/borrowed-books"})
	if err != nil {
		return nil, err
	}
	rows, _, err := decodeList[wireLoanRow](body)
	if err != nil {
		return nil, err
	}
	loans := make([]models.Loan, 0, len(rows))
	for _, r := range rows {
		l, err := r.toModel()
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, nil
}

type messageBody struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// Borrow submits a validated borrow request. The created record is returned
// when the API echoes it, nil otherwise.
func (c *Client) Borrow(ctx context.Context, req loan.ValidatedBorrowRequest) (*loan.Record, error) {
	body, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/books/" + url.PathEscape(req.BookID()) + "/borrow",
		body:    map[string]string{"due_date": req.DueDate().String()},
		headers: map[string]string{"Idempotency-Key": uuid.NewString()},
	})
	if err != nil {
		return nil, err
	}
	return c.echoedRecord(body), nil
}

// Return submits the return of loanID. The updated record is returned when
// the API echoes it, nil otherwise.
func (c *Client) Return(ctx context.Context, loanID string) (*loan.Record, error) {
	body, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/transactions/" + url.PathEscape(loanID) + "/return",
		body:    struct{}{},
		headers: map[string]string{"Idempotency-Key": uuid.NewString()},
	})
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var mb messageBody
	if err := json.Unmarshal(body, &mb); err != nil {
		return nil, fmt.Errorf("libraryapi: decode return response: %w", err)
	}
	if mb.Success != nil && !*mb.Success {
		msg := mb.Message
		if msg == "" {
			msg = "failed to process return"
		}
		return nil, fmt.Errorf("libraryapi: return %s: %w", loanID,
			&APIError{StatusCode: http.StatusOK, Message: msg})
	}
	return c.echoedRecord(body), nil
}

// echoedRecord extracts the record from a successful borrow or return. The
// call already succeeded, so an echo that cannot be read is logged and
// reported as absent.
func (c *Client) echoedRecord(body []byte) *loan.Record {
	wt, ok, err := decodeData[wireTransaction](body)
	if err == nil && ok {
		var rec loan.Record
		if rec, err = wt.toRecord(); err == nil {
			return &rec
		}
	}
	if err != nil {
		c.logger.Warn("library api: unreadable loan echo", slog.String("error", err.Error()))
	}
	return nil
}
