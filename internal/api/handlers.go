package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lendr/internal/lending"
	"github.com/starford/lendr/internal/loan"
)

// Handler holds the member route handlers.
type Handler struct {
	svc *lending.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *lending.Service) *Handler {
	return &Handler{svc: svc}
}

func filterParam(w http.ResponseWriter, r *http.Request) (lending.Filter, bool) {
	f, err := lending.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return "", false
	}
	return f, true
}

// Policy handles GET /api/policy.
//
//	@Summary		Loan policy in force and today's due-date bounds
//	@Tags			loans
//	@Produce		json
//	@Success		200	{object}	PolicyResponse
//	@Router			/policy [get]
func (h *Handler) Policy(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newPolicyResponse(h.svc.Policy(), h.svc.Today()))
}

// ListBooks handles GET /api/books.
//
//	@Summary		Catalog, optionally narrowed to available or borrowed books
//	@Tags			books
//	@Produce		json
//	@Param			filter	query		string	false	"Filter"	Enums(all, available, borrowed)
//	@Success		200		{object}	BookListResponse
//	@Failure		400		{object}	errResponse
//	@Router			/books [get]
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	filter, ok := filterParam(w, r)
	if !ok {
		return
	}
	books, err := h.svc.Books(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BookListResponse{Filter: filter, Books: books})
}

// ListLoans handles GET /api/loans.
//
//	@Summary		The member's loans with derived status
//	@Tags			loans
//	@Produce		json
//	@Success		200	{object}	LoanListResponse
//	@Router			/loans [get]
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.svc.Loans(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoanListResponse{Loans: loans})
}

// Dashboard handles GET /api/dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	filter, ok := filterParam(w, r)
	if !ok {
		return
	}
	d, err := h.svc.Dashboard(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// CheckBorrow handles POST /api/borrow/check.
//
//	@Summary		Validate a borrow without submitting it
//	@Tags			loans
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CheckRequest	true	"Borrow to check"
//	@Success		200		{object}	CheckResponse
//	@Failure		422		{object}	errResponse
//	@Router			/borrow/check [post]
func (h *Handler) CheckBorrow(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	due, _ := loan.ParseDate(req.DueDate)
	v, err := h.svc.CheckBorrow(r.Context(), req.BookID, due)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckResponse{OK: true, BookID: v.BookID(), DueDate: v.DueDate()})
}

// Borrow handles POST /api/books/{id}/borrow.
//
//	@Summary		Borrow a book until a due date
//	@Tags			loans
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Book id"
//	@Param			body	body		BorrowRequest	true	"Due date"
//	@Success		201		{object}	models.Loan
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Router			/books/{id}/borrow [post]
func (h *Handler) Borrow(w http.ResponseWriter, r *http.Request) {
	var req BorrowRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	due, _ := loan.ParseDate(req.DueDate)
	l, err := h.svc.Borrow(r.Context(), chi.URLParam(r, "id"), due)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// Return handles POST /api/loans/{id}/return.
//
//	@Summary		Return a borrowed book
//	@Tags			loans
//	@Produce		json
//	@Param			id	path		string	true	"Loan id"
//	@Success		200	{object}	models.Loan
//	@Failure		404	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Router			/loans/{id}/return [post]
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.Return(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}
