package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lendr/internal/lending"
	"github.com/starford/lendr/internal/models"
)

// AdminHandler holds the administrator route handlers. Access control is
// left to the library API, which answers 403 for non-admin tokens.
type AdminHandler struct {
	admin *lending.Admin
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admin *lending.Admin) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// Stats handles GET /api/admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListBooks handles GET /api/admin/books.
func (h *AdminHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	page, err := h.admin.Books(r.Context(), models.PageRequestFromQuery(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// CreateBook handles POST /api/admin/books.
func (h *AdminHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var in models.BookInput
	if err := readJSON(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	b, err := h.admin.CreateBook(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// UpdateBook handles PUT /api/admin/books/{id}.
func (h *AdminHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	var in models.BookInput
	if err := readJSON(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	b, err := h.admin.UpdateBook(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// DeleteBook handles DELETE /api/admin/books/{id}.
func (h *AdminHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.DeleteBook(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListUsers handles GET /api/admin/users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := h.admin.Users(r.Context(), models.PageRequestFromQuery(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// DeleteUser handles DELETE /api/admin/users/{id}.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTransactions handles GET /api/admin/transactions.
func (h *AdminHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	page, err := h.admin.Transactions(r.Context(), models.PageRequestFromQuery(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
