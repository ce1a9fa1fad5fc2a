// Package models defines the library catalog and account types shared by the
// client, the lending service and the gateway.
package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lendr/internal/loan"
)

// Book is a catalog item.
type Book struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Genre           string    `json:"genre"`
	Publisher       string    `json:"publisher,omitempty"`
	Description     string    `json:"description"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	AddedBy         string    `json:"added_by,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

// Available reports whether at least one copy can be borrowed.
func (b Book) Available() bool {
	return b.AvailableCopies > 0
}

// BookInput is the body of an admin create or update.
type BookInput struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Genre       string `json:"genre"`
	Publisher   string `json:"publisher"`
	Description string `json:"description"`
	TotalCopies int    `json:"total_copies"`
}

// Validate checks the fields the catalog requires.
func (in BookInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.Length(1, 255)),
		validation.Field(&in.Author, validation.Length(0, 255)),
		validation.Field(&in.TotalCopies, validation.Required, validation.Min(1)),
	)
}

// User is a library account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	ProfileImage string    `json:"profile_image,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// Roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "user"
)

// Loan pairs a loan record with the book it refers to and its status on
// the day it was read.
type Loan struct {
	Record loan.Record `json:"record"`
	Book   Book        `json:"book"`
	Status loan.Status `json:"status"`
}

// Transaction is a loan as listed on the admin dashboard.
type Transaction struct {
	Record    loan.Record `json:"record"`
	BookTitle string      `json:"book_title"`
	Author    string      `json:"book_author,omitempty"`
	UserID    string      `json:"user_id"`
	UserName  string      `json:"user_name"`
	UserEmail string      `json:"user_email,omitempty"`
	Status    loan.Status `json:"status"`
}

// DashboardStats are the admin overview counters.
type DashboardStats struct {
	BooksCount         int                 `json:"books_count"`
	UsersCount         int                 `json:"users_count"`
	TransactionsCount  int                 `json:"transactions_count"`
	OverdueCount       int                 `json:"overdue_count"`
	RecentTransactions []RecentTransaction `json:"recent_transactions"`
}

// RecentTransaction is a row of the admin activity feed.
type RecentTransaction struct {
	ID           string      `json:"id"`
	UserName     string      `json:"user_name"`
	BookTitle    string      `json:"book_title"`
	BorrowedDate loan.Date   `json:"borrowed_date"`
	DueDate      loan.Date   `json:"due_date"`
	ReturnedDate loan.Date   `json:"returned_date,omitempty"`
	Status       loan.Status `json:"status"`
}
