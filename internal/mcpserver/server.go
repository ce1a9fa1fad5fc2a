// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes lendr tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lendr/internal/lending"
	"github.com/starford/lendr/internal/loan"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server wraps the MCP server with lendr tools.
type Server struct {
	mcp *server.MCPServer
	svc *lending.Service
}

// New creates a new MCP server with all lendr tools registered.
func New(svc *lending.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"lendr",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_loan_policy",
		mcp.WithDescription("Returns the loan policy in force and the due dates it permits today. "+
			"Call this before borrow_book to pick a valid due date."),
	), s.getLoanPolicy)

	s.mcp.AddTool(mcp.NewTool("list_books",
		mcp.WithDescription("List the library catalog."),
		mcp.WithString("filter",
			mcp.Description("Optional filter: all (default), available or borrowed"),
			mcp.Enum("all", "available", "borrowed"),
		),
	), s.listBooks)

	s.mcp.AddTool(mcp.NewTool("list_loans",
		mcp.WithDescription("List the member's loans with their status (active, overdue, returned)."),
	), s.listLoans)

	s.mcp.AddTool(mcp.NewTool("check_borrow",
		mcp.WithDescription("Check whether a book can be borrowed until a due date, without borrowing it."),
		mcp.WithString("book_id", mcp.Required(), mcp.Description("Catalog id of the book")),
		mcp.WithString("due_date", mcp.Required(), mcp.Description("Due date, YYYY-MM-DD")),
	), s.checkBorrow)

	s.mcp.AddTool(mcp.NewTool("borrow_book",
		mcp.WithDescription("Borrow a book until a due date."),
		mcp.WithString("book_id", mcp.Required(), mcp.Description("Catalog id of the book")),
		mcp.WithString("due_date", mcp.Required(), mcp.Description("Due date, YYYY-MM-DD")),
	), s.borrowBook)

	s.mcp.AddTool(mcp.NewTool("return_book",
		mcp.WithDescription("Return a borrowed book."),
		mcp.WithString("loan_id", mcp.Required(), mcp.Description("Id of the loan, as shown by list_loans")),
	), s.returnBook)

	s.mcp.AddResource(
		mcp.NewResource(PolicyResourceURI, "Loan Policy",
			mcp.WithResourceDescription("Borrowing rules in force: due-date bounds, rejection order and loan status."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPolicyResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// errorResult reports rejections with their kind so the caller can correct
// the request.
func errorResult(err error) *mcp.CallToolResult {
	var rej *loan.Rejection
	if errors.As(err, &rej) {
		return mcp.NewToolResultError(fmt.Sprintf("rejected (%s): %s", rej.Kind, rej.Message))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) borrowArgs(req mcp.CallToolRequest) (string, loan.Date, error) {
	bookID, err := req.RequireString("book_id")
	if err != nil {
		return "", loan.Date{}, err
	}
	raw, err := req.RequireString("due_date")
	if err != nil {
		return "", loan.Date{}, err
	}
	due, err := loan.ParseDate(raw)
	if err != nil {
		return "", loan.Date{}, err
	}
	return bookID, due, nil
}

func (s *Server) getLoanPolicy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(renderPolicy(s.svc.Policy(), s.svc.Today())), nil
}

func (s *Server) readPolicyResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      PolicyResourceURI,
			MIMEType: "text/markdown",
			Text:     renderPolicy(s.svc.Policy(), s.svc.Today()),
		},
	}, nil
}

func (s *Server) listBooks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := ""
	if f, err := req.RequireString("filter"); err == nil {
		raw = f
	}
	filter, err := lending.ParseFilter(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	books, err := s.svc.Books(ctx, filter)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(books)
}

func (s *Server) listLoans(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loans, err := s.svc.Loans(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(loans)
}

func (s *Server) checkBorrow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bookID, due, err := s.borrowArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.svc.CheckBorrow(ctx, bookID, due)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("ok: book %s can be borrowed until %s", v.BookID(), v.DueDate())), nil
}

func (s *Server) borrowBook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bookID, due, err := s.borrowArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	l, err := s.svc.Borrow(ctx, bookID, due)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(l)
}

func (s *Server) returnBook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loanID, err := req.RequireString("loan_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	l, err := s.svc.Return(ctx, loanID)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(l)
}
