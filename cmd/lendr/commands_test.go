package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/starford/lendr/internal/apperr"
	"github.com/starford/lendr/internal/loan"
	"github.com/starford/lendr/internal/models"
	"github.com/starford/lendr/internal/testutil"
)

func TestPrintBooks(t *testing.T) {
	var buf bytes.Buffer
	err := printBooks(&buf, []models.Book{
		{ID: "1", Title: "Dune", Author: "Herbert", AvailableCopies: 2, TotalCopies: 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if fields := strings.Fields(lines[1]); len(fields) != 5 || fields[1] != "Dune" || fields[3] != "2" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestPrintLoans(t *testing.T) {
	due, _ := loan.ParseDate("2024-06-08")
	var buf bytes.Buffer
	err := printLoans(&buf, []models.Loan{{
		Record: loan.Record{
			ID:         "7",
			BookID:     "1",
			BorrowedAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
			DueDate:    due,
		},
		Book:   models.Book{Title: "Dune"},
		Status: loan.StatusActive,
	}})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"2024-06-01", "2024-06-08", "active", "Dune"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func writeConfig(t *testing.T, baseURL, token string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf("library:\n  base_url: %s\n  token: %q\nloan:\n  max_duration_days: 7\n", baseURL, token)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out, logs bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &logs
	err := app.Run(context.Background(), append([]string{"lendr"}, args...))
	return out.String(), err
}

func today() loan.Date {
	return loan.DateOf(time.Now().UTC())
}

func TestCheck_OfflineNoCopies(t *testing.T) {
	fake := testutil.NewFakeLibrary(t)
	cfg := writeConfig(t, fake.URL(), testutil.FakeToken)

	_, err := runCLI(t, "-c", cfg, "check", "--due", today().AddDays(1).String(), "--copies", "0")
	if !errors.Is(err, loan.ErrNoCopiesAvailable) {
		t.Fatalf("err = %v, want no_copies_available", err)
	}
	if calls := fake.Calls(); len(calls) != 0 {
		t.Errorf("offline check called the library: %v", calls)
	}
}

func TestCheck_OfflineAgainstPolicy(t *testing.T) {
	fake := testutil.NewFakeLibrary(t)
	cfg := writeConfig(t, fake.URL(), testutil.FakeToken)

	due := today().AddDays(3)
	out, err := runCLI(t, "-c", cfg, "check", "--due", due.String(), "--copies", "2")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if want := "ok: a loan until " + due.String() + " is within policy"; !strings.Contains(out, want) {
		t.Errorf("output = %q, want %q", out, want)
	}

	_, err = runCLI(t, "-c", cfg, "check", "--due", today().AddDays(8).String(), "--copies", "2")
	if !errors.Is(err, loan.ErrDueDateExceedsPolicy) {
		t.Errorf("err = %v, want due_date_exceeds_policy", err)
	}

	_, err = runCLI(t, "-c", cfg, "check", "--due", today().AddDays(-1).String(), "--copies", "2")
	if !errors.Is(err, loan.ErrDueDateInPast) {
		t.Errorf("err = %v, want due_date_in_past", err)
	}

	if calls := fake.Calls(); len(calls) != 0 {
		t.Errorf("offline check called the library: %v", calls)
	}
}

func TestCheck_Online(t *testing.T) {
	fake := testutil.NewFakeLibrary(t)
	book := fake.AddBook("Dune", 1)
	id := strconv.Itoa(book)
	cfg := writeConfig(t, fake.URL(), testutil.FakeToken)

	out, err := runCLI(t, "-c", cfg, "check", "--due", today().AddDays(2).String(), id)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "ok: book "+id+" can be borrowed") {
		t.Errorf("output = %q", out)
	}
	if fake.CallCount(testutil.BookPath(book)) != 0 {
		t.Error("check must not borrow")
	}
}

func TestBorrowReturnRoundTrip(t *testing.T) {
	fake := testutil.NewFakeLibrary(t)
	book := fake.AddBook("Dune", 1)
	cfg := writeConfig(t, fake.URL(), testutil.FakeToken)

	out, err := runCLI(t, "-c", cfg, "borrow", "--due", today().AddDays(3).String(), strconv.Itoa(book))
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "active") {
		t.Fatalf("borrow output = %q", out)
	}
	loanID := strings.Fields(lines[1])[0]
	if fake.Book(book).AvailableCopies != 0 {
		t.Errorf("copies after borrow = %d", fake.Book(book).AvailableCopies)
	}

	out, err = runCLI(t, "-c", cfg, "return", loanID)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if !strings.Contains(out, "returned") {
		t.Errorf("return output = %q", out)
	}
	if fake.Book(book).AvailableCopies != 1 {
		t.Errorf("copies after return = %d", fake.Book(book).AvailableCopies)
	}

	_, err = runCLI(t, "-c", cfg, "return", loanID)
	if !errors.Is(err, loan.ErrAlreadyReturned) {
		t.Errorf("second return: err = %v, want already_returned", err)
	}
}

func TestBorrow_RejectedLocally(t *testing.T) {
	fake := testutil.NewFakeLibrary(t)
	book := fake.AddBook("Dune", 1)
	cfg := writeConfig(t, fake.URL(), testutil.FakeToken)

	_, err := runCLI(t, "-c", cfg, "borrow", "--due", today().AddDays(30).String(), strconv.Itoa(book))
	if !errors.Is(err, loan.ErrDueDateExceedsPolicy) {
		t.Fatalf("err = %v, want due_date_exceeds_policy", err)
	}
	if n := fake.CallCount(testutil.BookPath(book)); n != 0 {
		t.Errorf("rejected borrow reached the library %d times", n)
	}

	if _, err := runCLI(t, "-c", cfg, "borrow", "--due", "next week", strconv.Itoa(book)); err == nil {
		t.Error("malformed --due should fail")
	}
}

func TestBooks_Filters(t *testing.T) {
	fake := testutil.NewFakeLibrary(t)
	annals := fake.AddBook("Annals", 1)
	fake.AddBook("Beowulf", 1)
	fake.AddLoan(annals, today().AddDays(2).String(), false)
	cfg := writeConfig(t, fake.URL(), testutil.FakeToken)

	out, err := runCLI(t, "-c", cfg, "books")
	if err != nil {
		t.Fatalf("books: %v", err)
	}
	if !strings.Contains(out, "Annals") || !strings.Contains(out, "Beowulf") {
		t.Errorf("all = %q", out)
	}

	out, err = runCLI(t, "-c", cfg, "books", "--available")
	if err != nil {
		t.Fatalf("books --available: %v", err)
	}
	if strings.Contains(out, "Annals") || !strings.Contains(out, "Beowulf") {
		t.Errorf("available = %q", out)
	}

	out, err = runCLI(t, "-c", cfg, "books", "--borrowed")
	if err != nil {
		t.Fatalf("books --borrowed: %v", err)
	}
	if !strings.Contains(out, "Annals") || strings.Contains(out, "Beowulf") {
		t.Errorf("borrowed = %q", out)
	}

	_, err = runCLI(t, "-c", cfg, "books", "--available", "--borrowed")
	if err == nil || !strings.Contains(err.Error(), "exclusive") {
		t.Errorf("err = %v, want exclusive-flag error", err)
	}
}

func TestTokenFlag(t *testing.T) {
	fake := testutil.NewFakeLibrary(t)
	fake.AddBook("Dune", 1)
	cfg := writeConfig(t, fake.URL(), "")

	if _, err := runCLI(t, "-c", cfg, "loans"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("without token: err = %v, want unauthorized", err)
	}

	out, err := runCLI(t, "-c", cfg, "--token", testutil.FakeToken, "loans")
	if err != nil {
		t.Fatalf("loans with --token: %v", err)
	}
	if !strings.HasPrefix(out, "LOAN") {
		t.Errorf("output = %q", out)
	}
}
