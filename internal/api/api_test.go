package api

import (
	"bytes"
	stdjson "encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/starford/lendr/internal/lending"
	"github.com/starford/lendr/internal/libraryapi"
	"github.com/starford/lendr/internal/loan"
	"github.com/starford/lendr/internal/models"
	"github.com/starford/lendr/internal/testutil"
)

var testNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

// testEnv wires a router to a fake library API in static auth mode.
func testEnv(t *testing.T) (*testutil.FakeLibrary, http.Handler) {
	t.Helper()
	return testEnvFull(t, RouterConfig{AuthMode: AuthModeStatic}, libraryapi.WithToken(testutil.FakeToken))
}

func testEnvFull(t *testing.T, cfg RouterConfig, opts ...libraryapi.Option) (*testutil.FakeLibrary, http.Handler) {
	t.Helper()
	fake := testutil.NewFakeLibrary(t)
	client := libraryapi.New(fake.URL(), opts...)
	clock := loan.FixedClock(testNow)
	svc := lending.NewService(client, clock, lending.StaticPolicy(loan.DefaultPolicy()))
	admin := lending.NewAdmin(client, clock, nil)
	return fake, NewRouter(svc, admin, cfg)
}

func do(t *testing.T, h http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := stdjson.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := stdjson.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestPolicy(t *testing.T) {
	_, router := testEnv(t)

	w := do(t, router, http.MethodGet, "/policy", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[PolicyResponse](t, w)
	if resp.Policy.MaxDurationDays != 7 {
		t.Errorf("max = %d, want 7", resp.Policy.MaxDurationDays)
	}
	if resp.Today.String() != "2024-06-01" || resp.Latest.String() != "2024-06-08" {
		t.Errorf("today = %s, latest = %s", resp.Today, resp.Latest)
	}
	if resp.Earliest == nil || resp.Earliest.String() != "2024-06-01" {
		t.Errorf("earliest = %v, want 2024-06-01", resp.Earliest)
	}
}

func TestBorrowAndReturn(t *testing.T) {
	fake, router := testEnv(t)
	book := fake.AddBook("Dune", 1)

	w := do(t, router, http.MethodPost, "/books/"+strconv.Itoa(book)+"/borrow", BorrowRequest{DueDate: "2024-06-08"})
	if w.Code != http.StatusCreated {
		t.Fatalf("borrow status = %d, body = %s", w.Code, w.Body.String())
	}
	borrowed := decode[models.Loan](t, w)
	if borrowed.Status != loan.StatusActive {
		t.Errorf("status = %q, want active", borrowed.Status)
	}
	if borrowed.Record.ID == "" {
		t.Fatal("loan id missing")
	}

	// The only copy is out now.
	w = do(t, router, http.MethodPost, "/books/"+strconv.Itoa(book)+"/borrow", BorrowRequest{DueDate: "2024-06-08"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("second borrow = %d, want 422", w.Code)
	}
	if kind := decode[errResponse](t, w).Kind; kind != string(loan.KindNoCopiesAvailable) {
		t.Errorf("kind = %q", kind)
	}

	w = do(t, router, http.MethodPost, "/loans/"+borrowed.Record.ID+"/return", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("return status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[models.Loan](t, w); got.Status != loan.StatusReturned || got.Record.ReturnedAt == nil {
		t.Errorf("returned loan = %+v", got)
	}

	w = do(t, router, http.MethodPost, "/loans/"+borrowed.Record.ID+"/return", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("second return = %d, want 422", w.Code)
	}
	if kind := decode[errResponse](t, w).Kind; kind != string(loan.KindAlreadyReturned) {
		t.Errorf("kind = %q", kind)
	}
}

func TestBorrowRejections(t *testing.T) {
	fake, router := testEnv(t)
	path := "/books/" + strconv.Itoa(fake.AddBook("Dune", 1)) + "/borrow"

	cases := []struct {
		name   string
		body   any
		status int
		kind   loan.RejectionKind
	}{
		{"past", BorrowRequest{DueDate: "2024-05-31"}, http.StatusUnprocessableEntity, loan.KindDueDateInPast},
		{"too far", BorrowRequest{DueDate: "2024-06-09"}, http.StatusUnprocessableEntity, loan.KindDueDateExceedsPolicy},
		{"no body", nil, http.StatusUnprocessableEntity, loan.KindDueDateMissing},
		{"bad format", BorrowRequest{DueDate: "06/08/2024"}, http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, path, tc.body)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d, body = %s", w.Code, tc.status, w.Body.String())
			}
			if got := decode[errResponse](t, w).Kind; got != string(tc.kind) {
				t.Errorf("kind = %q, want %q", got, tc.kind)
			}
		})
	}

	if n := len(fake.Calls()); n == 0 {
		t.Fatal("expected catalog reads")
	}
	for _, c := range fake.Calls() {
		if c == "POST "+path {
			t.Errorf("rejected borrow reached the library API")
		}
	}

	w := do(t, router, http.MethodPost, "/books/404/borrow", BorrowRequest{DueDate: "2024-06-02"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown book = %d, want 404", w.Code)
	}
}

func TestCheckBorrow(t *testing.T) {
	fake, router := testEnv(t)
	id := fake.AddBook("Dune", 1)
	book := strconv.Itoa(id)

	w := do(t, router, http.MethodPost, "/borrow/check", CheckRequest{DueDate: "2024-06-03"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	if kind := decode[errResponse](t, w).Kind; kind != string(loan.KindBookIDMissing) {
		t.Errorf("kind = %q", kind)
	}

	w = do(t, router, http.MethodPost, "/borrow/check", CheckRequest{BookID: book, DueDate: "2024-06-03"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[CheckResponse](t, w)
	if !resp.OK || resp.BookID != book || resp.DueDate.String() != "2024-06-03" {
		t.Errorf("response = %+v", resp)
	}
	if fake.CallCount(testutil.BookPath(id)) != 0 {
		t.Error("check must not borrow")
	}
}

func TestBooksLoansDashboard(t *testing.T) {
	fake, router := testEnv(t)
	a := fake.AddBook("Annals", 1)
	fake.AddBook("Beowulf", 1)
	fake.AddLoan(a, "2024-05-30", false)

	w := do(t, router, http.MethodGet, "/books?filter=available", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	books := decode[BookListResponse](t, w)
	if len(books.Books) != 1 || books.Books[0].Title != "Beowulf" {
		t.Errorf("available books = %+v", books.Books)
	}

	w = do(t, router, http.MethodGet, "/books?filter=lost", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad filter = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodGet, "/loans", nil)
	loans := decode[LoanListResponse](t, w)
	if len(loans.Loans) != 1 || loans.Loans[0].Status != loan.StatusOverdue {
		t.Errorf("loans = %+v", loans.Loans)
	}

	w = do(t, router, http.MethodGet, "/dashboard?filter=borrowed", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", w.Code)
	}
	d := decode[lending.Dashboard](t, w)
	if d.Counts.Overdue != 1 || len(d.Books) != 1 || d.Books[0].Title != "Annals" {
		t.Errorf("dashboard = %+v", d)
	}
}

func TestAuthStatic(t *testing.T) {
	_, router := testEnvFull(t, RouterConfig{AuthMode: AuthModeStatic, Token: "gw-secret"},
		libraryapi.WithToken(testutil.FakeToken))

	if w := do(t, router, http.MethodGet, "/loans", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/loans", nil, "Authorization", "Bearer nope"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/loans", nil, "Authorization", "Bearer gw-secret"); w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthForward(t *testing.T) {
	fake, router := testEnvFull(t, RouterConfig{AuthMode: AuthModeForward})

	if w := do(t, router, http.MethodGet, "/loans", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
	if len(fake.Calls()) != 0 {
		t.Errorf("unauthenticated request reached the library API")
	}
	if w := do(t, router, http.MethodGet, "/loans", nil, "Authorization", "Bearer "+testutil.FakeToken); w.Code != http.StatusOK {
		t.Errorf("forwarded token = %d, want 200", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/loans", nil, "Authorization", "Bearer stale"); w.Code != http.StatusUnauthorized {
		t.Errorf("rejected token = %d, want 401", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	l, err := NewRateLimiter("2-M")
	if err != nil {
		t.Fatal(err)
	}
	_, router := testEnvFull(t, RouterConfig{AuthMode: AuthModeStatic, Limiter: l},
		libraryapi.WithToken(testutil.FakeToken))

	for i := 0; i < 2; i++ {
		if w := do(t, router, http.MethodGet, "/policy", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, w.Code)
		}
	}
	w := do(t, router, http.MethodGet, "/policy", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", w.Code)
	}
	if w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("remaining = %q", w.Header().Get("X-RateLimit-Remaining"))
	}

	if _, err := NewRateLimiter("lots"); err == nil {
		t.Error("malformed rate should fail")
	}
}

func TestAdminRoutes(t *testing.T) {
	fake, router := testEnv(t)
	book := fake.AddBook("Dune", 2)
	fake.AddLoan(book, "2024-05-30", false)

	w := do(t, router, http.MethodGet, "/admin/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats = %d", w.Code)
	}
	stats := decode[models.DashboardStats](t, w)
	if stats.OverdueCount != 1 || stats.RecentTransactions[0].Status != loan.StatusOverdue {
		t.Errorf("stats = %+v", stats)
	}

	w = do(t, router, http.MethodPost, "/admin/books", models.BookInput{Author: "Anon"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid create = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPost, "/admin/books", models.BookInput{Title: "Emma", TotalCopies: 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	created := decode[models.Book](t, w)

	w = do(t, router, http.MethodGet, "/admin/books?per_page=1&page=2", nil)
	page := decode[models.Page[models.Book]](t, w)
	if page.Meta.Total != 2 || len(page.Items) != 1 || page.Items[0].Title != "Emma" {
		t.Errorf("page = %+v", page)
	}

	w = do(t, router, http.MethodGet, "/admin/transactions", nil)
	txs := decode[models.Page[models.Transaction]](t, w)
	if len(txs.Items) != 1 || txs.Items[0].Status != loan.StatusOverdue {
		t.Errorf("transactions = %+v", txs.Items)
	}

	if w := do(t, router, http.MethodDelete, "/admin/books/"+created.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/admin/books/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/admin/users/1", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete user = %d", w.Code)
	}
}

func TestRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := libraryapi.New(srv.URL, libraryapi.WithToken("x"))
	svc := lending.NewService(client, loan.FixedClock(testNow), lending.StaticPolicy(loan.DefaultPolicy()))
	router := NewRouter(svc, lending.NewAdmin(client, loan.FixedClock(testNow), nil), RouterConfig{})

	if w := do(t, router, http.MethodGet, "/loans", nil); w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}
