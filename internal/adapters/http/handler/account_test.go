package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ogurasousui/codex-account-service/internal/core/account"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAccountUseCase struct {
	createInput account.CreateAccountInput
	createOut   *account.View
	createErr   error

	updateInput account.UpdateAccountInput
	updateOut   *account.View
	updateErr   error

	deleteInput account.DeleteAccountInput
	deleteErr   error

	getInput account.GetAccountInput
	getOut   *account.View
	getErr   error

	byEmail    string
	byEmailOut *account.View
	byEmailErr error

	listInput account.ListAccountsInput
	listOut   []*account.View
	listErr   error

	verifyToken string
	verifyOK    bool
	verifyErr   error

	principal    *account.Principal
	principalErr error
}

func (s *stubAccountUseCase) CreateAccount(_ context.Context, in account.CreateAccountInput) (*account.View, error) {
	s.createInput = in
	return s.createOut, s.createErr
}

func (s *stubAccountUseCase) UpdateAccount(_ context.Context, in account.UpdateAccountInput) (*account.View, error) {
	s.updateInput = in
	return s.updateOut, s.updateErr
}

func (s *stubAccountUseCase) DeleteAccount(_ context.Context, in account.DeleteAccountInput) error {
	s.deleteInput = in
	return s.deleteErr
}

func (s *stubAccountUseCase) GetAccount(_ context.Context, in account.GetAccountInput) (*account.View, error) {
	s.getInput = in
	return s.getOut, s.getErr
}

func (s *stubAccountUseCase) GetAccountByEmail(_ context.Context, email string) (*account.View, error) {
	s.byEmail = email
	return s.byEmailOut, s.byEmailErr
}

func (s *stubAccountUseCase) ListAccounts(_ context.Context, in account.ListAccountsInput) ([]*account.View, error) {
	s.listInput = in
	return s.listOut, s.listErr
}

func (s *stubAccountUseCase) VerifyEmailToken(_ context.Context, token string) (bool, error) {
	s.verifyToken = token
	return s.verifyOK, s.verifyErr
}

func (s *stubAccountUseCase) LoadPrincipal(_ context.Context, _ string) (*account.Principal, error) {
	return s.principal, s.principalErr
}

type stubVerifier struct {
	ok bool
}

func (s stubVerifier) Compare(_, _ string) bool {
	return s.ok
}

type recordingObserver struct {
	routes []string
	codes  []int
}

func (r *recordingObserver) ObserveRequest(_ string, route string, code int, _ time.Duration) {
	r.routes = append(r.routes, route)
	r.codes = append(r.codes, code)
}

func newRouter(svc account.UseCase, verifier PasswordVerifier, observer RequestObserver) *gin.Engine {
	r := gin.New()
	r.Use(Observe(observer, nil))
	NewAccountHandler(svc, verifier).Register(r)
	return r
}

func doRequest(t *testing.T, r http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sampleView() *account.View {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &account.View{
		AccountID: "acc-1",
		Email:     "alice@example.com",
		FirstName: "Alice",
		LastName:  "Smith",
		Addresses: []account.Address{{AddressID: "addr-1", AccountID: "acc-1", City: "Berlin", Country: "DE"}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestAccountHandler_CreateAccount(t *testing.T) {
	t.Parallel()

	stub := &stubAccountUseCase{createOut: sampleView()}
	r := newRouter(stub, stubVerifier{}, nil)

	w := doRequest(t, r, http.MethodPost, "/users", map[string]any{
		"firstName": "Alice",
		"lastName":  "Smith",
		"email":     "alice@example.com",
		"password":  "secret",
		"addresses": []map[string]string{{"city": "Berlin", "country": "DE"}},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if stub.createInput.Email != "alice@example.com" || len(stub.createInput.Addresses) != 1 {
		t.Fatalf("unexpected input: %+v", stub.createInput)
	}

	var resp AccountResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.AccountID != "acc-1" || len(resp.Addresses) != 1 || resp.Addresses[0].AddressID != "addr-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Fatalf("response must not contain password fields: %s", w.Body.String())
	}
}

func TestAccountHandler_CreateAccount_ValidationError(t *testing.T) {
	t.Parallel()

	stub := &stubAccountUseCase{}
	r := newRouter(stub, stubVerifier{}, nil)

	w := doRequest(t, r, http.MethodPost, "/users", map[string]any{
		"firstName": "Alice",
		"email":     "not-an-email",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Details) == 0 {
		t.Fatalf("expected validation details, got %+v", resp)
	}
	if stub.createInput.Email != "" {
		t.Fatalf("use case must not be called on invalid input")
	}
}

func TestAccountHandler_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		code int
	}{
		{account.ErrEmailAlreadyExists, http.StatusConflict},
		{account.ErrInvalidEmail, http.StatusBadRequest},
		{fmt.Errorf("%w: create: %w", account.ErrUnavailable, errors.New("db down")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		stub := &stubAccountUseCase{createErr: tc.err}
		r := newRouter(stub, stubVerifier{}, nil)

		w := doRequest(t, r, http.MethodPost, "/users", map[string]any{
			"firstName": "Alice",
			"lastName":  "Smith",
			"email":     "alice@example.com",
			"password":  "secret",
		})
		if w.Code != tc.code {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.code, w.Code)
		}
		if tc.code >= 500 && bytes.Contains(w.Body.Bytes(), []byte("db down")) {
			t.Errorf("internal error details leaked: %s", w.Body.String())
		}
	}
}

func TestAccountHandler_GetAccount_NotFound(t *testing.T) {
	t.Parallel()

	stub := &stubAccountUseCase{getErr: account.ErrAccountNotFound}
	r := newRouter(stub, stubVerifier{}, nil)

	w := doRequest(t, r, http.MethodGet, "/users/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if stub.getInput.AccountID != "missing" {
		t.Fatalf("unexpected id: %s", stub.getInput.AccountID)
	}
}

func TestAccountHandler_UpdateAccount_PartialNames(t *testing.T) {
	t.Parallel()

	stub := &stubAccountUseCase{updateOut: sampleView()}
	r := newRouter(stub, stubVerifier{}, nil)

	w := doRequest(t, r, http.MethodPut, "/users/acc-1", map[string]any{"lastName": "Jones"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if stub.updateInput.AccountID != "acc-1" || stub.updateInput.FirstName != nil ||
		stub.updateInput.LastName == nil || *stub.updateInput.LastName != "Jones" {
		t.Fatalf("unexpected input: %+v", stub.updateInput)
	}
}

func TestAccountHandler_DeleteAccount(t *testing.T) {
	t.Parallel()

	stub := &stubAccountUseCase{}
	r := newRouter(stub, stubVerifier{}, nil)

	w := doRequest(t, r, http.MethodDelete, "/users/acc-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp OperationStatus
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.OperationName != OperationDelete || resp.OperationResult != ResultSuccess {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAccountHandler_ListAccounts(t *testing.T) {
	t.Parallel()

	stub := &stubAccountUseCase{listOut: []*account.View{sampleView()}}
	r := newRouter(stub, stubVerifier{}, nil)

	w := doRequest(t, r, http.MethodGet, "/users?page=2&limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if stub.listInput.PageIndex != 2 || stub.listInput.PageSize != 10 {
		t.Fatalf("unexpected input: %+v", stub.listInput)
	}

	w = doRequest(t, r, http.MethodGet, "/users", nil)
	if w.Code != http.StatusOK || stub.listInput.PageIndex != 0 || stub.listInput.PageSize != defaultPageSize {
		t.Fatalf("unexpected defaults: code=%d input=%+v", w.Code, stub.listInput)
	}

	w = doRequest(t, r, http.MethodGet, "/users?limit=500", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit, got %d", w.Code)
	}
}

func TestAccountHandler_ListAccounts_ByEmail(t *testing.T) {
	t.Parallel()

	stub := &stubAccountUseCase{byEmailOut: sampleView()}
	r := newRouter(stub, stubVerifier{}, nil)

	w := doRequest(t, r, http.MethodGet, "/users?email=alice@example.com", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if stub.byEmail != "alice@example.com" {
		t.Fatalf("unexpected email lookup: %q", stub.byEmail)
	}

	var resp ListAccountsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Accounts) != 1 {
		t.Fatalf("expected single account, got %d", len(resp.Accounts))
	}
}

func TestAccountHandler_VerifyEmailToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		ok     bool
		err    error
		code   int
		result string
	}{
		{name: "success", ok: true, code: http.StatusOK, result: ResultSuccess},
		{name: "rejected", ok: false, code: http.StatusOK, result: ResultError},
		{name: "unavailable", err: account.ErrUnavailable, code: http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		stub := &stubAccountUseCase{verifyOK: tc.ok, verifyErr: tc.err}
		r := newRouter(stub, stubVerifier{}, nil)

		w := doRequest(t, r, http.MethodGet, "/users/email-verification?token=abc", nil)
		if w.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.code, w.Code)
		}
		if stub.verifyToken != "abc" {
			t.Fatalf("%s: unexpected token %q", tc.name, stub.verifyToken)
		}
		if tc.result == "" {
			continue
		}

		var resp OperationStatus
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: failed to decode response: %v", tc.name, err)
		}
		if resp.OperationName != OperationVerifyEmail || resp.OperationResult != tc.result {
			t.Fatalf("%s: unexpected response: %+v", tc.name, resp)
		}
	}
}

func TestAccountHandler_VerifyEmailToken_MissingToken(t *testing.T) {
	t.Parallel()

	r := newRouter(&stubAccountUseCase{}, stubVerifier{}, nil)

	w := doRequest(t, r, http.MethodGet, "/users/email-verification", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAccountHandler_Login(t *testing.T) {
	t.Parallel()

	enabled := &account.Principal{Username: "alice@example.com", Password: "hash", Enabled: true, Authorities: []string{}}
	disabled := &account.Principal{Username: "alice@example.com", Password: "hash", Enabled: false, Authorities: []string{}}

	cases := []struct {
		name      string
		principal *account.Principal
		err       error
		match     bool
		code      int
	}{
		{name: "ok", principal: enabled, match: true, code: http.StatusOK},
		{name: "wrong password", principal: enabled, match: false, code: http.StatusUnauthorized},
		{name: "unknown", err: account.ErrAccountNotFound, code: http.StatusUnauthorized},
		{name: "unverified", principal: disabled, match: true, code: http.StatusForbidden},
	}

	for _, tc := range cases {
		stub := &stubAccountUseCase{principal: tc.principal, principalErr: tc.err}
		r := newRouter(stub, stubVerifier{ok: tc.match}, nil)

		w := doRequest(t, r, http.MethodPost, "/users/login", map[string]string{
			"email":    "alice@example.com",
			"password": "secret",
		})
		if w.Code != tc.code {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.code, w.Code)
		}
		if bytes.Contains(w.Body.Bytes(), []byte("hash")) {
			t.Errorf("%s: password hash leaked: %s", tc.name, w.Body.String())
		}
	}
}

func TestObserve_RecordsRouteTemplate(t *testing.T) {
	t.Parallel()

	observer := &recordingObserver{}
	stub := &stubAccountUseCase{getOut: sampleView()}
	r := newRouter(stub, stubVerifier{}, observer)

	doRequest(t, r, http.MethodGet, "/users/acc-1", nil)
	doRequest(t, r, http.MethodGet, "/nowhere", nil)

	if len(observer.routes) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(observer.routes))
	}
	if observer.routes[0] != "/users/:id" || observer.codes[0] != http.StatusOK {
		t.Fatalf("unexpected first observation: %s %d", observer.routes[0], observer.codes[0])
	}
	if observer.routes[1] != "unmatched" || observer.codes[1] != http.StatusNotFound {
		t.Fatalf("unexpected second observation: %s %d", observer.routes[1], observer.codes[1])
	}
}
