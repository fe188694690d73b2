package library

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"libreshelf/internal/apitest"
)

func newShelf(t *testing.T, api *apitest.Server, store SessionStore) *Shelf {
	t.Helper()
	return NewShelf(store,
		WithBaseURL(api.URL),
		WithHTTPClient(api.Client()),
		WithLogger(quietLogger()),
	)
}

func TestLoginStoresTokenRoleAndName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			var in map[string]string
			_ = json.NewDecoder(r.Body).Decode(&in)
			if in["identifier"] != "alice" || in["password"] != "pw" {
				t.Errorf("login body = %v", in)
			}
			_, _ = w.Write([]byte(`{"access_token":"T1"}`))
		case "/users/me":
			if r.Header.Get("Authorization") != "Bearer T1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"role":"teacher","full_name":"Alice A","username":"alice"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	store := NewMemoryStore()
	auth := NewAuth(newTestClient(t, srv, store))

	res, err := auth.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !res.Success || res.Role != RoleTeacher || res.Error != "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := Snapshot(store); got.Token != "T1" || got.Role != RoleTeacher || got.DisplayName != "Alice A" {
		t.Fatalf("session = %+v", got)
	}
	if !auth.IsAllowed(RoleTeacher) {
		t.Fatal("teacher should be allowed teacher actions")
	}
}

func TestLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"bad credentials"}`))
	}))
	defer srv.Close()

	store := NewMemoryStore()
	auth := NewAuth(newTestClient(t, srv, store))

	res, err := auth.Login(context.Background(), "alice", "wrong")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Success || res.Error != "bad credentials" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !errors.Is(res.Cause, ErrRequestFailed) {
		t.Fatalf("cause = %v", res.Cause)
	}
	if Snapshot(store).Authenticated() {
		t.Fatal("failed login must not store a token")
	}
}

func TestLoginWithoutDetailUsesGenericMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	auth := NewAuth(newTestClient(t, srv, NewMemoryStore()))
	res, err := auth.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Error != "Login failed." {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestLoginMissingTokenFails(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	api.AddUser("alice", "alice@example.com", "pw", "Alice A", "teacher")
	api.OmitToken = true

	store := NewMemoryStore()
	shelf := newShelf(t, api, store)
	res, err := shelf.Auth.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Success || res.Error != "Login failed." {
		t.Fatalf("unexpected result %+v", res)
	}
	if api.Requests(http.MethodGet, "/users/me") != 0 {
		t.Fatal("profile must not be fetched without a token")
	}
}

func TestLoginProfileFailureRollsBack(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	api.AddUser("alice", "alice@example.com", "pw", "Alice A", "teacher")
	api.FailProfile = true

	store := NewMemoryStore()
	shelf := newShelf(t, api, store)

	res, err := shelf.Auth.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Success || res.Error != "profile access denied" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !errors.Is(res.Cause, ErrProfileAccessDenied) {
		t.Fatalf("cause = %v", res.Cause)
	}
	if got := Snapshot(store); got != (Session{}) {
		t.Fatalf("session not rolled back: %+v", got)
	}
}

func TestLoginProfileWithoutRoleRollsBack(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	api.OmitRole = true
	api.AddUser("alice", "alice@example.com", "pw", "Alice A", "teacher")

	store := NewMemoryStore()
	shelf := newShelf(t, api, store)

	res, err := shelf.Auth.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Success || res.Role != "" || !errors.Is(res.Cause, ErrProfileAccessDenied) {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := Snapshot(store); got != (Session{}) {
		t.Fatalf("session not rolled back: %+v", got)
	}
}

func TestLoginByEmailAgainstFakeAPI(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	api.AddUser("bob", "bob@example.com", "secret", "", "student")

	store := NewMemoryStore()
	shelf := newShelf(t, api, store)

	res, err := shelf.Auth.Login(context.Background(), "bob@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !res.Success || res.Role != RoleStudent {
		t.Fatalf("unexpected result %+v", res)
	}
	// No full name, so the username is shown.
	if store.DisplayName() != "bob" {
		t.Fatalf("display name = %q", store.DisplayName())
	}
	if shelf.Auth.IsAllowed(RoleTeacher) {
		t.Fatal("student must not pass teacher gate")
	}
}

func TestCheckAuthOnLoad(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	api.AddUser("alice", "alice@example.com", "pw", "Alice A", "admin")

	t.Run("no token makes no request", func(t *testing.T) {
		shelf := newShelf(t, api, NewMemoryStore())
		before := api.TotalRequests()
		if err := shelf.Auth.ValidateSession(context.Background()); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("want ErrUnauthenticated without token, got %v", err)
		}
		if api.TotalRequests() != before {
			t.Fatal("request sent without token")
		}
	})

	t.Run("invalid token clears session", func(t *testing.T) {
		store := NewMemoryStore()
		_ = store.SetToken("garbage")
		_ = store.SetRole(RoleAdmin)
		_ = store.SetDisplayName("Mallory")

		shelf := newShelf(t, api, store)
		if shelf.Auth.CheckAuthOnLoad(context.Background()) {
			t.Fatal("want false for invalid token")
		}
		if got := Snapshot(store); got != (Session{}) {
			t.Fatalf("session not cleared: %+v", got)
		}
		if shelf.Auth.IsAllowed(RoleTeacher) {
			t.Fatal("cleared session must not pass teacher gate")
		}
	})

	t.Run("valid token refreshes role", func(t *testing.T) {
		store := NewMemoryStore()
		_ = store.SetToken(api.TokenFor("alice"))
		_ = store.SetRole(RoleStudent)

		shelf := newShelf(t, api, store)
		if !shelf.Auth.CheckAuthOnLoad(context.Background()) {
			t.Fatal("want true for valid token")
		}
		if store.Role() != RoleAdmin || store.DisplayName() != "Alice A" {
			t.Fatalf("session = %+v", Snapshot(store))
		}
	})

	t.Run("profile without role clears session", func(t *testing.T) {
		noRole := apitest.New()
		defer noRole.Close()
		noRole.OmitRole = true
		noRole.AddUser("alice", "alice@example.com", "pw", "Alice A", "admin")

		store := NewMemoryStore()
		_ = store.SetToken(noRole.TokenFor("alice"))
		_ = store.SetRole(RoleAdmin)

		shelf := newShelf(t, noRole, store)
		if shelf.Auth.CheckAuthOnLoad(context.Background()) {
			t.Fatal("want false for profile without role")
		}
		if got := Snapshot(store); got != (Session{}) {
			t.Fatalf("session not cleared: %+v", got)
		}
	})

	t.Run("network failure clears session", func(t *testing.T) {
		down := httptest.NewServer(http.NotFoundHandler())
		url := down.URL
		down.Close()

		store := NewMemoryStore()
		_ = store.SetToken(api.TokenFor("alice"))
		_ = store.SetRole(RoleAdmin)
		_ = store.SetDisplayName("Alice A")

		shelf := NewShelf(store, WithBaseURL(url), WithLogger(quietLogger()))
		err := shelf.Auth.ValidateSession(context.Background())
		if !IsNetworkError(err) || !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("want network error wrapped in ErrUnauthenticated, got %v", err)
		}
		if got := Snapshot(store); got != (Session{}) {
			t.Fatalf("session not cleared: %+v", got)
		}
	})

	t.Run("cancelled context keeps session", func(t *testing.T) {
		store := NewMemoryStore()
		_ = store.SetToken(api.TokenFor("alice"))
		_ = store.SetRole(RoleAdmin)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		shelf := newShelf(t, api, store)
		if err := shelf.Auth.ValidateSession(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
		if !Snapshot(store).Authenticated() || store.Role() != RoleAdmin {
			t.Fatalf("session changed: %+v", Snapshot(store))
		}
	})
}

func TestIsAllowed(t *testing.T) {
	cases := []struct {
		stored   Role
		required Role
		want     bool
	}{
		{RoleAdmin, RoleTeacher, true},
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleStudent, false},
		{RoleTeacher, RoleTeacher, true},
		{RoleTeacher, RoleAdmin, false},
		{RoleStudent, RoleTeacher, false},
		{RoleStudent, RoleStudent, true},
		{"", RoleStudent, false},
		{"", "", false},
	}
	for _, tc := range cases {
		store := NewMemoryStore()
		_ = store.SetRole(tc.stored)
		auth := NewAuth(NewClient(store))
		if got := auth.IsAllowed(tc.required); got != tc.want {
			t.Errorf("IsAllowed(stored=%q, required=%q) = %v, want %v", tc.stored, tc.required, got, tc.want)
		}
	}
}

func TestRoleHelpers(t *testing.T) {
	store := NewMemoryStore()
	auth := NewAuth(NewClient(store))

	_ = store.SetRole(RoleAdmin)
	if !auth.IsAdmin() || auth.IsUser() {
		t.Fatal("admin helpers wrong")
	}
	_ = store.SetRole(RoleTeacher)
	if auth.IsAdmin() || !auth.IsUser() {
		t.Fatal("teacher helpers wrong")
	}
	if auth.IsAuthenticated() {
		t.Fatal("role alone is not authentication")
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	store := NewMemoryStore()
	_ = store.SetToken("T1")
	_ = store.SetRole(RoleTeacher)
	_ = store.SetDisplayName("Alice")

	auth := NewAuth(NewClient(store))
	if err := auth.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if got := Snapshot(store); got != (Session{}) {
		t.Fatalf("session = %+v", got)
	}
}

func TestRegister(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	shelf := newShelf(t, api, NewMemoryStore())
	ctx := context.Background()

	resp, err := shelf.Auth.Register(ctx, NewStudentRegistration("carol", "Carol C", "carol@example.com", "pw"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if id, ok := resp.Identifier(); !ok || id == "" {
		t.Fatalf("want identifier, got %v", resp)
	}

	resp, err = shelf.Auth.Register(ctx, NewStudentRegistration("carol", "Carol C", "carol@example.com", "pw"))
	if err != nil {
		t.Fatalf("duplicate register: %v", err)
	}
	if msg, ok := resp.Detail(); !ok || msg != "Username already registered" {
		t.Fatalf("detail = %q, %v", msg, ok)
	}

	resp, err = shelf.Auth.Register(ctx, NewStudentRegistration("dave", "", "", ""))
	if err != nil {
		t.Fatalf("invalid register: %v", err)
	}
	if msg, _ := resp.Detail(); msg != "email is required, password is required" {
		t.Fatalf("detail = %q", msg)
	}
	if _, ok := resp.Identifier(); ok {
		t.Fatal("validation failure must not carry an identifier")
	}
}
