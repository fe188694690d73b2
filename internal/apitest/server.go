// Package apitest provides an in-process fake of the LibreShelf REST API for
// tests. It keeps users, books and categories in memory, issues HS256 tokens
// and enforces the same role rules as the real service.
package apitest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UploadShape selects how POST /files/upload answers.
type UploadShape int

const (
	// UploadBareString answers with a JSON string.
	UploadBareString UploadShape = iota
	// UploadURLObject answers with {"url": ...}.
	UploadURLObject
	// UploadFileURLObject answers with {"file_url": ...}.
	UploadFileURLObject
	// UploadNoURL answers with an object carrying neither field.
	UploadNoURL
)

// User is a registered account.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Bio      string `json:"bio,omitempty"`
	Password string `json:"-"`
}

// Book is a stored book record.
type Book struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author,omitempty"`
	Description string    `json:"description,omitempty"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	FileURL     string    `json:"file_url,omitempty"`
	Rating      float64   `json:"rating,omitempty"`
	CategoryIDs []int64   `json:"category_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

// Category is a stored category.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Upload records one received file.
type Upload struct {
	Filename    string
	ContentType string
	Size        int
}

// Server is a running fake API.
type Server struct {
	*httptest.Server

	secret []byte

	mu          sync.Mutex
	users       map[string]*User
	books       map[int64]*Book
	categories  []Category
	uploads     []Upload
	nextUserID  int64
	nextBookID  int64
	requests    map[string]int
	lastHeaders map[string]http.Header
	lastQuery   map[string]string
	lastBody    map[string]string

	// FailProfile makes GET /users/me answer 403.
	FailProfile bool
	// OmitToken makes a successful login answer without access_token.
	OmitToken bool
	// OmitRole makes GET /users/me answer without a role field.
	OmitRole bool
	// Shape controls the upload response.
	Shape UploadShape
	// TokenTTL is the lifetime of issued tokens. Defaults to one hour.
	TokenTTL time.Duration
}

// New starts a fake API. Callers must Close it.
func New() *Server {
	s := &Server{
		secret:      []byte(uuid.NewString()),
		users:       make(map[string]*User),
		books:       make(map[int64]*Book),
		requests:    make(map[string]int),
		lastHeaders: make(map[string]http.Header),
		lastQuery:   make(map[string]string),
		lastBody:    make(map[string]string),
		TokenTTL:    time.Hour,
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/register", s.handleRegister)
	r.Get("/categories", s.handleCategories)
	r.Get("/books", s.handleListBooks)
	r.Get("/books/{id}", s.handleGetBook)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/users/me", s.handleMe)
		r.Post("/files/upload", s.handleUpload)

		r.Group(func(r chi.Router) {
			r.Use(requireRole("teacher", "admin"))
			r.Post("/books", s.handleCreateBook)
			r.Patch("/books/{id}", s.handleUpdateBook)
			r.Delete("/books/{id}", s.handleDeleteBook)
		})
	})
	return r
}

// ---------------------------------------------------------------------------
// Seeding and inspection
// ---------------------------------------------------------------------------

// AddUser registers an account directly.
func (s *Server) AddUser(username, email, password, fullName, role string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, email, password, fullName, role)
}

func (s *Server) addUserLocked(username, email, password, fullName, role string) *User {
	s.nextUserID++
	u := &User{
		ID:       s.nextUserID,
		Username: username,
		FullName: fullName,
		Email:    email,
		Role:     role,
		Password: password,
	}
	s.users[username] = u
	return u
}

// AddCategory stores a category and returns its id.
func (s *Server) AddCategory(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.categories) + 1)
	s.categories = append(s.categories, Category{ID: id, Name: name})
	return id
}

// AddBook stores a book and returns its id.
func (s *Server) AddBook(title, author string, categoryIDs ...int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBookID++
	s.books[s.nextBookID] = &Book{
		ID:          s.nextBookID,
		Title:       title,
		Author:      author,
		CategoryIDs: append([]int64{}, categoryIDs...),
		CreatedAt:   time.Now().UTC(),
	}
	return s.nextBookID
}

// Book returns a copy of the stored book.
func (s *Server) Book(id int64) (Book, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return Book{}, false
	}
	return *b, true
}

// Uploads returns the files received so far.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// TokenFor issues a valid token for an existing user.
func (s *Server) TokenFor(username string) string {
	s.mu.Lock()
	u, ok := s.users[username]
	s.mu.Unlock()
	if !ok {
		return ""
	}
	tok, err := s.issueToken(u)
	if err != nil {
		return ""
	}
	return tok
}

// Requests returns how many times "METHOD /path" was hit.
func (s *Server) Requests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+path]
}

// TotalRequests returns the number of requests served.
func (s *Server) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.requests {
		n += c
	}
	return n
}

// LastHeaders returns the headers of the latest "METHOD /path" request.
func (s *Server) LastHeaders(method, path string) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeaders[method+" "+path]
}

// LastQuery returns the raw query of the latest "METHOD /path" request.
func (s *Server) LastQuery(method, path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery[method+" "+path]
}

// LastBody returns the JSON body of the most recent request to method and path.
func (s *Server) LastBody(method, path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBody[method+" "+path]
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		var body []byte
		if r.Body != nil && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(strings.NewReader(string(body)))
		}
		s.mu.Lock()
		s.requests[key]++
		s.lastHeaders[key] = r.Header.Clone()
		s.lastQuery[key] = r.URL.RawQuery
		if body != nil {
			s.lastBody[key] = string(body)
		}
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

func (s *Server) issueToken(u *User) (string, error) {
	now := time.Now()
	c := claims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenTTL)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		var c claims
		_, err := jwt.ParseWithClaims(parts[1], &c, func(t *jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		s.mu.Lock()
		u, ok := s.users[c.Subject]
		s.mu.Unlock()
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r, u)))
	})
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := userFrom(r)
			if u == nil {
				writeDetail(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			if _, ok := allowed[u.Role]; !ok {
				writeDetail(w, http.StatusForbidden, "Not enough permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	u := s.findUser(in.Identifier)
	if u == nil || u.Password != in.Password {
		writeDetail(w, http.StatusUnauthorized, "Incorrect identifier or password")
		return
	}
	if s.OmitToken {
		writeJSON(w, http.StatusOK, map[string]string{"token_type": "bearer"})
		return
	}
	tok, err := s.issueToken(u)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": tok, "token_type": "bearer"})
}

func (s *Server) findUser(identifier string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[identifier]; ok {
		return u
	}
	for _, u := range s.users {
		if u.Email != "" && strings.EqualFold(u.Email, identifier) {
			return u
		}
	}
	return nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		FullName string `json:"full_name"`
		Password string `json:"password"`
		Email    string `json:"email"`
		Role     string `json:"role"`
		Bio      string `json:"bio"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	var missing []map[string]any
	for field, v := range map[string]string{"username": in.Username, "password": in.Password, "email": in.Email} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, map[string]any{
				"loc":  []string{"body", field},
				"msg":  field + " is required",
				"type": "missing",
			})
		}
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool {
			return missing[i]["msg"].(string) < missing[j]["msg"].(string)
		})
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": missing})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[in.Username]; exists {
		writeDetail(w, http.StatusBadRequest, "Username already registered")
		return
	}
	role := in.Role
	if role == "" {
		role = "student"
	}
	u := s.addUserLocked(in.Username, in.Email, in.Password, in.FullName, role)
	u.Bio = in.Bio
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if s.FailProfile {
		writeDetail(w, http.StatusForbidden, "Profile unavailable")
		return
	}
	u := userFrom(r)
	if s.OmitRole {
		writeJSON(w, http.StatusOK, map[string]any{"id": u.ID, "username": u.Username})
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]Category{}, s.categories...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := atoiDefault(q.Get("page"), 1)
	limit := atoiDefault(q.Get("limit"), 20)
	search := strings.ToLower(q.Get("search"))
	var category int64
	if c := q.Get("category_id"); c != "" {
		category, _ = strconv.ParseInt(c, 10, 64)
	}

	s.mu.Lock()
	matched := []*Book{}
	for _, b := range s.books {
		if search != "" && !strings.Contains(strings.ToLower(b.Title), search) &&
			!strings.Contains(strings.ToLower(b.Author), search) {
			continue
		}
		if category != 0 && !containsID(b.CategoryIDs, category) {
			continue
		}
		cp := *b
		matched = append(matched, &cp)
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": total,
		"page":  page,
		"limit": limit,
		"books": matched[start:end],
	})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid book id")
		return
	}
	b, ok := s.Book(id)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Book not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	if ids, ok := raw["category_ids"]; !ok || string(ids) == "null" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": []map[string]any{
			{"loc": []string{"body", "category_ids"}, "msg": "category_ids must be a list", "type": "list_type"},
		}})
		return
	}
	var in Book
	if err := remarshal(raw, &in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	if strings.TrimSpace(in.Title) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": []map[string]any{
			{"loc": []string{"body", "title"}, "msg": "title is required", "type": "missing"},
		}})
		return
	}
	s.mu.Lock()
	s.nextBookID++
	in.ID = s.nextBookID
	in.CreatedAt = time.Now().UTC()
	if in.Author == "" {
		if u := userFrom(r); u != nil {
			in.Author = u.FullName
		}
	}
	stored := in
	s.books[in.ID] = &stored
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid book id")
		return
	}
	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Book not found")
		return
	}
	updated := *b
	if err := applyPatch(&updated, patch); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.books[id] = &updated
	writeJSON(w, http.StatusOK, updated)
}

func applyPatch(b *Book, patch map[string]json.RawMessage) error {
	fields := map[string]any{
		"title":        &b.Title,
		"author":       &b.Author,
		"description":  &b.Description,
		"thumbnail":    &b.Thumbnail,
		"file_url":     &b.FileURL,
		"rating":       &b.Rating,
		"category_ids": &b.CategoryIDs,
	}
	for k, raw := range patch {
		dst, ok := fields[k]
		if !ok {
			return fmt.Errorf("unknown field %q", k)
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
	}
	return nil
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid book id")
		return
	}
	s.mu.Lock()
	_, ok := s.books[id]
	delete(s.books, id)
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Book not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeDetail(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, Upload{
		Filename:    header.Filename,
		ContentType: r.Header.Get("Content-Type"),
		Size:        len(data),
	})
	shape := s.Shape
	s.mu.Unlock()

	location := fmt.Sprintf("%s/static/%s-%s", s.URL, uuid.NewString(), header.Filename)
	switch shape {
	case UploadURLObject:
		writeJSON(w, http.StatusOK, map[string]string{"url": location})
	case UploadFileURLObject:
		writeJSON(w, http.StatusOK, map[string]string{"file_url": location})
	case UploadNoURL:
		writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
	default:
		writeJSON(w, http.StatusOK, location)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func withUser(r *http.Request, u *User) context.Context {
	return context.WithValue(r.Context(), ctxKey{}, u)
}

func userFrom(r *http.Request) *User {
	u, _ := r.Context().Value(ctxKey{}).(*User)
	return u
}

func remarshal(raw map[string]json.RawMessage, v any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
