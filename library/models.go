package library

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role is the coarse authorization tier the API assigns to a user.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Permits reports whether a session holding r may perform an action gated to
// required. Admin inherits everything gated to teacher.
func (r Role) Permits(required Role) bool {
	if required == RoleTeacher && r == RoleAdmin {
		return true
	}
	return r != "" && r == required
}

// Known reports whether r is one of the roles the API hands out.
func (r Role) Known() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// Session is a point-in-time view of the persisted credentials.
type Session struct {
	Token       string `json:"-"`
	Role        Role   `json:"role,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Authenticated reports whether a token is present. Role and DisplayName are
// meaningless without one.
func (s Session) Authenticated() bool { return s.Token != "" }

// UserID accepts both numeric and string identifiers from the API.
type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// UserProfile is the record returned by GET /users/me. Fields the client does
// not know about are kept in Extra.
type UserProfile struct {
	ID          UserID         `json:"id,omitempty"`
	Username    string         `json:"username"`
	FullName    string         `json:"full_name"`
	Email       string         `json:"email,omitempty"`
	Role        Role           `json:"role"`
	Bio         string         `json:"bio,omitempty"`
	Gender      string         `json:"gender,omitempty"`
	Address     string         `json:"address,omitempty"`
	ProfileURL  string         `json:"profile_url,omitempty"`
	PhoneNumber string         `json:"phone_number,omitempty"`
	DateOfBirth string         `json:"date_of_birth,omitempty"`
	Extra       map[string]any `json:"-"`
}

// DisplayName prefers the full name and falls back to the username.
func (p *UserProfile) DisplayName() string {
	if p == nil {
		return ""
	}
	if strings.TrimSpace(p.FullName) != "" {
		return p.FullName
	}
	return p.Username
}

func (p *UserProfile) UnmarshalJSON(data []byte) error {
	type plain UserProfile
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range []string{"id", "username", "full_name", "email", "role", "bio",
		"gender", "address", "profile_url", "phone_number", "date_of_birth"} {
		delete(all, k)
	}
	if len(all) > 0 {
		v.Extra = all
	}
	*p = UserProfile(v)
	return nil
}

// Book mirrors the server's book record. Only the fields the client renders or
// sends back are modelled.
type Book struct {
	ID          int64     `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Author      string    `json:"author,omitempty" yaml:"author,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Thumbnail   string    `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
	FileURL     string    `json:"file_url,omitempty" yaml:"file_url,omitempty"`
	Rating      float64   `json:"rating,omitempty" yaml:"rating,omitempty"`
	CategoryIDs []int64   `json:"category_ids,omitempty" yaml:"category_ids,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// BookList is the paginated envelope returned by GET /books.
type BookList struct {
	Total int64   `json:"total" yaml:"total"`
	Page  int     `json:"page" yaml:"page"`
	Limit int     `json:"limit" yaml:"limit"`
	Books []*Book `json:"books" yaml:"books"`
}

// BookInput is the payload for POST /books. The API expects category_ids to be
// a list, so Books.Create sends [] when none is set.
type BookInput struct {
	Title       string  `json:"title"`
	Author      string  `json:"author,omitempty"`
	Description string  `json:"description,omitempty"`
	CategoryIDs []int64 `json:"category_ids"`
	Thumbnail   string  `json:"thumbnail,omitempty"`
	FileURL     string  `json:"file_url,omitempty"`
}

// BookPatch is the payload for PATCH /books/{id}. Nil fields are left alone.
type BookPatch struct {
	Title       *string  `json:"title,omitempty"`
	Author      *string  `json:"author,omitempty"`
	Description *string  `json:"description,omitempty"`
	CategoryIDs []int64  `json:"category_ids,omitempty"`
	Thumbnail   *string  `json:"thumbnail,omitempty"`
	FileURL     *string  `json:"file_url,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
}

// Empty reports whether the patch would change nothing.
func (p BookPatch) Empty() bool {
	return p.Title == nil && p.Author == nil && p.Description == nil &&
		p.CategoryIDs == nil && p.Thumbnail == nil && p.FileURL == nil && p.Rating == nil
}

// Category is a book category.
type Category struct {
	ID          int64  `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Registration is the full user object sent to POST /auth/register.
type Registration struct {
	Username    string `json:"username"`
	FullName    string `json:"full_name"`
	Password    string `json:"password"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
	Bio         string `json:"bio"`
	Gender      string `json:"gender"`
	Address     string `json:"address"`
	ProfileURL  string `json:"profile_url"`
	PhoneNumber string `json:"phone_number"`
	DateOfBirth string `json:"date_of_birth"`
}

// NewStudentRegistration fills in the defaults used for self-service sign-ups.
func NewStudentRegistration(username, fullName, email, password string) Registration {
	return Registration{
		Username:    username,
		FullName:    fullName,
		Password:    password,
		Email:       email,
		Role:        RoleStudent,
		Bio:         "New reader",
		Gender:      "other",
		Address:     "Phnom Penh",
		ProfileURL:  "https://placehold.co/100",
		PhoneNumber: "",
		DateOfBirth: time.Now().UTC().Format(time.RFC3339),
	}
}

// RegisterResponse is the undecorated body returned by POST /auth/register.
// Callers decide success by looking for an identifier or a detail field.
type RegisterResponse map[string]any

// Identifier returns the first of access_token, id or username that is set.
func (r RegisterResponse) Identifier() (string, bool) {
	for _, k := range []string{"access_token", "id", "username"} {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		s := fmt.Sprint(v)
		if s != "" {
			return s, true
		}
	}
	return "", false
}

// Detail returns the server's error detail, flattening validation arrays.
func (r RegisterResponse) Detail() (string, bool) {
	v, ok := r["detail"]
	if !ok || v == nil {
		return "", false
	}
	msg := detailText(v)
	return msg, msg != ""
}

// AuthResult is the outcome of a login attempt. It is either successful with
// Role and Profile set, or failed with Error set; never both.
type AuthResult struct {
	Success bool
	Role    Role
	Profile *UserProfile
	Error   string
	// Cause is the typed reason for a failure, usable with errors.Is.
	Cause error
}

func failedAuth(msg string, cause error) AuthResult {
	return AuthResult{Success: false, Error: msg, Cause: cause}
}

// detailText renders a FastAPI-style detail value: a plain string, or a list
// of objects carrying msg.
func detailText(v any) string {
	switch d := v.(type) {
	case string:
		return d
	case []any:
		msgs := make([]string, 0, len(d))
		for _, item := range d {
			if m, ok := item.(map[string]any); ok {
				if s, ok := m["msg"].(string); ok && s != "" {
					msgs = append(msgs, s)
					continue
				}
			}
			if s, ok := item.(string); ok && s != "" {
				msgs = append(msgs, s)
			}
		}
		return strings.Join(msgs, ", ")
	case nil:
		return ""
	default:
		return fmt.Sprint(d)
	}
}
