package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Shelf is a thin façade bundling the client, the auth workflow and the
// resource wrappers, keeping CLI code simple.
type Shelf struct {
	Client     *Client
	Auth       *Auth
	Books      *Books
	Categories *Categories
	Users      *Users
	Files      *Files
}

// NewShelf wires every component around a single session store.
func NewShelf(store SessionStore, opts ...Option) *Shelf {
	c := NewClient(store, opts...)
	return &Shelf{
		Client:     c,
		Auth:       NewAuth(c),
		Books:      &Books{c: c},
		Categories: &Categories{c: c},
		Users:      &Users{c: c},
		Files:      &Files{c: c},
	}
}

// Session returns the values currently held by the store.
func (s *Shelf) Session() Session { return Snapshot(s.Client.store) }

// ------------------ Publishing ------------------

// PublishInput describes a book to upload and register in one go.
type PublishInput struct {
	Title       string
	Author      string
	Description string
	CategoryID  int64
	CoverPath   string
	FilePath    string
}

// ErrMissingUploadURL is returned when an upload response carries no URL.
var ErrMissingUploadURL = errors.New("failed to retrieve file URLs from server")

// PublishBook uploads the cover and the book file, then creates the book
// pointing at both. Only teachers and admins may publish.
func (s *Shelf) PublishBook(ctx context.Context, in PublishInput) (*Book, error) {
	if !s.Auth.IsAllowed(RoleTeacher) {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(in.CoverPath) == "" || strings.TrimSpace(in.FilePath) == "" {
		return nil, fmt.Errorf("please select both a cover image and a PDF file")
	}

	cover, err := s.Files.UploadPath(ctx, in.CoverPath)
	if err != nil {
		return nil, fmt.Errorf("upload cover: %w", err)
	}
	coverURL, coverOK := cover.Location()

	file, err := s.Files.UploadPath(ctx, in.FilePath)
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}
	fileURL, fileOK := file.Location()

	if !coverOK || !fileOK {
		return nil, ErrMissingUploadURL
	}

	input := BookInput{
		Title:       in.Title,
		Author:      in.Author,
		Description: in.Description,
		Thumbnail:   coverURL,
		FileURL:     fileURL,
	}
	if in.CategoryID > 0 {
		input.CategoryIDs = []int64{in.CategoryID}
	}
	return s.Books.Create(ctx, input)
}

// ------------------ Utilities ------------------

// PrettyBook formats a book for lists.
func PrettyBook(b *Book) string {
	return fmt.Sprintf("%-5d %-30s %-25s %-6s %s",
		b.ID,
		Truncate(b.Title, 30),
		Truncate(b.Author, 25),
		formatRating(b.Rating),
		joinIDs(b.CategoryIDs))
}

// Truncate shortens s to maxLen runes, marking the cut with "...".
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func formatRating(r float64) string {
	if r == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f", r)
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
