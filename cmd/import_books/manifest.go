package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"libreshelf/library"
)

const manifestName = "books.yaml"

// entry is one book in books.yaml. Cover and File are relative to the
// manifest's directory.
type entry struct {
	Title       string `yaml:"title"`
	Author      string `yaml:"author"`
	Description string `yaml:"description"`
	CategoryID  int64  `yaml:"category_id"`
	Cover       string `yaml:"cover"`
	File        string `yaml:"file"`
}

type manifest struct {
	Books []entry `yaml:"books"`
}

func readManifest(dir string) ([]entry, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestName, err)
	}
	if len(m.Books) == 0 {
		return nil, fmt.Errorf("%s lists no books", manifestName)
	}
	return m.Books, nil
}

type report struct {
	success int
	errors  int
	books   []*library.Book
}

// importBooks publishes entries one at a time. A failed entry is reported and
// skipped; a missing or insufficient session aborts the whole run.
func importBooks(ctx context.Context, shelf *library.Shelf, dir string, entries []entry, w io.Writer) (*report, error) {
	if err := shelf.Auth.ValidateSession(ctx); err != nil {
		if library.IsNetworkError(err) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: run 'libreshelf login' first", library.ErrUnauthenticated)
	}
	if !shelf.Auth.IsAllowed(library.RoleTeacher) {
		return nil, library.ErrForbidden
	}

	r := &report{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		fmt.Fprintf(w, "Importing: %s... ", e.Title)

		if strings.TrimSpace(e.Title) == "" {
			fmt.Fprintln(w, "ERROR - missing title")
			r.errors++
			continue
		}
		coverPath := filepath.Join(dir, e.Cover)
		filePath := filepath.Join(dir, e.File)
		if err := checkReadable(coverPath, filePath); err != nil {
			fmt.Fprintf(w, "ERROR - File not accessible: %v\n", err)
			r.errors++
			continue
		}

		book, err := shelf.PublishBook(ctx, library.PublishInput{
			Title:       e.Title,
			Author:      e.Author,
			Description: e.Description,
			CategoryID:  e.CategoryID,
			CoverPath:   coverPath,
			FilePath:    filePath,
		})
		if err != nil {
			fmt.Fprintf(w, "ERROR - %v\n", err)
			r.errors++
			continue
		}

		fmt.Fprintf(w, "SUCCESS (ID: %d)\n", book.ID)
		r.success++
		r.books = append(r.books, book)
	}
	return r, nil
}

func checkReadable(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *report) print(w io.Writer) {
	fmt.Fprintf(w, "\nImport complete!\n")
	fmt.Fprintf(w, "Successfully imported: %d books\n", r.success)
	fmt.Fprintf(w, "Errors: %d\n", r.errors)

	if len(r.books) == 0 {
		return
	}
	fmt.Fprintln(w, "\nImported books:")
	fmt.Fprintf(w, "%-5s %-50s %-30s\n", "ID", "Title", "Author")
	fmt.Fprintln(w, strings.Repeat("-", 87))
	for _, b := range r.books {
		fmt.Fprintf(w, "%-5d %-50s %-30s\n", b.ID, library.Truncate(b.Title, 50), library.Truncate(b.Author, 30))
	}
}
