package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"libreshelf/library"
)

// render writes v as JSON or YAML, or calls table for the default format.
func render(w io.Writer, format string, v any, table func(io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		table(w)
		return nil
	}
}

func printBookTable(w io.Writer, list *library.BookList) {
	if len(list.Books) == 0 {
		fmt.Fprintln(w, "No books found.")
		return
	}
	fmt.Fprintf(w, "%-5s %-30s %-25s %-6s %s\n", "ID", "Title", "Author", "Rating", "Categories")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, b := range list.Books {
		fmt.Fprintln(w, library.PrettyBook(b))
	}
	fmt.Fprintf(w, "\nPage %d (%d per page), %d book(s) in total\n", list.Page, list.Limit, list.Total)
}

func printBookDetail(w io.Writer, b *library.Book) {
	fmt.Fprintf(w, "ID:          %d\n", b.ID)
	fmt.Fprintf(w, "Title:       %s\n", b.Title)
	if b.Author != "" {
		fmt.Fprintf(w, "Author:      %s\n", b.Author)
	}
	if b.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", b.Description)
	}
	if b.Rating > 0 {
		fmt.Fprintf(w, "Rating:      %.1f\n", b.Rating)
	}
	if len(b.CategoryIDs) > 0 {
		ids := make([]string, len(b.CategoryIDs))
		for i, id := range b.CategoryIDs {
			ids[i] = fmt.Sprint(id)
		}
		fmt.Fprintf(w, "Categories:  %s\n", strings.Join(ids, ", "))
	}
	if b.Thumbnail != "" {
		fmt.Fprintf(w, "Cover:       %s\n", b.Thumbnail)
	}
	if b.FileURL != "" {
		fmt.Fprintf(w, "File:        %s\n", b.FileURL)
	}
	if !b.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:     %s\n", b.CreatedAt.Format("2006-01-02 15:04"))
	}
}

func printCategoryTable(w io.Writer, cats []library.Category) {
	if len(cats) == 0 {
		fmt.Fprintln(w, "No categories.")
		return
	}
	fmt.Fprintf(w, "%-5s %-30s\n", "ID", "Name")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	for _, c := range cats {
		fmt.Fprintf(w, "%-5d %-30s\n", c.ID, library.Truncate(c.Name, 30))
	}
}
