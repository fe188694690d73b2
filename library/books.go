package library

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ListOptions are the query parameters of GET /books. Zero values fall back
// to page 1, limit 20, no search and no category filter.
type ListOptions struct {
	Page       int
	Limit      int
	Search     string
	CategoryID int64
}

// Query renders the options in the fixed order page, limit, search,
// category_id. Empty search and category are still sent.
func (o ListOptions) Query() string {
	page, limit := o.Page, o.Limit
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	category := ""
	if o.CategoryID > 0 {
		category = strconv.FormatInt(o.CategoryID, 10)
	}
	return fmt.Sprintf("page=%d&limit=%d&search=%s&category_id=%s",
		page, limit, url.QueryEscape(o.Search), url.QueryEscape(category))
}

// Books wraps the /books endpoints. Reads are public; writes need a token.
type Books struct {
	c *Client
}

// List returns one page of books.
func (b *Books) List(ctx context.Context, opts ListOptions) (*BookList, error) {
	var list BookList
	if err := b.c.do(ctx, http.MethodGet, "/books?"+opts.Query(), nil, false, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Get returns a single book.
func (b *Books) Get(ctx context.Context, id int64) (*Book, error) {
	var book Book
	if err := b.c.do(ctx, http.MethodGet, bookPath(id), nil, false, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// Create publishes a new book.
func (b *Books) Create(ctx context.Context, in BookInput) (*Book, error) {
	if in.CategoryIDs == nil {
		in.CategoryIDs = []int64{}
	}
	var book Book
	if err := b.c.do(ctx, http.MethodPost, "/books", in, true, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// Update patches an existing book.
func (b *Books) Update(ctx context.Context, id int64, patch BookPatch) (*Book, error) {
	var book Book
	if err := b.c.do(ctx, http.MethodPatch, bookPath(id), patch, true, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// Delete removes a book. The API answers 204.
func (b *Books) Delete(ctx context.Context, id int64) error {
	return b.c.do(ctx, http.MethodDelete, bookPath(id), nil, true, nil)
}

func bookPath(id int64) string {
	return "/books/" + strconv.FormatInt(id, 10)
}
