package library

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"libreshelf/internal/apitest"
)

func TestListOptionsQuery(t *testing.T) {
	cases := []struct {
		opts ListOptions
		want string
	}{
		{ListOptions{}, "page=1&limit=20&search=&category_id="},
		{ListOptions{Page: 2, Limit: 10}, "page=2&limit=10&search=&category_id="},
		{ListOptions{Search: "go lang", CategoryID: 4}, "page=1&limit=20&search=go+lang&category_id=4"},
		{ListOptions{Search: "a&b"}, "page=1&limit=20&search=a%26b&category_id="},
	}
	for _, tc := range cases {
		if got := tc.opts.Query(); got != tc.want {
			t.Errorf("Query(%+v) = %q, want %q", tc.opts, got, tc.want)
		}
	}
}

func TestBooksListIsPublic(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	for i := 0; i < 12; i++ {
		api.AddBook("Book", "Author")
	}

	shelf := newShelf(t, api, NewMemoryStore())
	list, err := shelf.Books.List(context.Background(), ListOptions{Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := api.LastQuery(http.MethodGet, "/books"); got != "page=2&limit=10&search=&category_id=" {
		t.Fatalf("query = %q", got)
	}
	if list.Total != 12 || len(list.Books) != 2 {
		t.Fatalf("total=%d books=%d", list.Total, len(list.Books))
	}
	if h := api.LastHeaders(http.MethodGet, "/books"); h.Get("Authorization") != "" {
		t.Fatal("list must not send a token")
	}
}

func TestBooksFilterByCategory(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	sci := api.AddCategory("Science")
	api.AddBook("Physics", "Feynman", sci)
	api.AddBook("Poems", "Basho")

	shelf := newShelf(t, api, NewMemoryStore())
	list, err := shelf.Books.List(context.Background(), ListOptions{CategoryID: sci})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Books) != 1 || list.Books[0].Title != "Physics" {
		t.Fatalf("books = %+v", list.Books)
	}
}

func TestBooksGetNotFound(t *testing.T) {
	api := apitest.New()
	defer api.Close()

	shelf := newShelf(t, api, NewMemoryStore())
	_, err := shelf.Books.Get(context.Background(), 42)
	var rf *RequestFailedError
	if !errors.As(err, &rf) || rf.Status != http.StatusNotFound || rf.DetailMessage() != "Book not found" {
		t.Fatalf("want 404 Book not found, got %v", err)
	}
}

func TestBooksWriteLifecycle(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	api.AddUser("tina", "tina@example.com", "pw", "Tina T", "teacher")

	store := NewMemoryStore()
	_ = store.SetToken(api.TokenFor("tina"))
	shelf := newShelf(t, api, store)
	ctx := context.Background()

	created, err := shelf.Books.Create(ctx, BookInput{Title: "Algebra", CategoryIDs: []int64{1}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 || created.Author != "Tina T" {
		t.Fatalf("created = %+v", created)
	}

	title := "Linear Algebra"
	updated, err := shelf.Books.Update(ctx, created.ID, BookPatch{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != title || len(updated.CategoryIDs) != 1 {
		t.Fatalf("updated = %+v", updated)
	}
	if h := api.LastHeaders(http.MethodPatch, "/books/1"); h.Get("Content-Type") != "application/json" {
		t.Fatalf("patch content type = %q", h.Get("Content-Type"))
	}

	if err := shelf.Books.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := api.Book(created.ID); ok {
		t.Fatal("book still stored after delete")
	}
}

func TestBooksCreateSendsCategoryList(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	api.AddUser("tina", "tina@example.com", "pw", "Tina T", "teacher")

	store := NewMemoryStore()
	_ = store.SetToken(api.TokenFor("tina"))
	shelf := newShelf(t, api, store)
	ctx := context.Background()

	book, err := shelf.Books.Create(ctx, BookInput{Title: "Uncategorised"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if book.CategoryIDs == nil || len(book.CategoryIDs) != 0 {
		t.Fatalf("categories = %#v", book.CategoryIDs)
	}
	if body := api.LastBody(http.MethodPost, "/books"); !strings.Contains(body, `"category_ids":[]`) {
		t.Fatalf("request body = %s", body)
	}

	_, err = shelf.Client.Request(ctx, http.MethodPost, "/books", map[string]any{"title": "x", "category_ids": nil})
	if StatusCode(err) != http.StatusUnprocessableEntity {
		t.Fatalf("null category_ids: want 422, got %v", err)
	}
}

func TestBooksCreateForbiddenForStudent(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	api.AddUser("sam", "sam@example.com", "pw", "Sam S", "student")

	store := NewMemoryStore()
	_ = store.SetToken(api.TokenFor("sam"))
	shelf := newShelf(t, api, store)

	_, err := shelf.Books.Create(context.Background(), BookInput{Title: "Nope"})
	if StatusCode(err) != http.StatusForbidden {
		t.Fatalf("want 403, got %v", err)
	}
}

func TestCategoriesList(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	api.AddCategory("Science")
	api.AddCategory("History")

	shelf := newShelf(t, api, NewMemoryStore())
	cats, err := shelf.Categories.List(context.Background())
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(cats) != 2 || cats[1].Name != "History" {
		t.Fatalf("categories = %+v", cats)
	}
}

func TestBookPatchEmpty(t *testing.T) {
	if !(BookPatch{}).Empty() {
		t.Fatal("zero patch should be empty")
	}
	r := 4.5
	if (BookPatch{Rating: &r}).Empty() {
		t.Fatal("rating patch is not empty")
	}
}
