package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"libreshelf/internal/apitest"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func teacherShelf(t *testing.T, api *apitest.Server, role string) *Shelf {
	t.Helper()
	api.AddUser("tina", "tina@example.com", "pw", "Tina T", role)
	shelf := newShelf(t, api, NewMemoryStore())
	res, err := shelf.Auth.Login(context.Background(), "tina", "pw")
	if err != nil || !res.Success {
		t.Fatalf("login: %+v %v", res, err)
	}
	return shelf
}

func TestPublishBook(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	api.Shape = apitest.UploadURLObject
	shelf := teacherShelf(t, api, "teacher")

	book, err := shelf.PublishBook(context.Background(), PublishInput{
		Title:      "Geometry",
		CategoryID: 3,
		CoverPath:  writeTemp(t, "cover.png", "img"),
		FilePath:   writeTemp(t, "geometry.pdf", "%PDF"),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !strings.HasSuffix(book.Thumbnail, "-cover.png") || !strings.HasSuffix(book.FileURL, "-geometry.pdf") {
		t.Fatalf("book = %+v", book)
	}
	if len(book.CategoryIDs) != 1 || book.CategoryIDs[0] != 3 {
		t.Fatalf("categories = %v", book.CategoryIDs)
	}
	if n := len(api.Uploads()); n != 2 {
		t.Fatalf("uploads = %d", n)
	}
}

func TestPublishBookAsAdmin(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	shelf := teacherShelf(t, api, "admin")

	_, err := shelf.PublishBook(context.Background(), PublishInput{
		Title:     "Admin Notes",
		CoverPath: writeTemp(t, "c.png", "img"),
		FilePath:  writeTemp(t, "n.pdf", "%PDF"),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestPublishBookRejectsStudent(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	shelf := teacherShelf(t, api, "student")

	_, err := shelf.PublishBook(context.Background(), PublishInput{
		Title:     "x",
		CoverPath: writeTemp(t, "c.png", "img"),
		FilePath:  writeTemp(t, "n.pdf", "%PDF"),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
	if len(api.Uploads()) != 0 {
		t.Fatal("nothing should be uploaded")
	}
}

func TestPublishBookNeedsBothFiles(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	shelf := teacherShelf(t, api, "teacher")

	_, err := shelf.PublishBook(context.Background(), PublishInput{
		Title:     "x",
		CoverPath: writeTemp(t, "c.png", "img"),
	})
	if err == nil {
		t.Fatal("want error when the book file is missing")
	}
}

func TestPublishBookMissingUploadURL(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	api.Shape = apitest.UploadNoURL
	shelf := teacherShelf(t, api, "teacher")

	_, err := shelf.PublishBook(context.Background(), PublishInput{
		Title:     "x",
		CoverPath: writeTemp(t, "c.png", "img"),
		FilePath:  writeTemp(t, "n.pdf", "%PDF"),
	})
	if !errors.Is(err, ErrMissingUploadURL) {
		t.Fatalf("want ErrMissingUploadURL, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a long title here", 10, "a long ..."},
		{"ចំណងជើងខ្មែរ", 5, "ចំ..."},
		{"abcdef", 2, "ab"},
	}
	for _, tc := range cases {
		if got := Truncate(tc.in, tc.max); got != tc.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestPrettyBook(t *testing.T) {
	line := PrettyBook(&Book{ID: 7, Title: "Dune", Author: "Herbert", Rating: 4.5, CategoryIDs: []int64{1, 2}})
	for _, want := range []string{"7", "Dune", "Herbert", "4.5", "1,2"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if !strings.Contains(PrettyBook(&Book{ID: 1, Title: "x"}), " - ") {
		t.Error("missing rating should render as -")
	}
}
