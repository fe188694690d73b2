package library

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"libreshelf/internal/apitest"
)

func TestUploadResultLocation(t *testing.T) {
	cases := []struct {
		body string
		kind UploadKind
		want string
		ok   bool
	}{
		{`"https://cdn/x.pdf"`, UploadString, "https://cdn/x.pdf", true},
		{`{"url":"https://cdn/a.png"}`, UploadObject, "https://cdn/a.png", true},
		{`{"file_url":"https://cdn/b.png"}`, UploadObject, "https://cdn/b.png", true},
		{`{"url":"https://cdn/u","file_url":"https://cdn/f"}`, UploadObject, "https://cdn/u", true},
		{`{"status":"ok"}`, UploadObject, "", false},
		{`""`, UploadString, "", false},
	}
	for _, tc := range cases {
		var res UploadResult
		if err := json.Unmarshal([]byte(tc.body), &res); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.body, err)
		}
		if res.Kind != tc.kind {
			t.Errorf("%s: kind = %v, want %v", tc.body, res.Kind, tc.kind)
		}
		got, ok := res.Location()
		if got != tc.want || ok != tc.ok {
			t.Errorf("%s: Location() = %q, %v", tc.body, got, ok)
		}
	}

	if _, ok := (UploadResult{}).Location(); ok {
		t.Error("empty result has no location")
	}
}

func TestUploadSendsMultipart(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	api.AddUser("tina", "tina@example.com", "pw", "Tina T", "teacher")
	api.Shape = apitest.UploadFileURLObject

	store := NewMemoryStore()
	_ = store.SetToken(api.TokenFor("tina"))
	shelf := newShelf(t, api, store)

	res, err := shelf.Files.Upload(context.Background(), "/tmp/notes/cover.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	loc, ok := res.Location()
	if !ok || !strings.HasSuffix(loc, "-cover.png") {
		t.Fatalf("location = %q, %v", loc, ok)
	}

	ups := api.Uploads()
	if len(ups) != 1 {
		t.Fatalf("uploads = %d", len(ups))
	}
	if ups[0].Filename != "cover.png" || ups[0].Size != len("png-bytes") {
		t.Fatalf("upload = %+v", ups[0])
	}
	if !strings.HasPrefix(ups[0].ContentType, "multipart/form-data; boundary=") {
		t.Fatalf("content type = %q", ups[0].ContentType)
	}
}

func TestUploadPath(t *testing.T) {
	api := apitest.New()
	defer api.Close()
	api.AddUser("tina", "tina@example.com", "pw", "Tina T", "teacher")

	store := NewMemoryStore()
	_ = store.SetToken(api.TokenFor("tina"))
	shelf := newShelf(t, api, store)

	path := filepath.Join(t.TempDir(), "book.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	res, err := shelf.Files.UploadPath(context.Background(), path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Kind != UploadString {
		t.Fatalf("kind = %v", res.Kind)
	}

	if _, err := shelf.Files.UploadPath(context.Background(), filepath.Join(t.TempDir(), "missing.pdf")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want ErrNotExist, got %v", err)
	}
	if _, err := shelf.Files.UploadPath(context.Background(), "  "); err == nil {
		t.Fatal("want error for empty path")
	}
}
