package library

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// UploadKind tells which shape the upload endpoint answered with.
type UploadKind int

const (
	UploadEmpty UploadKind = iota
	// UploadString is a bare JSON string holding the file URL.
	UploadString
	// UploadObject is an object carrying url and/or file_url.
	UploadObject
)

// UploadResult is the response of POST /files/upload, which the API returns
// either as a bare string or as an object.
type UploadResult struct {
	Kind    UploadKind
	Value   string
	URL     string
	FileURL string
}

func (u *UploadResult) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*u = UploadResult{Kind: UploadString, Value: s}
		return nil
	}
	var obj struct {
		URL     string `json:"url"`
		FileURL string `json:"file_url"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("unexpected upload response: %w", err)
	}
	*u = UploadResult{Kind: UploadObject, URL: obj.URL, FileURL: obj.FileURL}
	return nil
}

// Location returns the stored file's URL whatever shape the server used.
func (u UploadResult) Location() (string, bool) {
	switch u.Kind {
	case UploadString:
		return u.Value, u.Value != ""
	case UploadObject:
		if u.URL != "" {
			return u.URL, true
		}
		return u.FileURL, u.FileURL != ""
	}
	return "", false
}

// Files wraps the protected file upload endpoint.
type Files struct {
	c *Client
}

// Upload sends r as the "file" part of a multipart form. The multipart writer
// supplies the content type and boundary.
func (f *Files) Upload(ctx context.Context, filename string, r io.Reader) (UploadResult, error) {
	const endpoint = "/files/upload"

	token := f.c.store.Token()
	if token == "" {
		return UploadResult{}, ErrUnauthenticated
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return UploadResult{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return UploadResult{}, fmt.Errorf("copy %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.c.url(endpoint), &buf)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	raw, err := f.c.execute(req, endpoint)
	if err != nil {
		return UploadResult{}, err
	}
	var res UploadResult
	if string(raw) == "{}" {
		return res, nil
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return UploadResult{}, err
	}
	return res, nil
}

// UploadPath uploads the file at path (relative paths resolve from cwd).
func (f *Files) UploadPath(ctx context.Context, path string) (UploadResult, error) {
	if strings.TrimSpace(path) == "" {
		return UploadResult{}, fmt.Errorf("file path cannot be empty")
	}
	fh, err := os.Open(filepath.Clean(path))
	if err != nil {
		return UploadResult{}, err
	}
	defer fh.Close()
	return f.Upload(ctx, fh.Name(), fh)
}
