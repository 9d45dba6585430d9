package finrag

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Upload ingests a PDF read from r under the given filename.
// Uploading the same filename again replaces the previous chunks.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (res UploadResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("upload", start, err) }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, fmt.Errorf("finrag: create form file: %w", err)
	}
	if _, err = io.Copy(part, r); err != nil {
		return UploadResult{}, fmt.Errorf("finrag: read %s: %w", filename, err)
	}
	if err = mw.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("finrag: finish form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, apiPrefix+"/upload", nil, &buf)
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.send(req)
	if err != nil {
		return UploadResult{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	err = decodeJSON(resp.Body, &res)
	return res, err
}

// UploadFile uploads the PDF at path under its base name.
func (c *Client) UploadFile(ctx context.Context, path string) (UploadResult, error) {
	f, err := os.Open(path) //nolint:gosec // caller-chosen path
	if err != nil {
		return UploadResult{}, fmt.Errorf("finrag: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return c.Upload(ctx, filepath.Base(path), f)
}

// ListDocuments returns the documents of the client's namespace.
func (c *Client) ListDocuments(ctx context.Context) (docs []Document, err error) {
	start := time.Now()
	defer func() { c.obs.observe("list_documents", start, err) }()

	var out struct {
		Documents []Document `json:"documents"`
	}
	if err = c.doJSON(ctx, http.MethodGet, apiPrefix+"/documents", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// DeleteDocument removes every chunk of filename. Deleting an unknown file is not an error.
func (c *Client) DeleteDocument(ctx context.Context, filename string) (res DeleteResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("delete_document", start, err) }()

	p := apiPrefix + "/document/" + url.PathEscape(filename)
	err = c.doJSON(ctx, http.MethodDelete, p, nil, nil, &res)
	return res, err
}
