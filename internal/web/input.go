package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

var (
	errUnsupportedUpload = errors.New("only .txt and .md files are supported")
	errUploadTooLarge    = errors.New("uploaded file is too large")
	errUploadNotText     = errors.New("uploaded file is not valid UTF-8 text")
)

const (
	methodUpload = "upload"
	methodDirect = "direct"

	// formOverhead is the room left for the other form fields and multipart
	// framing on top of the upload limit.
	formOverhead = 64 << 10
)

// readPrompt extracts the prompt from the submitted form. Upload and direct
// input are mutually exclusive; the "method" field picks which one is read.
// A missing file or empty text yields an empty prompt, not an error.
func readPrompt(c *gin.Context, maxBytes int64) (string, error) {
	if err := c.Request.ParseMultipartForm(maxBytes + formOverhead); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", errUploadTooLarge
		}
		return "", fmt.Errorf("read form: %w", err)
	}

	switch c.DefaultPostForm("method", methodDirect) {
	case methodUpload:
		fh, err := c.FormFile("file")
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("read upload: %w", err)
		}

		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if ext != ".txt" && ext != ".md" {
			return "", errUnsupportedUpload
		}
		if fh.Size > maxBytes {
			return "", errUploadTooLarge
		}

		f, err := fh.Open()
		if err != nil {
			return "", fmt.Errorf("open upload: %w", err)
		}
		defer f.Close()

		data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
		if err != nil {
			return "", fmt.Errorf("read upload: %w", err)
		}
		if int64(len(data)) > maxBytes {
			return "", errUploadTooLarge
		}
		if !utf8.Valid(data) {
			return "", errUploadNotText
		}
		return string(data), nil
	default:
		return c.PostForm("prompt"), nil
	}
}
