package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagecount/batch"
	"github.com/use-agent/pagecount/models"
)

// Upload returns a handler for POST /api/v1/upload.
//
// The multipart "file" field holds one identifier per line. Blank lines and
// duplicates are dropped; nothing is resolved here.
func Upload(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			if c.Request.ContentLength > maxBytes {
				respondError(c, models.ErrCodeTooLarge, fmt.Sprintf("upload exceeds %d bytes", maxBytes))
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		fh, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(c, models.ErrCodeTooLarge, fmt.Sprintf("upload exceeds %d bytes", maxBytes))
				return
			}
			respondError(c, models.ErrCodeInvalidInput, "No file provided")
			return
		}
		if fh.Filename == "" {
			respondError(c, models.ErrCodeInvalidInput, "No file selected")
			return
		}

		f, err := fh.Open()
		if err != nil {
			respondError(c, models.ErrCodeInvalidInput, "Error reading file: "+err.Error())
			return
		}
		defer f.Close()

		content, err := io.ReadAll(f)
		if err != nil {
			respondError(c, models.ErrCodeInvalidInput, "Error reading file: "+err.Error())
			return
		}
		if !utf8.Valid(content) {
			respondError(c, models.ErrCodeInvalidInput, "Error reading file: content is not valid UTF-8")
			return
		}

		ids := batch.ParseList(string(content))
		c.JSON(http.StatusOK, models.UploadResponse{
			Identifiers: ids,
			Count:       len(ids),
		})
	}
}
