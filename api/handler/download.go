package handler

import (
	"errors"
	"io/fs"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagecount/export"
	"github.com/use-agent/pagecount/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Download returns a handler for GET /api/v1/download.
//
// It serves the spreadsheet saved by the last batch, or its JSON fallback
// when the spreadsheet could not be written.
func Download(resultsFile string) gin.HandlerFunc {
	return func(c *gin.Context) {
		candidates := []struct{ path, name, contentType string }{
			{resultsFile, "results.xlsx", xlsxContentType},
			{export.JSONPath(resultsFile), "results.json", "application/json"},
		}
		for _, f := range candidates {
			ok, err := fileExists(f.path)
			if err != nil {
				respondAPIError(c, models.NewAPIError(models.ErrCodeExport, "results file could not be read", err))
				return
			}
			if ok {
				c.Header("Content-Type", f.contentType)
				c.FileAttachment(f.path, f.name)
				return
			}
		}

		respondError(c, models.ErrCodeNotFound, "No results file found")
	}
}

// fileExists reports whether path is a regular file. A missing file is not
// an error; any other stat failure is.
func fileExists(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.Mode().IsRegular(), nil
}
