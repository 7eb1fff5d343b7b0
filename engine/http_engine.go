package engine

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/use-agent/pagecount/archive"
)

// HTTPEngine fetches the detail page as served, without running scripts.
// It is the fastest option and the default.
type HTTPEngine struct {
	client *archive.Client
}

// NewHTTPEngine creates an HTTPEngine on top of the shared archive client,
// so the detail page gets the same user agent, TLS fingerprint and timeout
// as every probe fetch.
func NewHTTPEngine(client *archive.Client) *HTTPEngine {
	return &HTTPEngine{client: client}
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) Close() error { return nil }

func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	body, err := e.client.Get(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("http_engine: %w", err)
	}

	return &FetchResult{
		HTML:       body,
		Title:      extractTitle(body),
		StatusCode: http.StatusOK,
		FinalURL:   req.URL,
		EngineName: e.Name(),
	}, nil
}

// extractTitle uses the Go HTML tokenizer to find the first <title> element.
func extractTitle(doc []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(doc))
	inTitle := false
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}
