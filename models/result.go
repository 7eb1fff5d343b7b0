package models

// ScrapeResult is the terminal verdict for one identifier.
//
// Success is true exactly when PageCount is set; Error is set exactly when
// Success is false. Values are built once by the resolver and not mutated.
type ScrapeResult struct {
	Identifier string `json:"identifier"`
	URL        string `json:"url"`
	PageCount  *int   `json:"page_number"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`

	// Source names the strategy that produced PageCount (e.g. "viewer").
	Source string `json:"source,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(identifier, url string, pages int, source string) ScrapeResult {
	return ScrapeResult{
		Identifier: identifier,
		URL:        url,
		PageCount:  &pages,
		Success:    true,
		Source:     source,
	}
}

// Failed builds a failed result. An empty message is replaced with
// MsgNotExtracted so Error is always populated.
func Failed(identifier, url, message string) ScrapeResult {
	if message == "" {
		message = MsgNotExtracted
	}
	return ScrapeResult{
		Identifier: identifier,
		URL:        url,
		Success:    false,
		Error:      message,
	}
}

// Pages returns the page count, or 0 when absent.
func (r ScrapeResult) Pages() int {
	if r.PageCount == nil {
		return 0
	}
	return *r.PageCount
}

// Summary counts outcomes of a batch.
type Summary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Summarize tallies results.
func Summarize(results []ScrapeResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			s.Successful++
		} else {
			s.Failed++
		}
	}
	return s
}
