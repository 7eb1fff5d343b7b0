package archive

import (
	"net/url"
	"strings"
)

// Item is a normalized archive identifier with the URLs derived from it.
type Item struct {
	Identifier string
	BaseURL    string

	// Variants are underscore-normalized forms of Identifier used to guess
	// file names, most specific first, without duplicates.
	Variants []string
}

// NewItem normalizes identifier. The identifier is used verbatim in URLs;
// only surrounding whitespace is removed.
func NewItem(baseURL, identifier string, stripTokens []string) Item {
	identifier = strings.TrimSpace(identifier)
	return Item{
		Identifier: identifier,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Variants:   Variants(identifier, stripTokens),
	}
}

// DetailURL is the canonical item page.
func (it Item) DetailURL() string {
	return it.BaseURL + "/details/" + it.Identifier
}

// MetadataURL is the structured metadata endpoint.
func (it Item) MetadataURL() string {
	return it.BaseURL + "/metadata/" + it.Identifier
}

// DownloadURL addresses one file of the item. Each path segment of name is
// escaped; the identifier is not.
func (it Item) DownloadURL(name string) string {
	segments := strings.Split(name, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return it.BaseURL + "/download/" + it.Identifier + "/" + strings.Join(segments, "/")
}

// Variants returns the underscore forms of identifier:
//
//	"04315104.1697.emory.edu" -> ["04315104_1697_emory_edu", "04315104_1697"]
//	"my-book.v2"              -> ["my_book_v2"]
//
// The second form exists only for dotted identifiers and drops trailing
// segments found in stripTokens (case-insensitive).
func Variants(identifier string, stripTokens []string) []string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil
	}

	underscored := strings.NewReplacer(".", "_", "-", "_").Replace(identifier)
	variants := []string{underscored}

	if strings.Contains(identifier, ".") {
		parts := strings.Split(identifier, ".")
		end := len(parts)
		for end > 1 && isStripToken(parts[end-1], stripTokens) {
			end--
		}
		kept := make([]string, 0, end)
		for _, p := range parts[:end] {
			if p != "" {
				kept = append(kept, p)
			}
		}
		if len(kept) > 0 {
			variants = appendUnique(variants, strings.Join(kept, "_"))
		}
	}

	return variants
}

func isStripToken(segment string, tokens []string) bool {
	for _, t := range tokens {
		if strings.EqualFold(segment, t) {
			return true
		}
	}
	return false
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
