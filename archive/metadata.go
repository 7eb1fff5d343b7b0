package archive

import (
	"context"
	"encoding/json"
	"fmt"
)

// File is one entry of an item's file listing.
type File struct {
	Name   string `json:"name"`
	Format string `json:"format"`
}

// Metadata is the subset of the metadata endpoint the probes read.
type Metadata struct {
	Files []File `json:"files"`
}

// Metadata fetches and decodes the item's structured file listing.
// Unknown items yield an empty listing, not an error.
func (c *Client) Metadata(ctx context.Context, item Item) (*Metadata, error) {
	body, err := c.Get(ctx, item.MetadataURL())
	if err != nil {
		return nil, err
	}
	var md Metadata
	if err := json.Unmarshal(body, &md); err != nil {
		return nil, fmt.Errorf("archive: decode metadata for %s: %w", item.Identifier, err)
	}
	return &md, nil
}
