// Package content holds the data model shared by the catalog, the
// delivery ledger and the planner: content items, delivery records and
// the composite keys that name scheduled work.
package content

import (
	"errors"
	"fmt"
	"strings"
)

// ItemID identifies a catalog entry. IDs are caller-chosen, stable
// strings ("mc-0042", a slug, a hash); the store never generates them.
type ItemID string

func (id ItemID) String() string { return string(id) }

// ContentItem is one deliverable unit of the catalog.
// Keep it compact and schema-stable.
type ContentItem struct {
	ID     ItemID   `json:"id"`
	Text   string   `json:"text"`
	Author string   `json:"author,omitempty"`
	Source string   `json:"source,omitempty"`
	Media  string   `json:"media,omitempty"` // optional image URL or local path
	Tags   []string `json:"tags,omitempty"`
}

var (
	ErrEmptyID   = errors.New("content: empty item id")
	ErrEmptyText = errors.New("content: empty item text")
)

// Normalize trims fields and lowercases tags in place.
func (it *ContentItem) Normalize() {
	it.ID = ItemID(strings.TrimSpace(string(it.ID)))
	it.Text = strings.TrimSpace(it.Text)
	it.Author = strings.TrimSpace(it.Author)
	it.Source = strings.TrimSpace(it.Source)
	it.Media = strings.TrimSpace(it.Media)
	tags := it.Tags[:0]
	for _, t := range it.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			tags = append(tags, t)
		}
	}
	it.Tags = tags
}

func (it ContentItem) Validate() error {
	if strings.TrimSpace(string(it.ID)) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(it.Text) == "" {
		return fmt.Errorf("%w (id=%s)", ErrEmptyText, it.ID)
	}
	return nil
}

// HasAnyTag reports whether the item carries at least one of the given
// tags. Comparison is case-insensitive; an empty query matches nothing.
func (it ContentItem) HasAnyTag(tags []string) bool {
	if len(tags) == 0 || len(it.Tags) == 0 {
		return false
	}
	for _, want := range tags {
		want = strings.ToLower(strings.TrimSpace(want))
		if want == "" {
			continue
		}
		for _, have := range it.Tags {
			if strings.ToLower(have) == want {
				return true
			}
		}
	}
	return false
}
