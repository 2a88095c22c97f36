package content

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	yaml "go.yaml.in/yaml/v3"
)

// seedFile is the on-disk catalog shape:
//
//	items:
//	  - id: mc-0001
//	    text: "..."
//	    author: "..."
//	    tags: [focus, morning]
type seedFile struct {
	Items []seedItem `yaml:"items"`
}

type seedItem struct {
	ID     string   `yaml:"id"`
	Text   string   `yaml:"text"`
	Author string   `yaml:"author"`
	Source string   `yaml:"source"`
	Media  string   `yaml:"media"`
	Tags   []string `yaml:"tags"`
}

// LoadSeed reads a YAML catalog file and returns validated, normalized
// items. Unknown keys and duplicate ids are errors: a typo in the seed
// file should fail loudly at startup, not silently shrink the catalog.
func LoadSeed(path string) ([]ContentItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("content: read seed %s: %w", path, err)
	}
	return parseSeed(raw, path)
}

func parseSeed(raw []byte, path string) ([]ContentItem, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var f seedFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("content: seed %s is empty", path)
		}
		return nil, fmt.Errorf("content: parse seed %s: %w", path, err)
	}

	items := make([]ContentItem, 0, len(f.Items))
	seen := make(map[ItemID]struct{}, len(f.Items))
	for i, si := range f.Items {
		it := ContentItem{
			ID:     ItemID(si.ID),
			Text:   si.Text,
			Author: si.Author,
			Source: si.Source,
			Media:  si.Media,
			Tags:   si.Tags,
		}
		it.Normalize()
		if err := it.Validate(); err != nil {
			return nil, fmt.Errorf("content: seed %s item %d: %w", path, i, err)
		}
		if _, dup := seen[it.ID]; dup {
			return nil, fmt.Errorf("content: seed %s: duplicate id %q", path, it.ID)
		}
		seen[it.ID] = struct{}{}
		items = append(items, it)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("content: seed %s has no items", path)
	}
	return items, nil
}
