package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
)

type seedFile struct {
	Characters []struct {
		Name  string `json:"name"`
		Image string `json:"image"`
	} `json:"characters"`
}

// Import registers characters from a JSON document of the form
// {"characters":[{"name":"...","image":"images/x.jpg"}]}. Image paths are
// reduced to their base name, so they resolve inside the image directory.
// Existing names are skipped. It returns how many characters were added.
func (c *Catalog) Import(ctx context.Context, r io.Reader) (int, error) {
	var doc seedFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("decode seed: %w", err)
	}
	added := 0
	for i, ch := range doc.Characters {
		ref := ""
		if ch.Image != "" {
			ref = filepath.Base(ch.Image)
		}
		ok, err := c.Add(ctx, ch.Name, ref)
		if err != nil {
			return added, fmt.Errorf("seed entry %d (%q): %w", i, ch.Name, err)
		}
		if ok {
			added++
		}
	}
	return added, nil
}
