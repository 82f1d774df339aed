// Package registry loads the source registry from a YAML or JSON file.
package registry

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/realtime-feeds/internal/feeds"
	"github.com/JakeFAU/realtime-feeds/internal/urlcanon"
)

// ErrInvalid marks a registry that fails validation.
var ErrInvalid = errors.New("invalid source registry")

type document struct {
	Sources []feeds.Source `yaml:"sources"`
}

// Load reads and validates the registry at path. JSON is accepted because
// it is a subset of YAML.
func Load(path string) ([]feeds.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	sources, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return sources, nil
}

// Parse decodes a registry holding either a top-level list of sources or a
// mapping with a "sources" key, then normalizes and validates it.
func Parse(data []byte) ([]feeds.Source, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalid)
	}

	var sources []feeds.Source
	switch top := root.Content[0]; top.Kind {
	case yaml.SequenceNode:
		if err := top.Decode(&sources); err != nil {
			return nil, fmt.Errorf("decode sources: %w", err)
		}
	case yaml.MappingNode:
		var doc document
		if err := top.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode sources: %w", err)
		}
		sources = doc.Sources
	default:
		return nil, fmt.Errorf("%w: expected a list or a sources mapping", ErrInvalid)
	}

	for i := range sources {
		normalize(&sources[i])
	}
	if err := Validate(sources); err != nil {
		return nil, err
	}
	return sources, nil
}

func normalize(src *feeds.Source) {
	src.ID = strings.TrimSpace(src.ID)
	src.Name = strings.TrimSpace(src.Name)
	src.URL = strings.TrimSpace(src.URL)
	src.FeedURL = strings.TrimSpace(src.FeedURL)
	if src.Name == "" {
		src.Name = src.ID
	}
	if src.URL == "" {
		if u, err := url.Parse(src.FeedURL); err == nil && u.Host != "" {
			src.URL = u.Scheme + "://" + u.Host + "/"
		}
	}
}

// Validate rejects sources without an id or feed URL and duplicate ids.
func Validate(sources []feeds.Source) error {
	var problems []string
	seen := make(map[string]int, len(sources))
	for i, src := range sources {
		if src.ID == "" {
			problems = append(problems, fmt.Sprintf("source %d has no id", i))
			continue
		}
		if first, dup := seen[src.ID]; dup {
			problems = append(problems, fmt.Sprintf("source %d duplicates id %q of source %d", i, src.ID, first))
		} else {
			seen[src.ID] = i
		}
		if src.FeedURL == "" {
			problems = append(problems, fmt.Sprintf("source %q has no feedUrl", src.ID))
		} else if !urlcanon.LooksLikeURL(src.FeedURL) {
			problems = append(problems, fmt.Sprintf("source %q feedUrl %q is not an http(s) url", src.ID, src.FeedURL))
		}
		if src.MaxItems < 0 {
			problems = append(problems, fmt.Sprintf("source %q has negative maxItems", src.ID))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
