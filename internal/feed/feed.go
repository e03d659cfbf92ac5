// Package feed provides the inspiration looks and stylist tips.
package feed

import (
	_ "embed"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed feed.yaml
var builtin []byte

// Look is one inspiration image.
type Look struct {
	URL  string   `yaml:"url" json:"url"`
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Feed is the inspiration catalogue.
type Feed struct {
	Looks []Look   `yaml:"looks" json:"looks"`
	Tips  []string `yaml:"tips" json:"tips"`
}

// Default returns the built-in feed.
func Default() Feed {
	f, err := parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("feed: built-in feed.yaml is invalid: %v", err))
	}
	return f
}

// Load reads a feed from a YAML file. An empty path returns Default().
func Load(path string) (Feed, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Feed{}, fmt.Errorf("reading feed %s: %w", path, err)
	}
	f, err := parse(data)
	if err != nil {
		return Feed{}, fmt.Errorf("parsing feed %s: %w", path, err)
	}
	if len(f.Tips) == 0 {
		f.Tips = Default().Tips
	}
	return f, nil
}

func parse(data []byte) (Feed, error) {
	var f Feed
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Feed{}, err
	}
	looks := f.Looks[:0]
	for _, l := range f.Looks {
		l.URL = strings.TrimSpace(l.URL)
		if l.URL == "" {
			continue
		}
		looks = append(looks, l)
	}
	f.Looks = looks
	if len(f.Looks) == 0 {
		return Feed{}, fmt.Errorf("feed has no looks")
	}
	return f, nil
}

// Tags returns the distinct tags across all looks in first-seen order.
func (f Feed) Tags() []string {
	seen := make(map[string]bool)
	var tags []string
	for _, l := range f.Looks {
		for _, t := range l.Tags {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	return tags
}

// Tip returns a random stylist tip, or "" when there are none.
func (f Feed) Tip() string {
	if len(f.Tips) == 0 {
		return ""
	}
	return f.Tips[rand.IntN(len(f.Tips))]
}
