// Package catalogue holds the quick-reply chips and the canned answers
// used in offline demo mode.
package catalogue

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/common"
)

//go:embed default.yaml
var defaultYAML []byte

type Answer struct {
	Keywords []string                   `yaml:"keywords"`
	Text     map[common.Language]string `yaml:"text"`
}

type Catalogue struct {
	SuggestionSets map[common.Language][]string `yaml:"suggestions"`
	Answers        []Answer                     `yaml:"answers"`
	Fallback       map[common.Language]string   `yaml:"fallback"`
}

func Parse(b []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("catalogue: %w", err)
	}
	if len(c.SuggestionSets[common.English]) == 0 {
		return nil, fmt.Errorf("catalogue: english suggestions are required")
	}
	return &c, nil
}

// Default returns the embedded catalogue.
func Default() *Catalogue {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads path, or returns the embedded catalogue when path is empty.
func Load(path string) (*Catalogue, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalogue: %w", err)
	}
	return Parse(b)
}

// Suggestions returns a copy of the chips for lang, or the English ones.
func (c *Catalogue) Suggestions(lang common.Language) []string {
	s, ok := c.SuggestionSets[lang]
	if !ok || len(s) == 0 {
		s = c.SuggestionSets[common.English]
	}
	return append([]string(nil), s...)
}

// Answer returns the text of the first entry with a keyword contained in
// text, in lang when available and English otherwise.
func (c *Catalogue) Answer(text string, lang common.Language) string {
	q := strings.ToLower(text)
	for _, a := range c.Answers {
		for _, kw := range a.Keywords {
			if kw != "" && strings.Contains(q, strings.ToLower(kw)) {
				return pick(a.Text, lang)
			}
		}
	}
	return pick(c.Fallback, lang)
}

func pick(m map[common.Language]string, lang common.Language) string {
	if s, ok := m[lang]; ok && s != "" {
		return strings.TrimSpace(s)
	}
	if lang == common.Garhwali || lang == common.Kumaoni {
		if s, ok := m[common.Hindi]; ok && s != "" {
			return strings.TrimSpace(s)
		}
	}
	return strings.TrimSpace(m[common.English])
}
