package intent

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

// Vocabulary lists the phrases that are answered locally.
type Vocabulary struct {
	Exact struct {
		Greeting []string `yaml:"greeting"`
		Thanks   []string `yaml:"thanks"`
		Goodbye  []string `yaml:"goodbye"`
	} `yaml:"exact"`
	Keywords struct {
		SQLRequest       []string `yaml:"sql_request"`
		BreakdownRequest []string `yaml:"breakdown_request"`
		ListTables       []string `yaml:"list_tables"`
		ListQuestions    []string `yaml:"list_questions"`
	} `yaml:"keywords"`
}

// DefaultVocabulary returns the built-in phrase lists.
func DefaultVocabulary() Vocabulary {
	v, err := ParseVocabulary(defaultVocabulary)
	if err != nil {
		panic(fmt.Sprintf("intent: embedded vocabulary is invalid: %v", err))
	}
	return v
}

func ParseVocabulary(b []byte) (Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(b, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("parse vocabulary: %w", err)
	}
	if v.empty() {
		return Vocabulary{}, fmt.Errorf("parse vocabulary: no phrases defined")
	}
	return v, nil
}

// LoadVocabulary reads a vocabulary file, falling back to the built-in lists
// when path is empty.
func LoadVocabulary(path string) (Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("read vocabulary %s: %w", path, err)
	}
	return ParseVocabulary(b)
}

func (v Vocabulary) empty() bool {
	return len(v.Exact.Greeting)+len(v.Exact.Thanks)+len(v.Exact.Goodbye)+
		len(v.Keywords.SQLRequest)+len(v.Keywords.BreakdownRequest)+
		len(v.Keywords.ListTables)+len(v.Keywords.ListQuestions) == 0
}
