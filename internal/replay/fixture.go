package replay

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/danielpatrickdp/bimcheck/internal/rules"
	"github.com/danielpatrickdp/bimcheck/internal/source"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a sequence of
// element sets validated in order against one rule configuration.
type Fixture struct {
	Description string       `json:"description"`
	NormTokens  []string     `json:"norm_tokens,omitempty"`
	Runs        []FixtureRun `json:"runs"`
}

// FixtureRun is one recorded element set and the outcome expected for it.
// Fail simulates an element source failure with that message.
type FixtureRun struct {
	Label    string          `json:"label"`
	Elements json.RawMessage `json:"elements"`
	Fail     string          `json:"fail,omitempty"`
	Expected FixtureExpected `json:"expected"`
}

// FixtureExpected lists the checked outcome fields. Absent fields are not compared.
type FixtureExpected struct {
	Status           string         `json:"status"`
	ConformityRate   *int           `json:"conformity_rate,omitempty"`
	TotalIssues      *int           `json:"total_issues,omitempty"`
	IssuesByCategory map[string]int `json:"issues_by_category,omitempty"`
	Warnings         []string       `json:"warnings,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// RuleConfig returns the fixture's rule configuration, defaulting the tokens.
func (f *Fixture) RuleConfig() rules.Config {
	cfg := rules.DefaultConfig()
	if len(f.NormTokens) > 0 {
		cfg.NormTokens = f.NormTokens
	}
	return cfg
}

// ToSource converts a FixtureRun to the element source replayed for it.
func (fr *FixtureRun) ToSource() (source.Source, error) {
	if fr.Fail != "" {
		return source.Static{Name: fr.Label, Err: errors.New(fr.Fail)}, nil
	}
	if len(fr.Elements) == 0 {
		return source.Static{Name: fr.Label}, nil
	}
	doc, err := source.DecodeDocument(fr.Elements)
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", fr.Label, err)
	}
	return source.Static{Name: fr.Label, Items: doc.Elements}, nil
}

// #endregion fixture-loader
