package rules

import "github.com/danielpatrickdp/bimcheck/internal/element"

// #region category
// Category enumerates the rule categories an Issue can belong to.
type Category string

const (
	CategoryMaterial   Category = "material"
	CategoryDimensions Category = "dimensions"
	CategoryNormCode   Category = "normCode"
)

// Categories returns the rule categories in declaration order. Tie-breaks
// anywhere in the engine follow this order.
func Categories() []Category {
	return []Category{CategoryMaterial, CategoryDimensions, CategoryNormCode}
}

// Label is the human-facing category name.
func (c Category) Label() string {
	switch c {
	case CategoryMaterial:
		return "Material"
	case CategoryDimensions:
		return "Dimensions"
	case CategoryNormCode:
		return "Standard Code"
	}
	return string(c)
}

// Title is the short problem heading shown per issue.
func (c Category) Title() string {
	switch c {
	case CategoryMaterial:
		return "Material not defined"
	case CategoryDimensions:
		return "Invalid dimensions"
	case CategoryNormCode:
		return "Missing standard code"
	}
	return "Problem not identified"
}

// Recommendation is the remediation hint attached to every issue of the category.
func (c Category) Recommendation() string {
	switch c {
	case CategoryMaterial:
		return "Add material specification according to EN 1992-1-1 (Eurocode 2)"
	case CategoryDimensions:
		return "Define physical dimensions according to EN 1992-1-1 structural requirements"
	case CategoryNormCode:
		return "Associate an appropriate technical standard code (EN, ISO or ASTM)"
	}
	return ""
}

// #endregion category

// #region severity
// Severity ranks how serious a rule failure is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Label is the capitalized severity name.
func (s Severity) Label() string {
	switch s {
	case SeverityLow:
		return "Low"
	case SeverityMedium:
		return "Medium"
	case SeverityHigh:
		return "High"
	}
	return string(s)
}

// #endregion severity

// #region issue
// Issue records one rule failing against one element. Issues are created by
// the Evaluator only and never modified afterwards.
type Issue struct {
	ID             int      `json:"id"`
	ElementID      string   `json:"elementId"`
	ElementName    string   `json:"elementName"`
	RuleID         string   `json:"ruleId"`
	RuleCategory   Category `json:"ruleCategory"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
}

// #endregion issue

// #region rule
// Rule is one fixed compliance check. Check returns a failure description and
// false when the element does not satisfy the rule.
type Rule struct {
	ID       string
	Category Category
	Severity Severity
	Check    func(el element.Element) (string, bool)
}

// Rule IDs of the fixed rule set.
const (
	RuleMaterialPresent    = "material-present"
	RuleDimensionsPositive = "dimensions-positive"
	RuleNormCodePresent    = "norm-code-present"
)

// #endregion rule

// #region config
// Config holds the parameters of the fixed rule set.
type Config struct {
	NormTokens []string // accepted standard prefixes for normCode
}

// DefaultConfig returns the accepted-token set EN, ISO, ASTM.
func DefaultConfig() Config {
	return Config{
		NormTokens: []string{"EN", "ISO", "ASTM"},
	}
}

// #endregion config
