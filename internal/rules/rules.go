package rules

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/bimcheck/internal/element"
)

// ErrInvalidRuleConfig is returned when the rule set cannot be built.
var ErrInvalidRuleConfig = errors.New("invalid rule configuration")

// #region evaluator
// Evaluator applies the fixed rule set to element sequences.
type Evaluator struct {
	rules []Rule
}

// NewEvaluator builds the three-rule set from config.
func NewEvaluator(config Config) (*Evaluator, error) {
	if len(config.NormTokens) == 0 {
		return nil, fmt.Errorf("%w: no accepted norm tokens", ErrInvalidRuleConfig)
	}
	tokens := make([]string, 0, len(config.NormTokens))
	for i, t := range config.NormTokens {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			return nil, fmt.Errorf("%w: norm token %d is blank", ErrInvalidRuleConfig, i)
		}
		tokens = append(tokens, t)
	}

	return &Evaluator{rules: []Rule{
		{
			ID:       RuleMaterialPresent,
			Category: CategoryMaterial,
			Severity: SeverityHigh,
			Check:    checkMaterial,
		},
		{
			ID:       RuleDimensionsPositive,
			Category: CategoryDimensions,
			Severity: SeverityHigh,
			Check:    checkDimensions,
		},
		{
			ID:       RuleNormCodePresent,
			Category: CategoryNormCode,
			Severity: SeverityMedium,
			Check:    normCodeCheck(tokens),
		},
	}}, nil
}

// Rules returns the rule set in evaluation order.
func (e *Evaluator) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate runs every rule against every element, in input order then rule
// order, and returns one Issue per failed (element, rule) pair. The result is
// never nil.
func (e *Evaluator) Evaluate(elements []element.Element) []Issue {
	issues := make([]Issue, 0)
	for _, el := range elements {
		for _, r := range e.rules {
			var desc string
			var ok bool
			if el.Malformed() {
				desc = "Element has no properties"
			} else {
				desc, ok = r.Check(el)
			}
			if ok {
				continue
			}
			issues = append(issues, Issue{
				ID:             len(issues) + 1,
				ElementID:      el.ID,
				ElementName:    el.Name,
				RuleID:         r.ID,
				RuleCategory:   r.Category,
				Severity:       r.Severity,
				Description:    desc,
				Recommendation: r.Category.Recommendation(),
			})
		}
	}
	return issues
}

// Malformed returns the identifiers of elements lacking a property bag.
// Elements without an ID are reported by their input position.
func Malformed(elements []element.Element) []string {
	var ids []string
	for i, el := range elements {
		if !el.Malformed() {
			continue
		}
		if el.ID != "" {
			ids = append(ids, el.ID)
		} else {
			ids = append(ids, fmt.Sprintf("#%d", i))
		}
	}
	return ids
}

// #endregion evaluator

// #region checks
func checkMaterial(el element.Element) (string, bool) {
	v, ok := el.Property(element.PropMaterial)
	if !ok {
		return "Element does not have material specified", false
	}
	if strings.TrimSpace(v) == "" {
		return "Element material is empty", false
	}
	return "", true
}

func checkDimensions(el element.Element) (string, bool) {
	v, ok := el.Property(element.PropDimensions)
	if !ok {
		return "Element does not have dimensions specified", false
	}
	if strings.TrimSpace(v) == "" {
		return "Element dimensions are empty", false
	}
	if !positiveDimensions(v) {
		return fmt.Sprintf("Element dimensions %q are not all positive numbers", v), false
	}
	return "", true
}

func normCodeCheck(tokens []string) func(element.Element) (string, bool) {
	return func(el element.Element) (string, bool) {
		v, ok := el.Property(element.PropNormCode)
		if !ok {
			return "Element does not have a standard code associated", false
		}
		if strings.TrimSpace(v) == "" {
			return "Element standard code is empty", false
		}
		code := strings.ToUpper(v)
		for _, t := range tokens {
			if containsToken(code, t) {
				return "", true
			}
		}
		return fmt.Sprintf("Standard code %q does not reference any of %s", v, strings.Join(tokens, ", ")), false
	}
}

// #endregion checks

// #region helpers
var (
	dimensionSeparator = regexp.MustCompile(`[xX×]`)
	leadingNumber      = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// positiveDimensions splits "AxBxC" and requires each part's leading number
// to be finite and > 0. Units after the number ("300mm") are ignored.
func positiveDimensions(v string) bool {
	parts := dimensionSeparator.Split(v, -1)
	for _, p := range parts {
		num := leadingNumber.FindString(strings.TrimSpace(p))
		if num == "" {
			return false
		}
		f, err := strconv.ParseFloat(num, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f <= 0 {
			return false
		}
	}
	return true
}

// containsToken reports whether token occurs in code with no letter directly
// before or after it, so "EN 1992" and "DIN EN1992" match EN but "GENERIC" does not.
func containsToken(code, token string) bool {
	for start := 0; start <= len(code)-len(token); {
		idx := strings.Index(code[start:], token)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(token)
		if (idx == 0 || !isLetter(code[idx-1])) && (end == len(code) || !isLetter(code[end])) {
			return true
		}
		start = idx + 1
	}
	return false
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// #endregion helpers
