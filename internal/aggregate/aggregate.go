package aggregate

import (
	"github.com/danielpatrickdp/bimcheck/internal/element"
	"github.com/danielpatrickdp/bimcheck/internal/rules"
)

// #region aggregate
// Aggregate reduces one run's elements and issues into a Summary.
// Both category maps always carry the fixed categories, zero-filled, so the
// output shape does not depend on which categories happened to occur.
func Aggregate(elements []element.Element, issues []rules.Issue) Summary {
	s := Summary{
		TotalElements:      len(elements),
		TotalIssues:        len(issues),
		IssuesByCategory:   make(map[rules.Category]int, 3),
		ElementsByCategory: make(map[element.Category]int, 7),
	}

	for _, c := range rules.Categories() {
		s.IssuesByCategory[c] = 0
	}
	for _, is := range issues {
		s.IssuesByCategory[is.RuleCategory]++
	}

	for _, c := range element.Categories() {
		s.ElementsByCategory[c] = 0
	}
	for _, el := range elements {
		s.ElementsByCategory[element.ParseCategory(string(el.Category))]++
	}

	s.ConformityRate = ConformityRate(s.TotalElements, s.TotalIssues)
	return s
}

// ConformityRate is round(100 * (elements - issues) / elements), half rounded
// up, clamped to [0, 100]. No elements means nothing is non-conformant: 100.
func ConformityRate(totalElements, totalIssues int) int {
	if totalElements <= 0 {
		return 100
	}
	conformant := totalElements - totalIssues
	if conformant <= 0 {
		return 0
	}
	// integer round-half-up of 100*conformant/totalElements
	rate := (200*conformant + totalElements) / (2 * totalElements)
	if rate > 100 {
		return 100
	}
	return rate
}

// #endregion aggregate

// #region most-common
// MostCommonIssueCategory returns the rule category with the most issues.
// Ties go to the earlier category in rules.Categories(). ok is false when the
// summary holds no issues.
func (s Summary) MostCommonIssueCategory() (rules.Category, bool) {
	var best rules.Category
	bestCount := 0
	for _, c := range rules.Categories() {
		if n := s.IssuesByCategory[c]; n > bestCount {
			best, bestCount = c, n
		}
	}
	return best, bestCount > 0
}

// #endregion most-common
