package aggregate

import (
	"github.com/danielpatrickdp/bimcheck/internal/element"
	"github.com/danielpatrickdp/bimcheck/internal/rules"
)

// #region summary
// Summary is the per-run reduction of elements and issues. It is recomputed
// for every run and only persisted as part of a history entry.
type Summary struct {
	TotalElements      int                      `json:"totalElements" validate:"gte=0"`
	TotalIssues        int                      `json:"totalIssues" validate:"gte=0"`
	ConformityRate     int                      `json:"conformityRate" validate:"gte=0,lte=100"`
	IssuesByCategory   map[rules.Category]int   `json:"issuesByCategory" validate:"dive,gte=0"`
	ElementsByCategory map[element.Category]int `json:"elementsByCategory" validate:"dive,gte=0"`
}

// #endregion summary
