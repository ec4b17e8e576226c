package source

import (
	"context"
	"errors"

	"github.com/danielpatrickdp/bimcheck/internal/element"
)

// #region errors
var (
	// ErrTooLarge is returned when an element file exceeds the configured ceiling.
	ErrTooLarge = errors.New("element file too large")
	// ErrUnsupportedFile is returned for files that are not JSON element documents.
	ErrUnsupportedFile = errors.New("unsupported element file")
	// ErrBadDocument is returned when an element document cannot be decoded.
	ErrBadDocument = errors.New("invalid element document")
)

// #endregion errors

// #region source
// Source supplies the ordered element set of one run. An error means no
// elements are available at all and the run fails.
type Source interface {
	Elements(ctx context.Context) ([]element.Element, error)
}

// Labeler is implemented by sources that know a display label for their
// element set, such as a file or project name.
type Labeler interface {
	Label() string
}

// #endregion source

// #region static
// Static is an in-memory Source.
type Static struct {
	Name  string
	Items []element.Element
	Err   error
}

// Elements returns a copy of Items, or Err when set.
func (s Static) Elements(context.Context) ([]element.Element, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]element.Element, len(s.Items))
	copy(out, s.Items)
	return out, nil
}

// Label returns Name.
func (s Static) Label() string {
	return s.Name
}

// #endregion static
