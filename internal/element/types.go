package element

import "strings"

// #region category
// Category is the closed set of building element categories.
type Category string

const (
	Wall         Category = "Wall"
	Door         Category = "Door"
	Window       Category = "Window"
	Floor        Category = "Floor"
	Ceiling      Category = "Ceiling"
	Structure    Category = "Structure"
	Unclassified Category = "unclassified"
)

// Categories lists the known categories in display order. Unclassified is not included.
func Categories() []Category {
	return []Category{Wall, Door, Window, Floor, Ceiling, Structure}
}

// ParseCategory maps a free-form category name onto the enumeration.
// Matching ignores case, a trailing plural "s" and an "Ifc" prefix, so
// "walls", "IfcWall" and "Wall" are all Wall. Anything else is Unclassified.
func ParseCategory(raw string) Category {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "ifc")
	switch s {
	case "wall", "walls", "wallstandardcase":
		return Wall
	case "door", "doors":
		return Door
	case "window", "windows":
		return Window
	case "floor", "floors", "slab", "slabs":
		return Floor
	case "ceiling", "ceilings", "covering", "coverings":
		return Ceiling
	case "structure", "structures", "beam", "beams", "column", "columns":
		return Structure
	}
	return Unclassified
}

// #endregion category

// #region property-keys
// Property keys read by the rule set.
const (
	PropMaterial   = "material"
	PropDimensions = "dimensions"
	PropNormCode   = "normCode"
)

// #endregion property-keys

// #region element
// Element is one normalized building-model item supplied for a validation run.
// A nil Properties map marks the element as malformed.
type Element struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Category   Category          `json:"category"`
	Properties map[string]string `json:"properties"`
}

// Malformed reports whether the element has no property bag at all.
func (e Element) Malformed() bool {
	return e.Properties == nil
}

// Property returns the named property. The exact key wins; otherwise keys are
// compared ignoring case and underscores, so "norm_code" resolves "normCode".
func (e Element) Property(key string) (string, bool) {
	if e.Properties == nil {
		return "", false
	}
	if v, ok := e.Properties[key]; ok {
		return v, true
	}
	// smallest matching key wins so lookups stay deterministic
	want := foldKey(key)
	var (
		bestKey string
		bestVal string
		found   bool
	)
	for k, v := range e.Properties {
		if foldKey(k) != want {
			continue
		}
		if !found || k < bestKey {
			bestKey, bestVal, found = k, v, true
		}
	}
	return bestVal, found
}

func foldKey(k string) string {
	return strings.ToLower(strings.ReplaceAll(k, "_", ""))
}

// #endregion element
