package domain

import (
	"errors"

	"peakfit/workout-catalog/internal/treestore"
)

// Discriminators are the four category values that place a workout in the
// catalog tree, outermost first.
type Discriminators struct {
	Goal        string `json:"goal"`
	Limitations string `json:"limitations"`
	Level       string `json:"level"`
	Day         string `json:"day"`
}

// Categorized is anything that carries the four discriminators.
type Categorized interface {
	Discriminators() Discriminators
}

// Discriminators lets a bare Discriminators value satisfy Categorized.
func (d Discriminators) Discriminators() Discriminators { return d }

// Segments returns the discriminators in path order.
func (d Discriminators) Segments() []string {
	return []string{d.Goal, d.Limitations, d.Level, d.Day}
}

// DiscriminatorsFromSegments is the inverse of Segments.
func DiscriminatorsFromSegments(segs []string) Discriminators {
	var d Discriminators
	if len(segs) > 0 {
		d.Goal = segs[0]
	}
	if len(segs) > 1 {
		d.Limitations = segs[1]
	}
	if len(segs) > 2 {
		d.Level = segs[2]
	}
	if len(segs) > 3 {
		d.Day = segs[3]
	}
	return d
}

// DerivePath maps c's discriminators to the four path segments it is stored
// under. Values are used verbatim: no trimming or case folding.
// Every missing or unusable discriminator is reported in one ValidationError.
func DerivePath(c Categorized) (treestore.Path, error) {
	d := c.Discriminators()
	fields := []struct {
		name  string
		value string
	}{
		{"goal", d.Goal},
		{"limitations", d.Limitations},
		{"level", d.Level},
		{"day", d.Day},
	}

	var errs []FieldError
	for _, f := range fields {
		if f.value == "" {
			errs = append(errs, FieldError{Field: f.name, Message: "required"})
			continue
		}
		if err := treestore.ValidateKey(f.value); err != nil {
			errs = append(errs, FieldError{Field: f.name, Message: "contains characters not allowed in a catalog key"})
		}
	}
	if len(errs) > 0 {
		return nil, NewValidationErrors(errs)
	}
	return treestore.Path(d.Segments()), nil
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
