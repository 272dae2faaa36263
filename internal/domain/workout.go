// internal/domain/workout.go
package domain

import "time"

// DateLayout is the ISO-8601 layout used for the workout `date` field
// (UTC with millisecond precision, as produced by the mobile client).
const DateLayout = "2006-01-02T15:04:05.000Z"

// Workout is a single prescribed workout in the catalog.
// Goal, Limitations, Level and Day are the discriminators that decide where
// the record lives in the catalog tree; they are also kept on the record itself.
type Workout struct {
	ID        string `json:"id"`
	CreatedBy string `json:"createdBy"` // Owning user (token uid)
	Title     string `json:"title"`
	VideoURL  string `json:"videoUrl"`
	Thumbnail string `json:"thumbnail"` // URL or managed object key
	Duration  int    `json:"duration"`
	Date      string `json:"date"`
	// MovedAt is stamped when a move files the record under new
	// discriminators. Inserts clear it and patches cannot set it.
	MovedAt string `json:"movedAt,omitempty"`

	Goal        string `json:"goal"`
	Limitations string `json:"limitations"`
	Level       string `json:"level"`
	Day         string `json:"day"`

	// Location is where the record was found during a read. Nil on records
	// that have not been read back from the catalog.
	Location *Location `json:"location,omitempty"`
}

// Discriminators returns the four category values carried on the record.
func (w Workout) Discriminators() Discriminators {
	return Discriminators{
		Goal:        w.Goal,
		Limitations: w.Limitations,
		Level:       w.Level,
		Day:         w.Day,
	}
}

// WithDiscriminators returns a copy of the workout filed under d.
func (w Workout) WithDiscriminators(d Discriminators) Workout {
	w.Goal = d.Goal
	w.Limitations = d.Limitations
	w.Level = d.Level
	w.Day = d.Day
	return w
}

// Location describes the catalog position a record was read from.
type Location struct {
	Path Discriminators `json:"path"`
	// Key is the record's key inside the leaf collection. Empty for records
	// stored in a list-form leaf, which are addressed by Index instead.
	Key   string `json:"key,omitempty"`
	Index int    `json:"-"`
	// Drift is set when the stored discriminators disagree with Path.
	Drift bool `json:"drift,omitempty"`
}

// Listed reports whether the record sits in a list-form leaf collection.
func (l Location) Listed() bool {
	return l.Key == "" && l.Index >= 0
}

// WorkoutPatch is a partial update. Only these fields can be changed through
// an update; anything else a caller sends is dropped when the request is
// decoded into this type.
type WorkoutPatch struct {
	ID        *string `json:"id,omitempty"`
	CreatedBy *string `json:"createdBy,omitempty"`
	Thumbnail *string `json:"thumbnail,omitempty"`
	Title     *string `json:"title,omitempty"`
	VideoURL  *string `json:"videoUrl,omitempty"`
	Duration  *int    `json:"duration,omitempty"`
	Date      *string `json:"date,omitempty"`

	Goal        *string `json:"goal,omitempty"`
	Limitations *string `json:"limitations,omitempty"`
	Level       *string `json:"level,omitempty"`
	Day         *string `json:"day,omitempty"`
}

// Apply returns the canonical record produced by layering the patch over w.
// Location is cleared since the result has not been stored yet.
func (p WorkoutPatch) Apply(w Workout) Workout {
	out := w
	out.Location = nil
	setString(&out.ID, p.ID)
	setString(&out.CreatedBy, p.CreatedBy)
	setString(&out.Thumbnail, p.Thumbnail)
	setString(&out.Title, p.Title)
	setString(&out.VideoURL, p.VideoURL)
	if p.Duration != nil {
		out.Duration = *p.Duration
	}
	setString(&out.Date, p.Date)

	setString(&out.Goal, p.Goal)
	setString(&out.Limitations, p.Limitations)
	setString(&out.Level, p.Level)
	setString(&out.Day, p.Day)
	return out
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate parses a workout date. RFC 3339 values without milliseconds are
// accepted as well.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
