package tree

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"peakfit/workout-catalog/internal/domain"
)

// workoutNode is the stored shape of a record.
type workoutNode struct {
	ID        string `mapstructure:"id,omitempty"`
	CreatedBy string `mapstructure:"createdBy,omitempty"`
	Title     string `mapstructure:"title,omitempty"`
	VideoURL  string `mapstructure:"videoUrl,omitempty"`
	Thumbnail string `mapstructure:"thumbnail,omitempty"`
	Duration  int    `mapstructure:"duration"`
	Date      string `mapstructure:"date,omitempty"`
	MovedAt   string `mapstructure:"movedAt,omitempty"`

	Goal        string `mapstructure:"goal,omitempty"`
	Limitations string `mapstructure:"limitations,omitempty"`
	Level       string `mapstructure:"level,omitempty"`
	Day         string `mapstructure:"day,omitempty"`
}

// toNode converts a record into the map written to the store.
func toNode(w domain.Workout) (map[string]any, error) {
	n := workoutNode{
		ID:          w.ID,
		CreatedBy:   w.CreatedBy,
		Title:       w.Title,
		VideoURL:    w.VideoURL,
		Thumbnail:   w.Thumbnail,
		Duration:    w.Duration,
		Date:        w.Date,
		MovedAt:     w.MovedAt,
		Goal:        w.Goal,
		Limitations: w.Limitations,
		Level:       w.Level,
		Day:         w.Day,
	}
	out := make(map[string]any)
	if err := mapstructure.Decode(n, &out); err != nil {
		return nil, fmt.Errorf("encode workout %q: %w", w.ID, err)
	}
	return out, nil
}

// fromNode reads a stored record. Numbers and strings are converted loosely
// since every backend hands numbers back in its own type, and unknown fields
// are ignored.
func fromNode(node map[string]any) (domain.Workout, error) {
	var n workoutNode
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &n,
	})
	if err != nil {
		return domain.Workout{}, err
	}
	if err := dec.Decode(node); err != nil {
		return domain.Workout{}, fmt.Errorf("decode workout: %w", err)
	}
	return domain.Workout{
		ID:          n.ID,
		CreatedBy:   n.CreatedBy,
		Title:       n.Title,
		VideoURL:    n.VideoURL,
		Thumbnail:   n.Thumbnail,
		Duration:    n.Duration,
		Date:        n.Date,
		MovedAt:     n.MovedAt,
		Goal:        n.Goal,
		Limitations: n.Limitations,
		Level:       n.Level,
		Day:         n.Day,
	}, nil
}

// nodeID returns the record id stored in node, falling back to its key.
func nodeID(node map[string]any, key string) string {
	if v, ok := node["id"]; ok && v != nil {
		if s := fmt.Sprint(v); s != "" {
			return s
		}
	}
	return key
}
