// Package category maps free-form waste labels onto the fixed four-value taxonomy.
package category

import "strings"

// Category is one of the four canonical waste classes.
type Category int

const (
	// Unsorted is the zero value so that unknown input never needs an error path.
	Unsorted Category = iota
	Biodegradable
	NonBiodegradable
	Recyclable
)

// All returns the categories in positional (bin slot) order.
func All() []Category {
	return []Category{Biodegradable, NonBiodegradable, Recyclable, Unsorted}
}

// String returns the single display form used by every presentation layer.
func (c Category) String() string {
	switch c {
	case Biodegradable:
		return "Biodegradable"
	case NonBiodegradable:
		return "Non-Biodegradable"
	case Recyclable:
		return "Recyclable"
	default:
		return "Unsorted"
	}
}

// Slot returns the zero-based positional index of c in All().
func (c Category) Slot() int {
	switch c {
	case Biodegradable:
		return 0
	case NonBiodegradable:
		return 1
	case Recyclable:
		return 2
	default:
		return 3
	}
}

// MarshalText lets categories travel as their display form in JSON and YAML.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText normalizes any label; it never fails.
func (c *Category) UnmarshalText(b []byte) error {
	*c = Normalize(string(b))
	return nil
}

var synonyms = map[string]Category{
	"recyclable":        Recyclable,
	"recycle":           Recyclable,
	"recycable":         Recyclable,
	"non biodegradable": NonBiodegradable,
	"non-biodegradable": NonBiodegradable,
	"non_biodegradable": NonBiodegradable,
	"nonbiodegradable":  NonBiodegradable,
	"non bio":           NonBiodegradable,
	"non-bio":           NonBiodegradable,
	"non_bio":           NonBiodegradable,
	"biodegradable":     Biodegradable,
	"bio":               Biodegradable,
	"unsorted":          Unsorted,
}

// Normalize maps raw onto a canonical category. It is total: anything it does
// not recognize, including the empty string, is Unsorted.
func Normalize(raw string) Category {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.Join(strings.Fields(key), " ")
	if c, ok := synonyms[key]; ok {
		return c
	}
	return Unsorted
}
