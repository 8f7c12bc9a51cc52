package oblique

import (
	"strings"

	"github.com/pkg/errors"
)

// ViewDirection is the coarse heading bucket of a photograph.
type ViewDirection int

const (
	North ViewDirection = iota + 1
	East
	South
	West
	Nadir
)

// ViewDirections lists all directions in fallback order.
var ViewDirections = []ViewDirection{North, East, South, West, Nadir}

var viewDirectionNames = map[ViewDirection]string{
	North: "north",
	East:  "east",
	South: "south",
	West:  "west",
	Nadir: "nadir",
}

func (d ViewDirection) String() string {
	if name, ok := viewDirectionNames[d]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether d is one of the five known directions.
func (d ViewDirection) Valid() bool {
	return d >= North && d <= Nadir
}

// ParseViewDirection accepts direction names case-insensitively.
func ParseViewDirection(s string) (ViewDirection, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d, name := range viewDirectionNames {
		if name == s {
			return d, nil
		}
	}
	return 0, errors.Errorf("unknown view direction %q", s)
}

// cornerRotation is the number of quarter turns between the canonical
// footprint order and the image corner order for this direction.
func (d ViewDirection) cornerRotation() int {
	switch d {
	case East:
		return 1
	case South:
		return 2
	case West:
		return 3
	default:
		return 0
	}
}
