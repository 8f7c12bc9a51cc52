package oblique

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotLoaded is returned when a Collection is queried before Load.
	ErrNotLoaded = errors.New("collection is not loaded")

	// ErrAlreadyInitialized is returned by a second DataSet.Initialize.
	ErrAlreadyInitialized = errors.New("data set is already initialized")

	// ErrNoCollection is returned when a Provider is activated without a Collection.
	ErrNoCollection = errors.New("provider has no collection")

	// ErrNoIntersection is returned when the footprint fallback finds no
	// usable corner pair.
	ErrNoIntersection = errors.New("no footprint intersection found")
)

// ErrNoImage indicates that no direction of a Collection holds an image
type ErrNoImage struct {
	Direction ViewDirection
}

func (e *ErrNoImage) Error() string {
	return fmt.Sprintf("no image available for view direction %s", e.Direction)
}

// ErrUnknownProjection indicates a CRS the projection registry cannot build
type ErrUnknownProjection struct {
	Code string
}

func (e *ErrUnknownProjection) Error() string {
	return fmt.Sprintf("unknown projection %q", e.Code)
}

// ErrFetch indicates a metadata request answered with a non-success status
type ErrFetch struct {
	URL    string
	Status int
}

func (e *ErrFetch) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
}
