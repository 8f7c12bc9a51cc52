package metadata

import (
	"fmt"
)

// ErrInvalidMetadata indicates a document that cannot be turned into images
type ErrInvalidMetadata struct {
	Reason string
}

func (e *ErrInvalidMetadata) Error() string {
	return fmt.Sprintf("invalid oblique metadata: %s", e.Reason)
}

// ErrInvalidImageRecord indicates a single image entry that was skipped
type ErrInvalidImageRecord struct {
	Index  int
	Name   string
	Reason string
}

func (e *ErrInvalidImageRecord) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("image %q (entry %d): %s", e.Name, e.Index, e.Reason)
	}
	return fmt.Sprintf("image entry %d: %s", e.Index, e.Reason)
}
