// Package metadata decodes oblique image metadata documents.
//
// A document describes the cameras of one image source in generalImageInfo
// and lists the images either as a columnar table (imagesHeader + images
// rows) or, for older producers, as an array of per-image objects. Tiled
// sources carry tileLevel and availableTiles instead of images and publish
// one document per tile with the same images schema.
//
// The package only produces plain records; pkg/oblique turns them into
// ImageMeta and Image values.
package metadata

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Document is the top level of an image.json or tile document.
type Document struct {
	Version          string            `json:"version"`
	GeneralImageInfo *GeneralImageInfo `json:"generalImageInfo"`
	ImagesHeader     []string          `json:"imagesHeader"`
	Images           []json.RawMessage `json:"images"`
	TileLevel        int               `json:"tileLevel"`
	AvailableTiles   []string          `json:"availableTiles"`
}

// GeneralImageInfo holds the properties shared by all images of a source.
type GeneralImageInfo struct {
	Width           int               `json:"width"`
	Height          int               `json:"height"`
	TileWidth       int               `json:"tile-width"`
	TileHeight      int               `json:"tile-height"`
	TileResolution  []float64         `json:"tile-resolution"`
	CRS             string            `json:"crs"`
	ImageExtension  string            `json:"imageExtension"`
	Version         string            `json:"version"`
	CameraParameter []CameraParameter `json:"cameraParameter"`
}

// CameraParameter is the calibration of one camera.
type CameraParameter struct {
	Name           string    `json:"name"`
	PrincipalPoint FloatList `json:"principal-point"`
	PixelSize      FloatList `json:"pixel-size"`
	RadialE2F      FloatList `json:"radial-distorsion-expected-2-found"`
	RadialF2E      FloatList `json:"radial-distorsion-found-2-expected"`
	Size           []int     `json:"size"`
}

// FloatList decodes either a single number or an array of numbers.
type FloatList []float64

// UnmarshalJSON accepts 0.009 as well as [0.009, 0.009].
func (f *FloatList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var list []float64
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*f = list
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FloatList{v}
	return nil
}

// Decode parses a metadata document.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ErrInvalidMetadata{Reason: "decode document: " + err.Error()}
	}
	return &doc, nil
}

// IsTiled reports whether the document describes a tiled source.
func (d *Document) IsTiled() bool {
	return d.TileLevel > 0 && len(d.AvailableTiles) > 0
}

// VersionString returns the producer version, preferring the top-level field.
func (d *Document) VersionString() string {
	if d.Version != "" {
		return d.Version
	}
	if d.GeneralImageInfo != nil {
		return d.GeneralImageInfo.Version
	}
	return ""
}

// IsLegacy reports whether the images are stored as per-image objects.
func (d *Document) IsLegacy() bool {
	if len(d.Images) == 0 {
		return false
	}
	first := bytes.TrimSpace(d.Images[0])
	return len(first) > 0 && first[0] == '{'
}

// TileCoordinate is a z/x/y key of the metadata tile grid.
type TileCoordinate struct {
	Z, X, Y int
}

// String formats the coordinate as the "z/x/y" key used in availableTiles.
func (t TileCoordinate) String() string {
	return strconv.Itoa(t.Z) + "/" + strconv.Itoa(t.X) + "/" + strconv.Itoa(t.Y)
}

// ParseTileCoordinate parses a "z/x/y" key.
func ParseTileCoordinate(key string) (TileCoordinate, error) {
	parts := strings.Split(strings.TrimSpace(key), "/")
	if len(parts) != 3 {
		return TileCoordinate{}, &ErrInvalidMetadata{Reason: "invalid tile key " + strconv.Quote(key)}
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return TileCoordinate{}, &ErrInvalidMetadata{Reason: "invalid tile key " + strconv.Quote(key)}
		}
		nums[i] = n
	}
	return TileCoordinate{Z: nums[0], X: nums[1], Y: nums[2]}, nil
}
