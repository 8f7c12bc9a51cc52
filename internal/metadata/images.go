package metadata

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ImageRecord is one decoded image entry, still in the source projection.
type ImageRecord struct {
	Name           string
	CameraIndex    int // index into the cameras, -1 when unresolved
	CameraName     string
	Width          int
	Height         int
	TileResolution []float64

	ViewDirection      int
	ViewDirectionAngle *float64

	GroundCoordinates   [][]float64 // 4 corners, [x, y] or [x, y, z]
	CenterPointOnGround []float64

	ProjectionCenter []float64   // [x, y, z]
	PToRealWorld     [][]float64 // 3x3
	PToImage         [][]float64 // 4x4
}

// HasCamera reports whether the record carries a complete camera model.
func (r *ImageRecord) HasCamera() bool {
	return len(r.ProjectionCenter) >= 3 &&
		isMatrix(r.PToRealWorld, 3, 3) &&
		isMatrix(r.PToImage, 4, 4)
}

func isMatrix(m [][]float64, rows, cols int) bool {
	if len(m) != rows {
		return false
	}
	for _, row := range m {
		if len(row) != cols {
			return false
		}
	}
	return true
}

// ParseImages decodes the image entries of a document.
//
// Columnar documents are decoded through their header; legacy documents
// through per-image objects, where the heading angle is only honoured for
// versions that define it. version is used when the document itself carries
// none (tile documents inherit the version of their parent).
//
// Entries that cannot be used are skipped and reported in the error slice.
func ParseImages(doc *Document, version Version) ([]ImageRecord, []error) {
	if v := ParseVersion(doc.VersionString()); v.Valid {
		version = v
	}
	if doc.IsLegacy() {
		return parseLegacyImages(doc.Images, version)
	}
	return parseImageTable(doc.ImagesHeader, doc.Images)
}

func parseImageTable(header []string, rows []json.RawMessage) ([]ImageRecord, []error) {
	if len(header) == 0 && len(rows) > 0 {
		if err := json.Unmarshal(rows[0], &header); err != nil {
			return nil, []error{&ErrInvalidMetadata{Reason: "images table has no header"}}
		}
		rows = rows[1:]
	}

	records := make([]ImageRecord, 0, len(rows))
	var errs []error

	for i, raw := range rows {
		var cells []json.RawMessage
		if err := json.Unmarshal(raw, &cells); err != nil {
			errs = append(errs, &ErrInvalidImageRecord{Index: i, Reason: "row is not an array"})
			continue
		}

		rec := ImageRecord{CameraIndex: -1}
		var cellErr error
		for col, name := range header {
			if col >= len(cells) || isNull(cells[col]) {
				continue
			}
			if err := decodeColumn(&rec, name, cells[col]); err != nil {
				cellErr = &ErrInvalidImageRecord{Index: i, Name: rec.Name, Reason: "column " + name + ": " + err.Error()}
				break
			}
		}
		if cellErr != nil {
			errs = append(errs, cellErr)
			continue
		}
		if err := finishRecord(&rec, i); err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, rec)
	}

	return records, errs
}

func decodeColumn(rec *ImageRecord, column string, cell json.RawMessage) error {
	switch column {
	case "name":
		return json.Unmarshal(cell, &rec.Name)
	case "width":
		return json.Unmarshal(cell, &rec.Width)
	case "height":
		return json.Unmarshal(cell, &rec.Height)
	case "tileResolution":
		return json.Unmarshal(cell, &rec.TileResolution)
	case "viewDirection":
		var d directionValue
		if err := json.Unmarshal(cell, &d); err != nil {
			return err
		}
		rec.ViewDirection = int(d)
	case "viewDirectionAngle":
		var a float64
		if err := json.Unmarshal(cell, &a); err != nil {
			return err
		}
		rec.ViewDirectionAngle = &a
	case "groundCoordinates":
		var g groundValue
		if err := json.Unmarshal(cell, &g); err != nil {
			return err
		}
		rec.GroundCoordinates = g
	case "centerPointOnGround":
		return json.Unmarshal(cell, &rec.CenterPointOnGround)
	case "cameraIndex":
		return json.Unmarshal(cell, &rec.CameraIndex)
	case "cameraName":
		return json.Unmarshal(cell, &rec.CameraName)
	case "projectionCenter":
		return json.Unmarshal(cell, &rec.ProjectionCenter)
	case "pToRealworld":
		return json.Unmarshal(cell, &rec.PToRealWorld)
	case "pToImage":
		return json.Unmarshal(cell, &rec.PToImage)
	}
	return nil
}

type legacyImage struct {
	Name                string         `json:"name"`
	ID                  string         `json:"id"`
	Width               int            `json:"width"`
	Height              int            `json:"height"`
	TileResolution      []float64      `json:"tileResolution"`
	ViewDirection       directionValue `json:"viewDirection"`
	ViewDirectionAngle  *float64       `json:"viewDirectionAngle"`
	GroundCoordinates   groundValue    `json:"groundCoordinates"`
	CenterPointOnGround []float64      `json:"centerPointOnGround"`
	CameraName          string         `json:"cameraName"`
	CameraIndex         *int           `json:"cameraIndex"`
	ProjectionCenter    []float64      `json:"projectionCenter"`
	PToRealWorld        [][]float64    `json:"pToRealworld"`
	PToImage            [][]float64    `json:"pToImage"`
}

func parseLegacyImages(raw []json.RawMessage, version Version) ([]ImageRecord, []error) {
	withAngle := version.HasViewDirectionAngle()
	records := make([]ImageRecord, 0, len(raw))
	var errs []error

	for i, item := range raw {
		var li legacyImage
		if err := json.Unmarshal(item, &li); err != nil {
			errs = append(errs, &ErrInvalidImageRecord{Index: i, Reason: err.Error()})
			continue
		}

		rec := ImageRecord{
			Name:                li.Name,
			CameraIndex:         -1,
			CameraName:          li.CameraName,
			Width:               li.Width,
			Height:              li.Height,
			TileResolution:      li.TileResolution,
			ViewDirection:       int(li.ViewDirection),
			GroundCoordinates:   li.GroundCoordinates,
			CenterPointOnGround: li.CenterPointOnGround,
			ProjectionCenter:    li.ProjectionCenter,
			PToRealWorld:        li.PToRealWorld,
			PToImage:            li.PToImage,
		}
		if rec.Name == "" {
			rec.Name = li.ID
		}
		if li.CameraIndex != nil {
			rec.CameraIndex = *li.CameraIndex
		}
		if withAngle {
			rec.ViewDirectionAngle = li.ViewDirectionAngle
		}

		if err := finishRecord(&rec, i); err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, rec)
	}

	return records, errs
}

// finishRecord validates a record and derives the center when absent.
func finishRecord(rec *ImageRecord, index int) error {
	if rec.Name == "" {
		return &ErrInvalidImageRecord{Index: index, Reason: "missing name"}
	}
	if rec.ViewDirection < 1 || rec.ViewDirection > 5 {
		return &ErrInvalidImageRecord{Index: index, Name: rec.Name, Reason: "invalid view direction"}
	}
	if len(rec.GroundCoordinates) != 4 {
		return &ErrInvalidImageRecord{Index: index, Name: rec.Name, Reason: "ground coordinates must have 4 corners"}
	}
	for _, c := range rec.GroundCoordinates {
		if len(c) < 2 {
			return &ErrInvalidImageRecord{Index: index, Name: rec.Name, Reason: "ground coordinate needs x and y"}
		}
	}
	if len(rec.CenterPointOnGround) < 2 {
		var x, y float64
		for _, c := range rec.GroundCoordinates {
			x += c[0]
			y += c[1]
		}
		rec.CenterPointOnGround = []float64{x / 4, y / 4}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// directionValue accepts numeric (1-5) and named ("north", ...) directions.
type directionValue int

var directionNames = map[string]directionValue{
	"north": 1,
	"east":  2,
	"south": 3,
	"west":  4,
	"nadir": 5,
}

func (d *directionValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = directionNames[strings.ToLower(s)]
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*d = directionValue(n)
	return nil
}

// groundValue accepts an array of 4 corners or a corner-keyed object.
type groundValue [][]float64

func (g *groundValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var corners struct {
			LowerLeft  []float64 `json:"lowerLeft"`
			LowerRight []float64 `json:"lowerRight"`
			UpperRight []float64 `json:"upperRight"`
			UpperLeft  []float64 `json:"upperLeft"`
		}
		if err := json.Unmarshal(data, &corners); err != nil {
			return err
		}
		*g = [][]float64{corners.LowerLeft, corners.LowerRight, corners.UpperRight, corners.UpperLeft}
		return nil
	}
	var list [][]float64
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*g = list
	return nil
}
