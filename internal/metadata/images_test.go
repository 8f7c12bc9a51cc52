package metadata

import (
	"fmt"
	"testing"
)

const tableDocument = `{
  "generalImageInfo": {
    "width": 1000, "height": 800,
    "tile-width": 256, "tile-height": 256,
    "tile-resolution": [4, 2, 1],
    "crs": "EPSG:25832",
    "cameraParameter": [
      {"name": "cam-a", "principal-point": [500, 400], "pixel-size": 0.009,
       "radial-distorsion-expected-2-found": [0, 0.001],
       "radial-distorsion-found-2-expected": [0, -0.001]},
      {"name": "cam-b"}
    ]
  },
  "imagesHeader": ["name", "viewDirection", "viewDirectionAngle", "groundCoordinates", "centerPointOnGround", "cameraIndex"],
  "images": [
    ["img-1", 1, 0.1, [[0,0,10],[100,0,10],[100,80,12],[0,80,12]], [50,40], 0],
    ["img-2", 3, null, [[0,0],[100,0],[100,80],[0,80]], null, 1],
    ["", 2, null, [[0,0],[100,0],[100,80],[0,80]], null, 0],
    ["img-4", 9, null, [[0,0],[100,0],[100,80],[0,80]], null, 0]
  ]
}`

func TestParseImageTable(t *testing.T) {
	doc, err := Decode([]byte(tableDocument))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if doc.IsLegacy() {
		t.Fatal("table document reported as legacy")
	}

	records, errs := ParseImages(doc, Version{})
	if len(records) != 2 {
		t.Fatalf("expected 2 valid records, got %d", len(records))
	}
	if len(errs) != 2 {
		t.Errorf("expected 2 skipped entries, got %d: %v", len(errs), errs)
	}

	first := records[0]
	if first.Name != "img-1" || first.ViewDirection != 1 || first.CameraIndex != 0 {
		t.Errorf("unexpected first record: %+v", first)
	}
	if first.ViewDirectionAngle == nil || *first.ViewDirectionAngle != 0.1 {
		t.Errorf("expected heading 0.1, got %v", first.ViewDirectionAngle)
	}
	if first.GroundCoordinates[2][2] != 12 {
		t.Errorf("expected corner height 12, got %v", first.GroundCoordinates[2])
	}

	second := records[1]
	if second.ViewDirectionAngle != nil {
		t.Error("null heading should stay unset")
	}
	if second.CenterPointOnGround[0] != 50 || second.CenterPointOnGround[1] != 40 {
		t.Errorf("missing center should be derived from corners, got %v", second.CenterPointOnGround)
	}
	if second.HasCamera() {
		t.Error("record without matrices should not have a camera")
	}
}

func TestParseImageTableHeaderRow(t *testing.T) {
	doc, err := Decode([]byte(`{
	  "generalImageInfo": {"width": 10, "height": 10},
	  "images": [
	    ["name", "viewDirection", "groundCoordinates"],
	    ["a", 2, [[0,0],[1,0],[1,1],[0,1]]]
	  ]
	}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	records, errs := ParseImages(doc, Version{})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(records) != 1 || records[0].Name != "a" || records[0].ViewDirection != 2 {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestParseLegacyImages(t *testing.T) {
	const legacy = `{
	  "version": "%s",
	  "generalImageInfo": {"width": 10, "height": 10},
	  "images": [
	    {"name": "l-1", "viewDirection": "east", "viewDirectionAngle": 1.5,
	     "groundCoordinates": {"lowerLeft": [0,0], "lowerRight": [1,0], "upperRight": [1,1], "upperLeft": [0,1]},
	     "centerPointOnGround": [0.5, 0.5], "cameraName": "default",
	     "projectionCenter": [0.5, -1, 100],
	     "pToRealworld": [[1,0,0],[0,1,0],[0,0,1]],
	     "pToImage": [[1,0,0,0],[0,1,0,0],[0,0,1,0],[0,0,0,1]]}
	  ]
	}`

	tests := []struct {
		version   string
		wantAngle bool
	}{
		{"3.4-18-gabc", false},
		{"3.4-19-gabc", true},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			doc, err := Decode([]byte(fmt.Sprintf(legacy, tt.version)))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !doc.IsLegacy() {
				t.Fatal("expected legacy document")
			}
			records, errs := ParseImages(doc, Version{})
			if len(errs) != 0 || len(records) != 1 {
				t.Fatalf("got %d records, errors %v", len(records), errs)
			}
			rec := records[0]
			if rec.ViewDirection != 2 {
				t.Errorf("expected east (2), got %d", rec.ViewDirection)
			}
			if (rec.ViewDirectionAngle != nil) != tt.wantAngle {
				t.Errorf("heading present = %v, want %v", rec.ViewDirectionAngle != nil, tt.wantAngle)
			}
			if !rec.HasCamera() {
				t.Error("expected camera model")
			}
			if rec.GroundCoordinates[3][1] != 1 {
				t.Errorf("upperLeft not mapped to 4th corner: %v", rec.GroundCoordinates)
			}
		})
	}
}

func TestTileCoordinate(t *testing.T) {
	tc, err := ParseTileCoordinate("14/8800/5373")
	if err != nil {
		t.Fatalf("ParseTileCoordinate failed: %v", err)
	}
	if tc.Z != 14 || tc.X != 8800 || tc.Y != 5373 {
		t.Errorf("unexpected tile %+v", tc)
	}
	if tc.String() != "14/8800/5373" {
		t.Errorf("String() = %q", tc.String())
	}

	for _, bad := range []string{"", "1/2", "a/b/c", "1/2/3/4"} {
		if _, err := ParseTileCoordinate(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestDocumentIsTiled(t *testing.T) {
	doc, err := Decode([]byte(`{"generalImageInfo": {"width": 1, "height": 1}, "tileLevel": 14, "availableTiles": ["14/1/1"]}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !doc.IsTiled() {
		t.Error("expected tiled document")
	}
	if _, err := Decode([]byte(`{`)); err == nil {
		t.Error("expected decode error for truncated JSON")
	}
}
