package metadata

// DefaultTileSize is used when generalImageInfo has no tile-width/tile-height.
const DefaultTileSize = 512

// DefaultImageFormat is used when generalImageInfo has no imageExtension.
const DefaultImageFormat = "jpg"

// CameraRecord is the resolved, immutable description of one camera.
type CameraRecord struct {
	Name           string
	Size           [2]int
	TileSize       [2]int
	TileResolution []float64
	PrincipalPoint []float64
	PixelSize      []float64
	RadialE2F      []float64
	RadialF2E      []float64
	Format         string
}

// BuildCameras resolves the cameras of a document in two phases.
//
// The first phase collects everything generalImageInfo states about each
// camera. The second phase fills a missing image size or tile resolution from
// the first image of that camera reporting one. Every camera is complete
// before any image is attached to it.
//
// images may be nil for tiled sources, whose images arrive later.
func BuildCameras(info *GeneralImageInfo, images []ImageRecord) ([]CameraRecord, error) {
	if info == nil {
		return nil, &ErrInvalidMetadata{Reason: "missing generalImageInfo"}
	}

	params := info.CameraParameter
	if len(params) == 0 {
		params = []CameraParameter{{Name: "default"}}
	}

	tileSize := [2]int{info.TileWidth, info.TileHeight}
	if tileSize[0] <= 0 || tileSize[1] <= 0 {
		tileSize = [2]int{DefaultTileSize, DefaultTileSize}
	}
	format := info.ImageExtension
	if format == "" {
		format = DefaultImageFormat
	}

	cameras := make([]CameraRecord, len(params))
	for i, p := range params {
		cam := CameraRecord{
			Name:           p.Name,
			TileSize:       tileSize,
			TileResolution: info.TileResolution,
			PrincipalPoint: p.PrincipalPoint,
			PixelSize:      p.PixelSize,
			RadialE2F:      p.RadialE2F,
			RadialF2E:      p.RadialF2E,
			Format:         format,
		}
		if len(p.Size) == 2 {
			cam.Size = [2]int{p.Size[0], p.Size[1]}
		} else {
			cam.Size = [2]int{info.Width, info.Height}
		}
		cameras[i] = cam
	}

	for i := range images {
		idx := CameraIndexFor(&images[i], cameras)
		if idx < 0 {
			continue
		}
		cam := &cameras[idx]
		if (cam.Size[0] <= 0 || cam.Size[1] <= 0) && images[i].Width > 0 && images[i].Height > 0 {
			cam.Size = [2]int{images[i].Width, images[i].Height}
		}
		if len(cam.TileResolution) == 0 && len(images[i].TileResolution) > 0 {
			cam.TileResolution = images[i].TileResolution
		}
	}

	for _, cam := range cameras {
		if cam.Size[0] <= 0 || cam.Size[1] <= 0 {
			return nil, &ErrInvalidMetadata{Reason: "camera " + cam.Name + " has no image size"}
		}
	}

	return cameras, nil
}

// CameraIndexFor returns the camera an image belongs to, or -1.
//
// An explicit camera index wins, then a camera name; images of single-camera
// sources always belong to camera 0.
func CameraIndexFor(rec *ImageRecord, cameras []CameraRecord) int {
	if rec.CameraIndex >= 0 && rec.CameraIndex < len(cameras) {
		return rec.CameraIndex
	}
	if rec.CameraName != "" {
		for i, c := range cameras {
			if c.Name == rec.CameraName {
				return i
			}
		}
	}
	if len(cameras) == 1 {
		return 0
	}
	return -1
}
