package oblique

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
)

func TestCheckLineIntersection(t *testing.T) {
	tests := []struct {
		name             string
		a1, a2, b1, b2   r2.Point
		valid            bool
		x, y             float64
		onLine1, onLine2 bool
	}{
		{
			name: "crossing segments",
			a1:   r2.Point{X: 0, Y: 0}, a2: r2.Point{X: 2, Y: 2},
			b1: r2.Point{X: 0, Y: 2}, b2: r2.Point{X: 2, Y: 0},
			valid: true, x: 1, y: 1, onLine1: true, onLine2: true,
		},
		{
			name: "lines meet outside the segments",
			a1:   r2.Point{X: 0, Y: 0}, a2: r2.Point{X: 1, Y: 0},
			b1: r2.Point{X: 3, Y: 1}, b2: r2.Point{X: 3, Y: 2},
			valid: true, x: 3, y: 0, onLine1: false, onLine2: false,
		},
		{
			name: "parallel",
			a1:   r2.Point{X: 0, Y: 0}, a2: r2.Point{X: 1, Y: 1},
			b1: r2.Point{X: 0, Y: 1}, b2: r2.Point{X: 1, Y: 2},
			valid: false,
		},
		{
			name: "touching endpoint is not strictly inside",
			a1:   r2.Point{X: 0, Y: 0}, a2: r2.Point{X: 2, Y: 0},
			b1: r2.Point{X: 2, Y: -1}, b2: r2.Point{X: 2, Y: 1},
			valid: true, x: 2, y: 0, onLine1: false, onLine2: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			li := CheckLineIntersection(tt.a1, tt.a2, tt.b1, tt.b2)
			if li.Valid != tt.valid {
				t.Fatalf("Expected valid %v, got %v", tt.valid, li.Valid)
			}
			if !tt.valid {
				return
			}
			assert.InDelta(t, tt.x, li.X, 1e-9)
			assert.InDelta(t, tt.y, li.Y, 1e-9)
			if li.OnLine1 != tt.onLine1 || li.OnLine2 != tt.onLine2 {
				t.Errorf("Expected onLine (%v, %v), got (%v, %v)", tt.onLine1, tt.onLine2, li.OnLine1, li.OnLine2)
			}
		})
	}
}

func TestSortRealWorldEdgeCoordinates(t *testing.T) {
	ll := r2.Point{X: 10, Y: 20}
	lr := r2.Point{X: 30, Y: 21}
	ur := r2.Point{X: 31, Y: 40}
	ul := r2.Point{X: 9, Y: 41}
	shuffled := [4]r2.Point{ur, ll, ul, lr}

	got := SortRealWorldEdgeCoordinates(shuffled, North)
	want := [4]r2.Point{ll, lr, ur, ul}
	if got != want {
		t.Fatalf("Expected %v, got %v", want, got)
	}

	t.Run("idempotent", func(t *testing.T) {
		for _, dir := range ViewDirections {
			once := SortRealWorldEdgeCoordinates(shuffled, dir)
			if again := SortRealWorldEdgeCoordinates(once, dir); again != once {
				t.Errorf("%s: sorting a sorted quad changed it: %v -> %v", dir, once, again)
			}
		}
	})

	t.Run("rotation by direction", func(t *testing.T) {
		base := SortRealWorldEdgeCoordinates(shuffled, North)
		steps := map[ViewDirection]int{North: 0, East: 1, South: 2, West: 3, Nadir: 0}
		for dir, k := range steps {
			rotated := SortRealWorldEdgeCoordinates(shuffled, dir)
			for i := 0; i < 4; i++ {
				if rotated[(i+k)%4] != base[i] {
					t.Errorf("%s: position %d expected %v, got %v", dir, (i+k)%4, base[i], rotated[(i+k)%4])
				}
			}
		}
	})
}

// affine maps p by a rotation of 30 degrees, a scale of 2 and a translation.
func affine(p r2.Point) r2.Point {
	s, c := math.Sincos(math.Pi / 6)
	return r2.Point{
		X: 2*(c*p.X-s*p.Y) + 1000,
		Y: 2*(s*p.X+c*p.Y) + 500,
	}
}

func TestTransformNoCameraAffine(t *testing.T) {
	origin := [4]r2.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 50}, {X: 0, Y: 50}}
	var target [4]r2.Point
	for i, p := range origin {
		target[i] = affine(p)
	}

	t.Run("corners map to corners", func(t *testing.T) {
		for i, p := range origin {
			got, err := transformNoCamera(origin, target, p)
			if err != nil {
				t.Fatalf("corner %d: %v", i, err)
			}
			assert.InDelta(t, target[i].X, got.X, 1e-6)
			assert.InDelta(t, target[i].Y, got.Y, 1e-6)
		}
	})

	points := []r2.Point{{X: 50, Y: 25}, {X: 10, Y: 5}, {X: 90, Y: 40}, {X: 25, Y: 45}, {X: 99, Y: 1}}
	for _, p := range points {
		got, err := transformNoCamera(origin, target, p)
		if err != nil {
			t.Fatalf("point %v: %v", p, err)
		}
		want := affine(p)
		assert.InDelta(t, want.X, got.X, 1e-6, "x of %v", p)
		assert.InDelta(t, want.Y, got.Y, 1e-6, "y of %v", p)

		back, err := transformNoCamera(target, origin, got)
		if err != nil {
			t.Fatalf("inverse of %v: %v", p, err)
		}
		assert.InDelta(t, p.X, back.X, 1e-6)
		assert.InDelta(t, p.Y, back.Y, 1e-6)
	}
}

func TestTransformNoCameraTrapezoid(t *testing.T) {
	// oblique footprints are narrower at the far edge
	pixels := [4]r2.Point{{X: 0, Y: 0}, {X: 1000, Y: 0}, {X: 1000, Y: 800}, {X: 0, Y: 800}}
	ground := [4]r2.Point{{X: 4000, Y: 2000}, {X: 5000, Y: 2000}, {X: 4700, Y: 2600}, {X: 4300, Y: 2600}}

	t.Run("corners map to corners", func(t *testing.T) {
		for i := range pixels {
			got, err := transformNoCamera(pixels, ground, pixels[i])
			if err != nil {
				t.Fatalf("corner %d: %v", i, err)
			}
			assert.InDelta(t, ground[i].X, got.X, 1e-6)
			assert.InDelta(t, ground[i].Y, got.Y, 1e-6)

			back, err := transformNoCamera(ground, pixels, ground[i])
			if err != nil {
				t.Fatalf("inverse corner %d: %v", i, err)
			}
			assert.InDelta(t, pixels[i].X, back.X, 1e-6)
			assert.InDelta(t, pixels[i].Y, back.Y, 1e-6)
		}
	})

	t.Run("interior stays inside", func(t *testing.T) {
		for x := 50.0; x < 1000; x += 100 {
			for y := 40.0; y < 800; y += 80 {
				got, err := transformNoCamera(pixels, ground, r2.Point{X: x, Y: y})
				if err != nil {
					t.Fatalf("(%v, %v): %v", x, y, err)
				}
				if !insideQuad(ground, got) {
					t.Errorf("(%v, %v) mapped outside the footprint: %v", x, y, got)
				}
			}
		}
	})

	t.Run("axis of symmetry", func(t *testing.T) {
		prev := math.Inf(-1)
		for _, y := range []float64{100, 400, 700} {
			got, err := transformNoCamera(pixels, ground, r2.Point{X: 500, Y: y})
			if err != nil {
				t.Fatal(err)
			}
			assert.InDelta(t, 4500, got.X, 1e-6)
			if got.Y <= prev {
				t.Errorf("Expected y to increase along the axis, got %v after %v", got.Y, prev)
			}
			prev = got.Y
		}
		center, _ := transformNoCamera(pixels, ground, r2.Point{X: 500, Y: 400})
		assert.InDelta(t, 2428.5714, center.Y, 1e-3)
	})
}

// insideQuad reports whether p lies strictly inside the counter-clockwise quad q.
func insideQuad(q [4]r2.Point, p r2.Point) bool {
	for i := range q {
		a, b := q[i], q[(i+1)%4]
		if (b.X-a.X)*(p.Y-a.Y)-(b.Y-a.Y)*(p.X-a.X) <= 0 {
			return false
		}
	}
	return true
}

func TestTransformNoCameraDegenerate(t *testing.T) {
	collapsed := [4]r2.Point{{X: 1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 1}}
	target := [4]r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}

	if _, err := transformNoCamera(collapsed, target, r2.Point{X: 5, Y: 5}); err != ErrNoIntersection {
		t.Errorf("Expected ErrNoIntersection, got %v", err)
	}
}

func TestImageWithoutCamera(t *testing.T) {
	meta := testMeta(100, 50)

	t.Run("north", func(t *testing.T) {
		img := newTestImage(t, meta, rectRow("n", North, 1000, 2000, 1200, 2100))

		world, ok := img.TransformImage2RealWorld(r2.Point{X: 25, Y: 10}, 0)
		if !ok {
			t.Fatal("expected exact result")
		}
		assert.InDelta(t, 1050, world[0], 1e-6)
		assert.InDelta(t, 2020, world[1], 1e-6)

		pixel, ok := img.TransformRealWorld2Image(world, 0)
		if !ok {
			t.Fatal("expected exact result")
		}
		assert.InDelta(t, 25, pixel.X, 1e-6)
		assert.InDelta(t, 10, pixel.Y, 1e-6)
	})

	t.Run("east rotates the footprint", func(t *testing.T) {
		img := newTestImage(t, meta, rectRow("e", East, 1000, 2000, 1200, 2100))

		world, ok := img.TransformImage2RealWorld(r2.Point{X: 0, Y: 0}, 0)
		if !ok {
			t.Fatal("expected exact result")
		}
		// the lower-left pixel shows the upper-left ground corner
		assert.InDelta(t, 1000, world[0], 1e-6)
		assert.InDelta(t, 2100, world[1], 1e-6)

		for _, p := range []r2.Point{{X: 30, Y: 20}, {X: 70, Y: 45}} {
			w, _ := img.TransformImage2RealWorld(p, 0)
			back, ok := img.TransformRealWorld2Image(w, 0)
			if !ok {
				t.Fatalf("round trip of %v failed", p)
			}
			assert.InDelta(t, p.X, back.X, 1e-6)
			assert.InDelta(t, p.Y, back.Y, 1e-6)
		}
	})

	t.Run("collapsed footprint falls back to centers", func(t *testing.T) {
		img := newTestImage(t, meta, rectRow("c", North, 5, 5, 5, 5))

		world, ok := img.TransformImage2RealWorld(r2.Point{X: 1, Y: 1}, 0)
		if ok {
			t.Error("expected substitute result")
		}
		if world[0] != 5 || world[1] != 5 {
			t.Errorf("Expected footprint center, got %v", world)
		}

		pixel, ok := img.TransformRealWorld2Image(world, 0)
		if ok {
			t.Error("expected substitute result")
		}
		if pixel != meta.Center() {
			t.Errorf("Expected image center, got %v", pixel)
		}
	})
}
