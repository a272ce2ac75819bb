// Package region models selection rectangles and the drag gesture that
// produces them.
package region

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Space identifies the coordinate system a Rect is expressed in.
type Space int

const (
	SpacePage Space = iota
	SpaceViewport
	SpaceSource
)

func (s Space) String() string {
	switch s {
	case SpacePage:
		return "page"
	case SpaceViewport:
		return "viewport"
	case SpaceSource:
		return "source"
	default:
		return fmt.Sprintf("space(%d)", int(s))
	}
}

type Point struct {
	X float64
	Y float64
}

// Rect is an axis-aligned rectangle. It is a value type: conversions
// between spaces return a new Rect.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
	Space  Space
}

// FromPoints returns the normalised rectangle spanned by two drag points,
// whatever direction the drag went in.
func FromPoints(a, b Point, space Space) Rect {
	return Rect{
		X:      math.Min(a.X, b.X),
		Y:      math.Min(a.Y, b.Y),
		Width:  math.Abs(b.X - a.X),
		Height: math.Abs(b.Y - a.Y),
		Space:  space,
	}
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// AtLeast reports whether both sides are at least min.
func (r Rect) AtLeast(min float64) bool { return r.Width >= min && r.Height >= min }

// Intersects reports whether the two rectangles share a region of
// positive area. Spaces are not compared.
func (r Rect) Intersects(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X < o.Right() && o.X < r.Right() && r.Y < o.Bottom() && o.Y < r.Bottom()
}

// In relabels the rectangle as belonging to another space without
// changing its numbers.
func (r Rect) In(space Space) Rect {
	r.Space = space
	return r
}

// Translate shifts the origin by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	r.X += dx
	r.Y += dy
	return r
}

func (r Rect) String() string {
	return fmt.Sprintf("%s(%g,%g %gx%g)", r.Space, r.X, r.Y, r.Width, r.Height)
}

// Parse reads "x,y,width,height" as typed on the command line.
func Parse(s string, space Space) (Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Rect{}, fmt.Errorf("region: expected x,y,width,height, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Rect{}, fmt.Errorf("region: invalid number %q: %w", p, err)
		}
		if f < 0 {
			return Rect{}, fmt.Errorf("region: negative value %q", p)
		}
		v[i] = f
	}
	return Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3], Space: space}, nil
}
