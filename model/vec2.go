package model

import "math"

// Vec2 is a field position in yards. X runs from the line of scrimmage
// toward the quarterback; Y runs sideline to sideline.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns v + other.
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Sub returns v - other.
func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{X: v.X - other.X, Y: v.Y - other.Y}
}

// Scale returns v multiplied by k.
func (v Vec2) Scale(k float64) Vec2 {
	return Vec2{X: v.X * k, Y: v.Y * k}
}

// Dot returns the dot product of two vectors.
func (v Vec2) Dot(other Vec2) float64 {
	return v.X*other.X + v.Y*other.Y
}

// Magnitude returns the Euclidean length of the vector.
func (v Vec2) Magnitude() float64 {
	return math.Hypot(v.X, v.Y)
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec2) DistanceTo(other Vec2) float64 {
	return v.Sub(other).Magnitude()
}

// Normalize returns the unit vector in the direction of v. The zero vector
// normalizes to itself.
func (v Vec2) Normalize() Vec2 {
	m := v.Magnitude()
	if m == 0 {
		return Vec2{}
	}
	return Vec2{X: v.X / m, Y: v.Y / m}
}

// Lerp linearly interpolates from v to other. t is not clamped.
func (v Vec2) Lerp(other Vec2, t float64) Vec2 {
	return Vec2{
		X: v.X + (other.X-v.X)*t,
		Y: v.Y + (other.Y-v.Y)*t,
	}
}

// Rotate rotates v counter-clockwise about the origin by radians.
func (v Vec2) Rotate(radians float64) Vec2 {
	sin, cos := math.Sincos(radians)
	return Vec2{
		X: v.X*cos - v.Y*sin,
		Y: v.X*sin + v.Y*cos,
	}
}

// ToMap renders the vector in its canonical keyed form.
func (v Vec2) ToMap() map[string]any {
	return map[string]any{"x": v.X, "y": v.Y}
}

// Vec2FromMap parses the form produced by ToMap. Missing keys read as zero.
func Vec2FromMap(m map[string]any) (Vec2, error) {
	x, err := FloatField(m, "x")
	if err != nil {
		return Vec2{}, err
	}
	y, err := FloatField(m, "y")
	if err != nil {
		return Vec2{}, err
	}
	return Vec2{X: x, Y: y}, nil
}
