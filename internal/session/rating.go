package session

import (
	"fmt"

	"fancify-backend/internal/services"
)

// Direction is an arrow-key adjustment of the rating.
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case Left, Right:
		return d, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// RatingState holds the current intensity. The value is always within
// [services.MinRating, services.MaxRating].
type RatingState struct {
	value int
}

func NewRatingState() *RatingState {
	return &RatingState{value: services.DefaultRating}
}

func (r *RatingState) Value() int {
	return r.value
}

// Set stores v. Callers pass in-range values; anything else is clamped.
func (r *RatingState) Set(v int) {
	if v < services.MinRating {
		v = services.MinRating
	}
	if v > services.MaxRating {
		v = services.MaxRating
	}
	r.value = v
}

// Step moves the rating by one. It reports whether the value changed.
func (r *RatingState) Step(d Direction) bool {
	switch {
	case d == Left && r.value > services.MinRating:
		r.value--
		return true
	case d == Right && r.value < services.MaxRating:
		r.value++
		return true
	}
	return false
}

// Stars reports which of the ten positions render as active.
func (r *RatingState) Stars() []bool {
	stars := make([]bool, services.MaxRating)
	for i := range stars {
		stars[i] = i+1 <= r.value
	}
	return stars
}
