package detection

import (
	"math"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/models"
	"gonum.org/v1/gonum/floats"
)

// EyePoints is the number of landmarks EAR needs per eye.
const EyePoints = 6

// EAR computes the eye aspect ratio of six points ordered outer corner,
// upper lid (2), inner corner, lower lid (2). Degenerate input yields 0.
func EAR(points []models.Point) float64 {
	if len(points) < EyePoints {
		return 0
	}

	v1 := dist(points[1], points[5])
	v2 := dist(points[2], points[4])
	h := dist(points[0], points[3])

	if h <= 0 || math.IsNaN(h) || math.IsInf(h, 0) {
		return 0
	}
	ear := (v1 + v2) / (2.0 * h)
	if math.IsNaN(ear) || math.IsInf(ear, 0) {
		return 0
	}
	return ear
}

func dist(a, b models.Point) float64 {
	return floats.Distance([]float64{a.X, a.Y}, []float64{b.X, b.Y}, 2)
}
