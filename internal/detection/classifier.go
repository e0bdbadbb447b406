package detection

import (
	"fmt"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/models"
)

// Face Mesh indices of the six points used per eye.
var (
	DefaultLeftEye  = []int{362, 382, 381, 380, 374, 373}
	DefaultRightEye = []int{33, 7, 163, 144, 145, 153}
)

// Classifier reduces the faces found in a frame to one FrameObservation.
// Only the first face is considered.
type Classifier struct {
	leftEye  []int
	rightEye []int
}

func NewClassifier(leftEye, rightEye []int) (*Classifier, error) {
	if len(leftEye) == 0 {
		leftEye = DefaultLeftEye
	}
	if len(rightEye) == 0 {
		rightEye = DefaultRightEye
	}
	if len(leftEye) != EyePoints || len(rightEye) != EyePoints {
		return nil, fmt.Errorf("eye index sets need %d entries, got %d and %d", EyePoints, len(leftEye), len(rightEye))
	}
	for _, idx := range append(append([]int{}, leftEye...), rightEye...) {
		if idx < 0 {
			return nil, fmt.Errorf("negative landmark index %d", idx)
		}
	}
	return &Classifier{
		leftEye:  append([]int(nil), leftEye...),
		rightEye: append([]int(nil), rightEye...),
	}, nil
}

func (c *Classifier) Classify(faces []models.FaceLandmarks) models.FrameObservation {
	if len(faces) == 0 {
		return models.FrameObservation{}
	}
	left, right := c.Eyes(faces[0])
	return models.FrameObservation{
		EAR:       (left.EAR + right.EAR) / 2.0,
		FaceFound: true,
	}
}

// Eyes returns the left and right eye observations of one face.
func (c *Classifier) Eyes(face models.FaceLandmarks) (left, right models.EyeObservation) {
	return observeEye(face, c.leftEye), observeEye(face, c.rightEye)
}

// Markers returns the eye landmarks of face scaled to a width x height frame.
func (c *Classifier) Markers(face models.FaceLandmarks, width, height int) []models.Marker {
	markers := make([]models.Marker, 0, 2*EyePoints)
	for _, set := range [][]int{c.leftEye, c.rightEye} {
		for _, p := range selectPoints(face, set) {
			markers = append(markers, models.Marker{
				X: int(p.X * float64(width)),
				Y: int(p.Y * float64(height)),
			})
		}
	}
	return markers
}

func observeEye(face models.FaceLandmarks, indices []int) models.EyeObservation {
	points := selectPoints(face, indices)
	return models.EyeObservation{
		EAR:   EAR(points),
		Valid: len(points) == EyePoints,
	}
}

// selectPoints skips indices the provider did not return.
func selectPoints(face models.FaceLandmarks, indices []int) []models.Point {
	points := make([]models.Point, 0, len(indices))
	for _, idx := range indices {
		if idx < len(face.Points) {
			points = append(points, face.Points[idx])
		}
	}
	return points
}
