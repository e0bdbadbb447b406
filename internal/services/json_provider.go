package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/models"
)

// FormatLandmarksJSON marks frames whose payload already holds landmarks
// as {"faces": [[x0,y0,x1,y1,...], ...]}.
const FormatLandmarksJSON = "landmarks+json"

var ErrUnsupportedFormat = errors.New("unsupported frame format")

// Provider is anything that turns a frame into faces.
type Provider interface {
	Detect(ctx context.Context, frame models.Frame) ([]models.FaceLandmarks, error)
}

// JSONProvider reads landmarks recorded in the frame itself.
type JSONProvider struct{}

type landmarksPayload struct {
	Faces [][]float64 `json:"faces"`
}

func (JSONProvider) Detect(_ context.Context, frame models.Frame) ([]models.FaceLandmarks, error) {
	if frame.Format != FormatLandmarksJSON {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, frame.Format)
	}
	var payload landmarksPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode landmarks of frame %d: %w", frame.Seq, err)
	}
	return facesFromFlat(payload.Faces)
}

// FormatRouter sends recorded landmark frames to the JSON provider and
// everything else to Remote.
type FormatRouter struct {
	Remote Provider
}

func (r FormatRouter) Detect(ctx context.Context, frame models.Frame) ([]models.FaceLandmarks, error) {
	if frame.Format == FormatLandmarksJSON {
		return JSONProvider{}.Detect(ctx, frame)
	}
	if r.Remote == nil {
		return nil, fmt.Errorf("%w: %q without a landmark service", ErrUnsupportedFormat, frame.Format)
	}
	return r.Remote.Detect(ctx, frame)
}
