package sources

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/models"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/services"
)

const maxReplayLine = 4 * 1024 * 1024

// replayLine is one recorded frame:
//
//	{"seq":1,"timestamp":"...","width":640,"height":480,"faces":[[x0,y0,...]]}
//
// Only "faces" is required.
type replayLine struct {
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	Faces     json.RawMessage `json:"faces"`
}

// JSONLSource replays recorded landmarks from a JSON-lines file. Frames
// carry the line itself as a landmarks+json payload.
type JSONLSource struct {
	path    string
	r       io.ReadCloser
	scanner *bufio.Scanner
	pace    *pacer
	line    int
	seq     uint64
}

func OpenJSONL(path string, fps float64) (*JSONLSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	return NewJSONLSource(path, f, fps), nil
}

// NewJSONLSource reads from r, which Close will close. name is used in errors.
func NewJSONLSource(name string, r io.ReadCloser, fps float64) *JSONLSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReplayLine)
	return &JSONLSource{path: name, r: r, scanner: scanner, pace: newPacer(fps)}
}

func (s *JSONLSource) Next(ctx context.Context) (models.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return models.Frame{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return models.Frame{}, fmt.Errorf("%s:%d: %w", s.path, s.line+1, err)
			}
			return models.Frame{}, io.EOF
		}
		s.line++

		raw := bytes.TrimSpace(s.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec replayLine
		if err := json.Unmarshal(raw, &rec); err != nil {
			return models.Frame{}, fmt.Errorf("%s:%d: %w", s.path, s.line, err)
		}

		if err := s.pace.wait(ctx); err != nil {
			return models.Frame{}, err
		}

		s.seq++
		if rec.Seq == 0 {
			rec.Seq = s.seq
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = time.Now()
		}
		return models.Frame{
			Seq:       rec.Seq,
			Timestamp: rec.Timestamp,
			Width:     rec.Width,
			Height:    rec.Height,
			Format:    services.FormatLandmarksJSON,
			// the scanner reuses its buffer
			Data: append([]byte(nil), raw...),
		}, nil
	}
}

func (s *JSONLSource) Close() error {
	return s.r.Close()
}
