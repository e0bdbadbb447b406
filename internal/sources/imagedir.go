package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/models"
	"github.com/disintegration/imaging"
)

var ErrNoFrames = errors.New("no frames found")

type ImageDirOptions struct {
	// Pattern selects files inside the directory, "*" when empty.
	Pattern string
	// Mirror flips every frame horizontally, as a selfie camera view.
	Mirror bool
	FPS    float64
	// Loop restarts from the first file instead of ending the stream.
	Loop bool
}

// ImageDirSource plays a directory of still images in name order. Each
// frame is decoded, optionally mirrored and re-encoded in its own format.
type ImageDirSource struct {
	dir    string
	files  []string
	opts   ImageDirOptions
	pace   *pacer
	logger *slog.Logger
	idx    int
	seq    uint64
}

func OpenImageDir(dir string, opts ImageDirOptions, logger *slog.Logger) (*ImageDirSource, error) {
	if opts.Pattern == "" {
		opts.Pattern = "*"
	}
	if logger == nil {
		logger = slog.Default()
	}

	matches, err := filepath.Glob(filepath.Join(dir, opts.Pattern))
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	files := matches[:0]
	for _, m := range matches {
		if _, err := imaging.FormatFromFilename(m); err == nil {
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s matching %s", ErrNoFrames, dir, opts.Pattern)
	}
	sort.Strings(files)

	logger.Info("loaded image frames", "dir", dir, "count", len(files), "mirror", opts.Mirror)
	return &ImageDirSource{
		dir:    dir,
		files:  files,
		opts:   opts,
		pace:   newPacer(opts.FPS),
		logger: logger.With("component", "image_source"),
	}, nil
}

func (s *ImageDirSource) Len() int { return len(s.files) }

func (s *ImageDirSource) Next(ctx context.Context) (models.Frame, error) {
	// bounds the skip loop when every file is unreadable
	for attempts := 0; attempts < len(s.files); attempts++ {
		if s.idx >= len(s.files) {
			if !s.opts.Loop {
				return models.Frame{}, io.EOF
			}
			s.idx = 0
		}
		path := s.files[s.idx]
		s.idx++

		if err := s.pace.wait(ctx); err != nil {
			return models.Frame{}, err
		}
		frame, err := s.load(path)
		if err != nil {
			s.logger.Warn("skipping unreadable frame", "path", filepath.Base(path), "error", err)
			continue
		}
		return frame, nil
	}
	if s.idx >= len(s.files) && !s.opts.Loop {
		return models.Frame{}, io.EOF
	}
	return models.Frame{}, fmt.Errorf("no readable frames in %s", s.dir)
}

func (s *ImageDirSource) load(path string) (models.Frame, error) {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return models.Frame{}, err
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return models.Frame{}, err
	}
	if s.opts.Mirror {
		img = imaging.FlipH(img)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		return models.Frame{}, fmt.Errorf("encode: %w", err)
	}

	s.seq++
	b := img.Bounds()
	return models.Frame{
		Seq:       s.seq,
		Timestamp: time.Now(),
		Width:     b.Dx(),
		Height:    b.Dy(),
		Format:    strings.ToLower(format.String()),
		Data:      buf.Bytes(),
	}, nil
}

func (s *ImageDirSource) Close() error { return nil }
