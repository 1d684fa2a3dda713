package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// Below this duration (seconds) the frame is taken from the exact
	// middle instead of a random point in the middle 80%.
	minRandomDuration = 10.0

	scaleFilter = "scale=400:400:force_original_aspect_ratio=decrease"
	jpegQuality = "3"
)

// commandRunner is the exec seam: runs a binary and returns stdout/stderr.
type commandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	err := cmd.Run()
	return out.Bytes(), errOut.Bytes(), err
}

// Result is an extracted thumbnail plus the media duration when it could be
// probed.
type Result struct {
	JPEG     []byte
	Duration float64 // seconds, 0 when probing failed
}

// Extractor pulls one JPEG frame out of recording media with ffmpeg.
// Failures here are expected to be treated as non-fatal by callers.
type Extractor struct {
	ffmpegPath  string
	ffprobePath string
	run         commandRunner
	rnd         *rand.Rand
	logger      *zap.Logger
}

// NewExtractor creates an extractor. Empty paths fall back to the binaries
// on PATH.
func NewExtractor(ffmpegPath, ffprobePath string, logger *zap.Logger) *Extractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		run:         runCommand,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:      logger,
	}
}

// Extract writes media to a temp file, probes its duration, and grabs one
// frame from a pseudo-random point in the middle 80% of the video as a
// bounded JPEG. A failed probe degrades to the first frame.
func (e *Extractor) Extract(ctx context.Context, media []byte) (*Result, error) {
	if len(media) == 0 {
		return nil, fmt.Errorf("empty media buffer")
	}

	src, err := os.CreateTemp("", "thumb-src-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create temp media file: %w", err)
	}
	defer os.Remove(src.Name())
	if _, err := src.Write(media); err != nil {
		src.Close()
		return nil, fmt.Errorf("write temp media file: %w", err)
	}
	if err := src.Close(); err != nil {
		return nil, fmt.Errorf("close temp media file: %w", err)
	}

	duration, err := e.probeDuration(ctx, src.Name())
	if err != nil {
		e.logger.Warn("duration probe failed, using first frame", zap.Error(err))
		duration = 0
	}
	offset := pickOffset(duration, e.rnd)

	out, err := os.CreateTemp("", "thumb-out-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("create temp thumbnail file: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	args := []string{
		"-v", "error",
		"-ss", strconv.FormatFloat(offset, 'f', 2, 64),
		"-i", src.Name(),
		"-frames:v", "1",
		"-vf", scaleFilter,
		"-q:v", jpegQuality,
		"-f", "image2",
		"-y", outPath,
	}
	if _, stderr, err := e.run(ctx, e.ffmpegPath, args...); err != nil {
		return nil, fmt.Errorf("ffmpeg frame grab: %w: %s", err, strings.TrimSpace(string(stderr)))
	}

	jpeg, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read thumbnail output: %w", err)
	}
	if len(jpeg) == 0 {
		return nil, fmt.Errorf("ffmpeg produced an empty thumbnail")
	}

	e.logger.Debug("thumbnail extracted",
		zap.Float64("duration_seconds", duration),
		zap.Float64("offset_seconds", offset),
		zap.Int("jpeg_bytes", len(jpeg)))
	return &Result{JPEG: jpeg, Duration: duration}, nil
}

// probeDuration asks ffprobe for the container duration in seconds.
func (e *Extractor) probeDuration(ctx context.Context, path string) (float64, error) {
	stdout, stderr, err := e.run(ctx, e.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(string(stderr)))
	}
	s := strings.TrimSpace(string(stdout))
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative ffprobe duration %f", d)
	}
	return d, nil
}

// pickOffset chooses the seek point: a random spot in the middle 80% for
// normal videos, the midpoint for short ones, the start when the duration
// is unknown.
func pickOffset(duration float64, rnd *rand.Rand) float64 {
	switch {
	case duration <= 0:
		return 0
	case duration < minRandomDuration:
		return duration / 2
	default:
		return duration*0.1 + rnd.Float64()*duration*0.8
	}
}
