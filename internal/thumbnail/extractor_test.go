package thumbnail

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fakeJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

type runnerStub struct {
	probeOut  string
	probeErr  error
	ffmpegErr error
	jpeg      []byte
	calls     [][]string
}

func (s *runnerStub) run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	if strings.Contains(name, "ffprobe") {
		if s.probeErr != nil {
			return nil, []byte("probe stderr"), s.probeErr
		}
		return []byte(s.probeOut), nil, nil
	}
	if s.ffmpegErr != nil {
		return nil, []byte("frame stderr"), s.ffmpegErr
	}
	for i, a := range args {
		if a == "-y" && i+1 < len(args) {
			if err := os.WriteFile(args[i+1], s.jpeg, 0o600); err != nil {
				return nil, nil, err
			}
		}
	}
	return nil, nil, nil
}

func newStubbedExtractor(stub *runnerStub) *Extractor {
	e := NewExtractor("", "", nil)
	e.run = stub.run
	e.rnd = rand.New(rand.NewSource(1))
	return e
}

func seekSeconds(t *testing.T, call []string) float64 {
	t.Helper()
	for i, a := range call {
		if a == "-ss" && i+1 < len(call) {
			v, err := strconv.ParseFloat(call[i+1], 64)
			require.NoError(t, err)
			return v
		}
	}
	t.Fatal("ffmpeg call has no -ss flag")
	return 0
}

func TestPickOffset(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))

	assert.Equal(t, 0.0, pickOffset(0, rnd))
	assert.Equal(t, 0.0, pickOffset(-5, rnd))
	assert.Equal(t, 2.5, pickOffset(5, rnd))
	assert.Equal(t, 4.5, pickOffset(9, rnd))

	for i := 0; i < 100; i++ {
		off := pickOffset(100, rnd)
		assert.GreaterOrEqual(t, off, 10.0)
		assert.LessOrEqual(t, off, 90.0)
	}
}

func TestExtract(t *testing.T) {
	stub := &runnerStub{probeOut: "3600.500000\n", jpeg: fakeJPEG}
	e := newStubbedExtractor(stub)

	res, err := e.Extract(context.Background(), []byte("fake-mp4-bytes"))
	require.NoError(t, err)
	assert.Equal(t, fakeJPEG, res.JPEG)
	assert.Equal(t, 3600.5, res.Duration)

	require.Len(t, stub.calls, 2)
	probe, grab := stub.calls[0], stub.calls[1]

	assert.Equal(t, "ffprobe", probe[0])
	assert.Contains(t, probe, "format=duration")

	assert.Equal(t, "ffmpeg", grab[0])
	assert.Contains(t, grab, "-frames:v")
	assert.Contains(t, grab, scaleFilter)
	off := seekSeconds(t, grab)
	assert.GreaterOrEqual(t, off, 360.05)
	assert.LessOrEqual(t, off, 3240.45)
}

func TestExtractProbeFailureUsesFirstFrame(t *testing.T) {
	stub := &runnerStub{probeErr: errors.New("exit status 1"), jpeg: fakeJPEG}
	e := newStubbedExtractor(stub)

	res, err := e.Extract(context.Background(), []byte("fake-mp4-bytes"))
	require.NoError(t, err)
	assert.Equal(t, fakeJPEG, res.JPEG)
	assert.Equal(t, 0.0, res.Duration)

	require.Len(t, stub.calls, 2)
	assert.Equal(t, 0.0, seekSeconds(t, stub.calls[1]))
}

func TestExtractShortVideoSeeksMidpoint(t *testing.T) {
	stub := &runnerStub{probeOut: "7.0", jpeg: fakeJPEG}
	e := newStubbedExtractor(stub)

	_, err := e.Extract(context.Background(), []byte("fake-mp4-bytes"))
	require.NoError(t, err)
	assert.Equal(t, 3.5, seekSeconds(t, stub.calls[1]))
}

func TestExtractFfmpegFailure(t *testing.T) {
	stub := &runnerStub{probeOut: "60", ffmpegErr: errors.New("exit status 1")}
	e := newStubbedExtractor(stub)

	_, err := e.Extract(context.Background(), []byte("fake-mp4-bytes"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg frame grab")
	assert.Contains(t, err.Error(), "frame stderr")
}

func TestExtractEmptyOutput(t *testing.T) {
	stub := &runnerStub{probeOut: "60", jpeg: nil}
	e := newStubbedExtractor(stub)

	_, err := e.Extract(context.Background(), []byte("fake-mp4-bytes"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty thumbnail")
}

func TestExtractEmptyMedia(t *testing.T) {
	stub := &runnerStub{}
	e := newStubbedExtractor(stub)

	_, err := e.Extract(context.Background(), nil)
	require.Error(t, err)
	assert.Empty(t, stub.calls, "no binaries run for an empty buffer")
}

func TestProbeDurationParseError(t *testing.T) {
	stub := &runnerStub{probeOut: "N/A\n"}
	e := newStubbedExtractor(stub)

	_, err := e.probeDuration(context.Background(), "/tmp/x.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse ffprobe duration")
}
