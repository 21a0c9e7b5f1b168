package device

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"slices"
	"time"

	"github.com/gogpu/gg"

	"github.com/starford/screenflowr/internal/apperr"
)

// SyntheticConfig configures the synthetic provider.
type SyntheticConfig struct {
	Width   int
	Height  int
	FPS     int
	Deny    []Source
	Missing []Source
}

// Audio sample layout produced by synthetic audio tracks: 48kHz mono s16le
// delivered in 100ms blocks of silence.
const (
	audioSampleRate = 48000
	audioBlock      = 100 * time.Millisecond
)

// Synthetic is a Provider producing test-pattern video and silent audio. It
// lets the recorder run without real capture hardware. Sources listed in Deny
// fail with a permission error, those in Missing as unavailable.
type Synthetic struct {
	cfg          SyntheticConfig
	screenFrames [][]byte
	cameraFrames [][]byte
	silence      []byte
}

var _ Provider = (*Synthetic)(nil)

// NewSynthetic renders one second of pattern frames for each video source.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.FPS <= 0 {
		return nil, fmt.Errorf("device: synthetic: invalid geometry %dx%d@%d", cfg.Width, cfg.Height, cfg.FPS)
	}
	s := &Synthetic{
		cfg:     cfg,
		silence: make([]byte, int(audioBlock.Seconds()*audioSampleRate)*2),
	}
	var err error
	if s.screenFrames, err = patternFrames(cfg.Width, cfg.Height, cfg.FPS, screenBars); err != nil {
		return nil, err
	}
	if s.cameraFrames, err = patternFrames(cfg.Width/4, cfg.Height/4, cfg.FPS, cameraBars); err != nil {
		return nil, err
	}
	return s, nil
}

// Screen returns a stream with one video and one audio track.
func (s *Synthetic) Screen(ctx context.Context) (*Stream, error) {
	if err := s.check(ctx, SourceScreen); err != nil {
		return nil, err
	}
	return NewStream(SourceScreen, s.videoTrack(SourceScreen, s.screenFrames), s.audioTrack(SourceScreen)), nil
}

// Camera returns a stream with one video track.
func (s *Synthetic) Camera(ctx context.Context) (*Stream, error) {
	if err := s.check(ctx, SourceCamera); err != nil {
		return nil, err
	}
	return NewStream(SourceCamera, s.videoTrack(SourceCamera, s.cameraFrames)), nil
}

// Microphone returns a stream with one audio track.
func (s *Synthetic) Microphone(ctx context.Context) (*Stream, error) {
	if err := s.check(ctx, SourceMicrophone); err != nil {
		return nil, err
	}
	return NewStream(SourceMicrophone, s.audioTrack(SourceMicrophone)), nil
}

func (s *Synthetic) check(ctx context.Context, src Source) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("synthetic %s: %w", src, err)
	}
	switch {
	case slices.Contains(s.cfg.Deny, src):
		return fmt.Errorf("synthetic %s: %w", src, apperr.ErrPermissionDenied)
	case slices.Contains(s.cfg.Missing, src):
		return fmt.Errorf("synthetic %s: %w", src, apperr.ErrDeviceUnavailable)
	}
	return nil
}

func (s *Synthetic) videoTrack(src Source, frames [][]byte) Track {
	interval := time.Second / time.Duration(s.cfg.FPS)
	return NewGeneratorTrack(src, KindVideo, interval, func(seq int) []byte {
		return frames[seq%len(frames)]
	})
}

func (s *Synthetic) audioTrack(src Source) Track {
	return NewGeneratorTrack(src, KindAudio, audioBlock, func(int) []byte {
		return s.silence
	})
}

var (
	screenBars = []gg.RGBA{
		gg.RGB(0.75, 0.75, 0.75), gg.RGB(0.75, 0.75, 0), gg.RGB(0, 0.75, 0.75), gg.RGB(0, 0.75, 0),
		gg.RGB(0.75, 0, 0.75), gg.RGB(0.75, 0, 0), gg.RGB(0, 0, 0.75),
	}
	cameraBars = []gg.RGBA{gg.RGB(0.2, 0.2, 0.25), gg.RGB(0.35, 0.3, 0.3)}
)

// patternFrames draws fps PNG frames of vertical bars with a marker sweeping
// across them.
func patternFrames(width, height, fps int, bars []gg.RGBA) ([][]byte, error) {
	width, height = max(width, 8), max(height, 8)
	frames := make([][]byte, fps)
	for i := range frames {
		dc := gg.NewContext(width, height)
		barWidth := float64(width) / float64(len(bars))
		for b, col := range bars {
			dc.SetRGBA(col.R, col.G, col.B, 1)
			dc.DrawRectangle(float64(b)*barWidth, 0, barWidth, float64(height))
			if err := dc.Fill(); err != nil {
				return nil, fmt.Errorf("device: draw pattern: %w", err)
			}
		}
		dc.SetRGBA(1, 1, 1, 1)
		x := float64(width) * (float64(i) + 0.5) / float64(fps)
		dc.DrawCircle(x, float64(height)/2, float64(height)/10)
		if err := dc.Fill(); err != nil {
			return nil, fmt.Errorf("device: draw pattern: %w", err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, dc.Image()); err != nil {
			return nil, fmt.Errorf("device: encode frame: %w", err)
		}
		_ = dc.Close()
		frames[i] = buf.Bytes()
	}
	return frames, nil
}
