package visuals

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shorts-bot/config"
	"shorts-bot/render"
	"shorts-bot/types"
)

// Synthesizer produces narration audio and reports its duration in seconds.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outFile string) (lang string, durationSec float64, err error)
}

// Renderer composites a planned timeline with narration into a video file.
type Renderer interface {
	Render(ctx context.Context, tl render.Timeline, audioFile, outputDir string) (string, error)
}

// Assembler coordinates narration synthesis, timeline planning and rendering
// for one chat's slideshow.
type Assembler struct {
	cfg        config.VideoConfig
	outputRoot string
	tts        Synthesizer
	renderer   Renderer
	logger     zerolog.Logger
	now        func() time.Time
}

// NewAssembler creates a new visual Assembler
func NewAssembler(cfg *config.Config, tts Synthesizer, renderer Renderer, logger zerolog.Logger) (*Assembler, error) {
	if err := os.MkdirAll(cfg.Paths.Output, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Assembler{
		cfg:        cfg.Video,
		outputRoot: cfg.Paths.Output,
		tts:        tts,
		renderer:   renderer,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Assemble renders the slideshow for images narrated with prompt and returns
// the video path. Every run gets its own directory; on failure the directory
// is removed and the error wraps types.ErrAssembly.
func (a *Assembler) Assemble(ctx context.Context, chatID int64, prompt string, images []string) (string, error) {
	if len(images) == 0 {
		return "", fmt.Errorf("%w: %w", types.ErrAssembly, errors.New("no images"))
	}

	runDir := filepath.Join(a.outputRoot, fmt.Sprintf("%d-%s-%s",
		chatID, a.now().UTC().Format("20060102150405"), uuid.NewString()[:8]))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create run dir: %w", types.ErrAssembly, err)
	}
	log := a.logger.With().Int64("chat_id", chatID).Str("run_dir", runDir).Logger()
	log.Info().Int("images", len(images)).Msg("assembling video")

	video, err := a.assemble(ctx, prompt, images, runDir)
	if err != nil {
		if rmErr := os.RemoveAll(runDir); rmErr != nil {
			log.Warn().Err(rmErr).Msg("failed to remove partial artifact")
		}
		log.Error().Err(err).Msg("assembly failed")
		return "", fmt.Errorf("%w: %w", types.ErrAssembly, err)
	}
	log.Info().Str("video", video).Msg("assembly complete")
	return video, nil
}

func (a *Assembler) assemble(ctx context.Context, prompt string, images []string, runDir string) (string, error) {
	voice := filepath.Join(runDir, "voice.mp3")
	lang, dur, err := a.tts.Synthesize(ctx, prompt, voice)
	if err != nil {
		return "", fmt.Errorf("synthesize narration: %w", err)
	}
	if dur <= 0 {
		return "", errors.New("narration has zero duration")
	}
	a.logger.Debug().Str("lang", lang).Float64("duration_sec", dur).Msg("narration synthesized")

	tl, err := render.Plan(dur, images, a.cfg.SegmentSec, a.cfg.MinDurationSec)
	if err != nil {
		return "", fmt.Errorf("plan timeline: %w", err)
	}
	video, err := a.renderer.Render(ctx, tl, voice, runDir)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return video, nil
}

// Discard removes the run directory holding videoPath once it is no longer
// needed. Paths outside the output root are left alone.
func (a *Assembler) Discard(videoPath string) error {
	if videoPath == "" {
		return nil
	}
	dir := filepath.Dir(videoPath)
	root, err := filepath.Abs(a.outputRoot)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || strings.Contains(rel, string(filepath.Separator)) {
		return fmt.Errorf("refusing to discard %s outside %s", dir, a.outputRoot)
	}
	return os.RemoveAll(abs)
}
