package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"shorts-bot/config"
)

// Renderer turns a Timeline plus narration into the final vertical MP4.
type Renderer struct {
	cfg    config.VideoConfig
	logger zerolog.Logger
}

// New creates a new Renderer
func New(cfg *config.Config, logger zerolog.Logger) *Renderer {
	return &Renderer{cfg: cfg.Video, logger: logger}
}

// Render writes final_video.mp4 into outputDir. The visual track is exactly
// tl.Target seconds long and the narration is muxed unmodified.
func (r *Renderer) Render(ctx context.Context, tl Timeline, audioFile, outputDir string) (string, error) {
	if len(tl.Segments) == 0 {
		return "", fmt.Errorf("empty timeline")
	}
	r.logger.Info().Int("segments", len(tl.Segments)).Float64("target_sec", tl.Target).Msg("rendering slideshow")

	listFile := filepath.Join(outputDir, "slides_concat.txt")
	if err := os.WriteFile(listFile, []byte(ConcatList(tl)), 0o644); err != nil {
		return "", fmt.Errorf("write concat list: %w", err)
	}

	outFile := filepath.Join(outputDir, "final_video.mp4")
	cmd := exec.CommandContext(ctx, "ffmpeg", r.args(tl, listFile, audioFile, outFile)...)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg render: %w", err)
	}

	r.logger.Info().Str("video", outFile).Msg("final video ready")
	return outFile, nil
}

func (r *Renderer) args(tl Timeline, listFile, audioFile, outFile string) []string {
	w, h := r.cfg.Width, r.cfg.Height
	vf := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,format=yuv420p",
		w, h, w, h,
	)
	return []string{"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-i", audioFile,
		"-map", "0:v",
		"-map", "1:a",
		"-vf", vf,
		"-r", strconv.Itoa(r.cfg.FPS),
		"-c:v", "libx264",
		"-preset", r.cfg.Preset,
		"-crf", strconv.Itoa(r.cfg.CRF),
		"-c:a", "aac",
		"-b:a", "192k",
		"-t", formatSeconds(tl.Target),
		"-movflags", "+faststart",
		outFile,
	}
}

// ConcatList renders the ffmpeg concat-demuxer script for tl. The demuxer
// ignores the duration of the final entry, so the last image is listed twice.
func ConcatList(tl Timeline) string {
	var b strings.Builder
	for _, seg := range tl.Segments {
		fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(seg.Image))
		fmt.Fprintf(&b, "duration %s\n", formatSeconds(seg.Duration))
	}
	if n := len(tl.Segments); n > 0 {
		fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(tl.Segments[n-1].Image))
	}
	return b.String()
}

func escapeConcatPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return strings.ReplaceAll(p, "'", `'\''`)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
