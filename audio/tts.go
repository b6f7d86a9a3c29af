package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/rs/zerolog"

	"shorts-bot/config"
)

const ttsAttempts = 3

// edge-tts needs a voice rather than a language code.
var edgeVoices = map[string]string{
	"en": "en-US-GuyNeural",
	"hi": "hi-IN-MadhurNeural",
}

// Generator synthesizes narration through an external TTS command.
// Set audio.tts_command to gtts-cli (default), edge-tts, a .py script, or any
// binary accepting --text --lang --output.
type Generator struct {
	cfg    config.AudioConfig
	logger zerolog.Logger
}

// New creates a new Generator
func New(cfg *config.Config, logger zerolog.Logger) *Generator {
	return &Generator{cfg: cfg.Audio, logger: logger}
}

// SelectLanguage detects the language of text. A detected language present in
// the language map is synthesized as its mapped language, anything else falls
// back to the default language.
func (g *Generator) SelectLanguage(text string) string {
	return selectLanguage(text, g.cfg.LanguageMap, g.cfg.DefaultLanguage)
}

func selectLanguage(text string, languages map[string]string, fallback string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	detected := whatlanggo.Detect(text).Lang.Iso6391()
	if lang, ok := languages[detected]; ok && lang != "" {
		return lang
	}
	return fallback
}

// Synthesize writes narration for text to outFile and returns the language
// used and the measured duration in seconds.
func (g *Generator) Synthesize(ctx context.Context, text, outFile string) (string, float64, error) {
	if strings.TrimSpace(text) == "" {
		return "", 0, fmt.Errorf("narration text is empty")
	}
	if err := os.MkdirAll(filepath.Dir(outFile), 0o755); err != nil {
		return "", 0, fmt.Errorf("create audio dir: %w", err)
	}

	lang := g.SelectLanguage(text)
	g.logger.Info().Str("lang", lang).Str("out", outFile).Msg("synthesizing narration")

	var err error
	for attempt := 1; attempt <= ttsAttempts; attempt++ {
		cmd := g.command(ctx, lang, text, outFile)
		if err = cmd.Run(); err == nil {
			break
		}
		g.logger.Warn().Err(err).Int("attempt", attempt).Msg("tts attempt failed")
		if attempt == ttsAttempts {
			return "", 0, fmt.Errorf("tts failed after %d attempts: %w", ttsAttempts, err)
		}
		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		case <-time.After(time.Duration(attempt) * 2 * time.Second):
		}
	}

	dur, err := Duration(ctx, outFile)
	if err != nil {
		return "", 0, fmt.Errorf("measure narration: %w", err)
	}
	if dur <= 0 {
		return "", 0, fmt.Errorf("narration has zero duration")
	}
	g.logger.Info().Float64("duration_sec", dur).Msg("narration ready")
	return lang, dur, nil
}

func (g *Generator) command(ctx context.Context, lang, text, outFile string) *exec.Cmd {
	name, args, stdin := ttsInvocation(strings.TrimSpace(g.cfg.TTSCommand), lang, text, outFile)
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	cmd.Stderr = os.Stderr
	return cmd
}

// ttsInvocation builds the argv for the configured engine. gtts-cli reads the
// text from stdin so narration starting with "-" is not taken for a flag.
func ttsInvocation(ttsCmd, lang, text, outFile string) (string, []string, string) {
	switch {
	case ttsCmd == "gtts-cli" || strings.HasSuffix(ttsCmd, "/gtts-cli"):
		return ttsCmd, []string{"--lang", lang, "--output", outFile, "-"}, text

	case ttsCmd == "edge-tts":
		voice, ok := edgeVoices[lang]
		if !ok {
			voice = edgeVoices["en"]
		}
		return ttsCmd, []string{"--voice", voice, "--text", text, "--write-media", outFile}, ""

	case strings.HasSuffix(ttsCmd, ".py"):
		return "python3", []string{ttsCmd, "--text", text, "--lang", lang, "--output", outFile}, ""

	default:
		return ttsCmd, []string{"--text", text, "--lang", lang, "--output", outFile}, ""
	}
}

// Duration uses ffprobe to get the media duration in seconds.
func Duration(ctx context.Context, file string) (float64, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		file,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", file, err)
	}
	return parseDuration(string(out))
}

func parseDuration(raw string) (float64, error) {
	var dur float64
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%f", &dur); err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(raw), err)
	}
	return dur, nil
}
