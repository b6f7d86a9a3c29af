package visuals

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"shorts-bot/config"
	"shorts-bot/render"
	"shorts-bot/types"
)

type fakeTTS struct {
	dur float64
	err error
}

func (f *fakeTTS) Synthesize(ctx context.Context, text, outFile string) (string, float64, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	return "en", f.dur, os.WriteFile(outFile, []byte("mp3"), 0o644)
}

type fakeRenderer struct {
	mu  sync.Mutex
	got []render.Timeline
	err error
}

func (f *fakeRenderer) Render(ctx context.Context, tl render.Timeline, audioFile, outputDir string) (string, error) {
	f.mu.Lock()
	f.got = append(f.got, tl)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	out := filepath.Join(outputDir, "final_video.mp4")
	return out, os.WriteFile(out, []byte("mp4"), 0o644)
}

func newTestAssembler(t *testing.T, tts Synthesizer, r Renderer) (*Assembler, string) {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	cfg.Paths.Output = filepath.Join(t.TempDir(), "output")
	a, err := NewAssembler(cfg, tts, r, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewAssembler error: %v", err)
	}
	return a, cfg.Paths.Output
}

func TestAssembleSuccess(t *testing.T) {
	r := &fakeRenderer{}
	a, root := newTestAssembler(t, &fakeTTS{dur: 7.5}, r)

	images := []string{"1.jpg", "2.jpg", "3.jpg", "4.jpg"}
	video, err := a.Assemble(context.Background(), 55, "narration", images)
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(filepath.Dir(video)), "55-") {
		t.Fatalf("run dir should carry the chat id: %s", video)
	}
	if filepath.Dir(filepath.Dir(video)) != root {
		t.Fatalf("artifact outside output root: %s", video)
	}
	if len(r.got) != 1 || r.got[0].Target != 15 || len(r.got[0].Segments) != 5 {
		t.Fatalf("unexpected timeline: %+v", r.got)
	}

	if err := a.Discard(video); err != nil {
		t.Fatalf("Discard error: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(video)); !os.IsNotExist(err) {
		t.Fatalf("run dir not removed")
	}
}

func TestAssembleUniqueAcrossConcurrentRuns(t *testing.T) {
	a, _ := newTestAssembler(t, &fakeTTS{dur: 20}, &fakeRenderer{})
	var wg sync.WaitGroup
	paths := make([]string, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := a.Assemble(context.Background(), 1, "x", []string{"a.jpg"})
			if err != nil {
				t.Errorf("Assemble error: %v", err)
			}
			paths[i] = p
		}(i)
	}
	wg.Wait()
	seen := map[string]bool{}
	for _, p := range paths {
		if seen[p] {
			t.Fatalf("duplicate artifact path %s", p)
		}
		seen[p] = true
	}
}

func TestAssembleFailuresWrapKindAndCleanUp(t *testing.T) {
	cases := []struct {
		name string
		tts  *fakeTTS
		r    *fakeRenderer
		imgs []string
	}{
		{"tts failure", &fakeTTS{err: errors.New("gtts down")}, &fakeRenderer{}, []string{"a.jpg"}},
		{"zero duration", &fakeTTS{dur: 0}, &fakeRenderer{}, []string{"a.jpg"}},
		{"nan duration", &fakeTTS{dur: math.NaN()}, &fakeRenderer{}, []string{"a.jpg"}},
		{"render failure", &fakeTTS{dur: 5}, &fakeRenderer{err: errors.New("ffmpeg exit 1")}, []string{"a.jpg"}},
		{"no images", &fakeTTS{dur: 5}, &fakeRenderer{}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, root := newTestAssembler(t, tc.tts, tc.r)
			video, err := a.Assemble(context.Background(), 9, "x", tc.imgs)
			if !errors.Is(err, types.ErrAssembly) {
				t.Fatalf("expected ErrAssembly, got %v", err)
			}
			if video != "" {
				t.Fatalf("no artifact should be returned, got %s", video)
			}
			entries, _ := os.ReadDir(root)
			if len(entries) != 0 {
				t.Fatalf("partial artifacts left behind: %v", entries)
			}
		})
	}
}

func TestDiscardRefusesOutsideRoot(t *testing.T) {
	a, _ := newTestAssembler(t, &fakeTTS{dur: 1}, &fakeRenderer{})
	outside := filepath.Join(t.TempDir(), "keep", "final_video.mp4")
	if err := os.MkdirAll(filepath.Dir(outside), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := a.Discard(outside); err == nil {
		t.Fatalf("expected refusal for path outside output root")
	}
	if _, err := os.Stat(filepath.Dir(outside)); err != nil {
		t.Fatalf("outside dir was touched: %v", err)
	}
}
