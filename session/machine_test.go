package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"shorts-bot/config"
	"shorts-bot/types"
)

type fakeNotifier struct {
	mu      sync.Mutex
	msgs    []string
	choices []string
}

func (f *fakeNotifier) Notify(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, text)
	return nil
}

func (f *fakeNotifier) AskChoice(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.choices = append(f.choices, text)
	return nil
}

func (f *fakeNotifier) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return ""
	}
	return f.msgs[len(f.msgs)-1]
}

func (f *fakeNotifier) containing(sub string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.msgs {
		if strings.Contains(m, sub) {
			n++
		}
	}
	return n
}

type fakeImages struct {
	mu        sync.Mutex
	saved     int
	discarded []int64
	err       error
}

func (f *fakeImages) Save(ctx context.Context, chatID int64, index int, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.saved++
	return fmt.Sprintf("/img/%d/bg%d-%s.jpg", chatID, index, data), nil
}

func (f *fakeImages) Discard(chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = append(f.discarded, chatID)
	return nil
}

type fakeAssembler struct {
	mu        sync.Mutex
	calls     int
	images    []string
	prompt    string
	err       error
	discarded []string
}

func (f *fakeAssembler) Assemble(ctx context.Context, chatID int64, prompt string, images []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompt = prompt
	f.images = append([]string(nil), images...)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("/out/%d-run/final_video.mp4", chatID), nil
}

func (f *fakeAssembler) Discard(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = append(f.discarded, p)
	return nil
}

type fakeUploader struct {
	mu  sync.Mutex
	got []types.UploadRequest
	err error
}

func (f *fakeUploader) Upload(ctx context.Context, req types.UploadRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	if f.err != nil {
		return "", f.err
	}
	return "https://www.youtube.com/watch?v=abc123", nil
}

type fakeScheduler struct {
	jobs   []types.ScheduledJob
	err    error
	called int
}

func (f *fakeScheduler) Enqueue(ctx context.Context, payload types.UploadRequest, fireAt time.Time) (types.ScheduledJob, error) {
	f.called++
	if f.err != nil {
		return types.ScheduledJob{}, f.err
	}
	job := types.ScheduledJob{ID: fmt.Sprintf("job-%d", f.called), FireAt: fireAt, Payload: payload}
	f.jobs = append(f.jobs, job)
	return job, nil
}

type harness struct {
	m     *Machine
	notes *fakeNotifier
	imgs  *fakeImages
	asm   *fakeAssembler
	up    *fakeUploader
	sched *fakeScheduler
	now   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	h := &harness{
		notes: &fakeNotifier{},
		imgs:  &fakeImages{},
		asm:   &fakeAssembler{},
		up:    &fakeUploader{},
		sched: &fakeScheduler{},
		now:   time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local),
	}
	h.m = NewMachine(cfg, Deps{
		Notifier:  h.notes,
		Images:    h.imgs,
		Assembler: h.asm,
		Uploader:  h.up,
		Scheduler: h.sched,
	}, zerolog.Nop())
	h.m.now = func() time.Time { return h.now }
	return h
}

const (
	chat int64 = 100
	user int64 = 7
)

func (h *harness) toVideoReady(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	mustOK(t, h.m.Start(ctx, chat))
	mustOK(t, h.m.HandleText(ctx, chat, user, "Cats"))
	mustOK(t, h.m.HandleText(ctx, chat, user, "Why cats purr"))
	for i := 0; i < 4; i++ {
		mustOK(t, h.m.HandleImage(ctx, chat, []byte{byte('a' + i)}))
	}
	if st, ok := h.m.Active(chat); !ok || st != VideoReady {
		t.Fatalf("state = %v, %v; want video_ready", st, ok)
	}
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFieldsFillInOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	mustOK(t, h.m.Start(ctx, chat))
	mustOK(t, h.m.HandleText(ctx, chat, user, "Cats"))
	mustOK(t, h.m.HandleText(ctx, chat, user, "Why cats purr"))

	s, _ := h.m.reg.Get(chat)
	if s.Topic != "Cats" || s.Prompt != "Why cats purr" || s.State != CollectingImages {
		t.Fatalf("unexpected session %+v", s)
	}

	// Text while collecting images must not touch topic or prompt.
	mustOK(t, h.m.HandleText(ctx, chat, user, "something else"))
	if s.Topic != "Cats" || s.Prompt != "Why cats purr" {
		t.Fatalf("text overwrote fields: %+v", s)
	}
}

func TestOnlyLastImageTriggersAssembly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustOK(t, h.m.Start(ctx, chat))
	mustOK(t, h.m.HandleText(ctx, chat, user, "Cats"))
	mustOK(t, h.m.HandleText(ctx, chat, user, "Why cats purr"))

	for i := 0; i < 3; i++ {
		mustOK(t, h.m.HandleImage(ctx, chat, []byte{byte('a' + i)}))
		if h.asm.calls != 0 {
			t.Fatalf("assembly ran after %d images", i+1)
		}
	}
	mustOK(t, h.m.HandleImage(ctx, chat, []byte("d")))
	if h.asm.calls != 1 {
		t.Fatalf("assembly calls = %d", h.asm.calls)
	}
	if h.asm.prompt != "Why cats purr" || len(h.asm.images) != 4 {
		t.Fatalf("assembler got prompt %q images %v", h.asm.prompt, h.asm.images)
	}
	for i, p := range h.asm.images {
		if !strings.Contains(p, fmt.Sprintf("bg%d-", i)) {
			t.Fatalf("image %d out of order: %v", i, h.asm.images)
		}
	}
	if h.notes.containing("Image 4 saved") != 1 || h.notes.containing("Creating video") != 1 {
		t.Fatalf("unexpected messages %v", h.notes.msgs)
	}
	if len(h.notes.choices) != 1 {
		t.Fatalf("choice not offered")
	}

	// A fifth image is ignored.
	mustOK(t, h.m.HandleImage(ctx, chat, []byte("e")))
	if h.imgs.saved != 4 || h.asm.calls != 1 {
		t.Fatalf("extra image was processed")
	}
}

func TestImagesIgnoredOutsideCollecting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	mustOK(t, h.m.HandleImage(ctx, chat, []byte("x")))
	mustOK(t, h.m.Start(ctx, chat))
	mustOK(t, h.m.HandleImage(ctx, chat, []byte("x")))
	mustOK(t, h.m.HandleText(ctx, chat, user, "Cats"))
	mustOK(t, h.m.HandleImage(ctx, chat, []byte("x")))
	if h.imgs.saved != 0 {
		t.Fatalf("images saved outside collecting state: %d", h.imgs.saved)
	}
}

func TestTextWithoutSessionIgnored(t *testing.T) {
	h := newHarness(t)
	mustOK(t, h.m.HandleText(context.Background(), chat, user, "hello"))
	if _, ok := h.m.Active(chat); ok {
		t.Fatalf("session created by plain text")
	}
	if len(h.notes.msgs) != 0 {
		t.Fatalf("unexpected reply %v", h.notes.msgs)
	}
}

func TestImmediateUploadEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.toVideoReady(t)

	mustOK(t, h.m.HandleChoice(context.Background(), chat, user, ChoiceImmediate))
	if len(h.up.got) != 1 {
		t.Fatalf("upload calls = %d", len(h.up.got))
	}
	req := h.up.got[0]
	if req.Title != "Cats" || req.Description != "Why cats purr" || req.UserID != user || req.ChatID != chat {
		t.Fatalf("unexpected request %+v", req)
	}
	if h.notes.containing("watch?v=abc123") != 1 {
		t.Fatalf("expected exactly one url message, got %v", h.notes.msgs)
	}
	if _, ok := h.m.Active(chat); ok {
		t.Fatalf("session should be gone")
	}
	if len(h.asm.discarded) != 1 {
		t.Fatalf("video not discarded after upload")
	}
}

func TestChoiceTwiceExpires(t *testing.T) {
	h := newHarness(t)
	h.toVideoReady(t)
	ctx := context.Background()

	mustOK(t, h.m.HandleChoice(ctx, chat, user, ChoiceImmediate))
	err := h.m.HandleChoice(ctx, chat, user, ChoiceImmediate)
	if !errors.Is(err, types.ErrExpiredSession) {
		t.Fatalf("expected ErrExpiredSession, got %v", err)
	}
	if len(h.up.got) != 1 {
		t.Fatalf("second choice uploaded again")
	}
	if !strings.Contains(h.notes.last(), "Session expired") {
		t.Fatalf("last message = %q", h.notes.last())
	}
}

func TestChoiceOutsideVideoReadyExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustOK(t, h.m.Start(ctx, chat))
	err := h.m.HandleChoice(ctx, chat, user, ChoiceSchedule)
	if !errors.Is(err, types.ErrExpiredSession) {
		t.Fatalf("expected ErrExpiredSession, got %v", err)
	}
	if st, _ := h.m.Active(chat); st != AwaitingTopic {
		t.Fatalf("state changed to %v", st)
	}
}

func TestScheduleRelativeEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.toVideoReady(t)
	ctx := context.Background()

	mustOK(t, h.m.HandleChoice(ctx, chat, user, ChoiceSchedule))
	if st, _ := h.m.Active(chat); st != AwaitingScheduleTime {
		t.Fatalf("state = %v", st)
	}
	mustOK(t, h.m.HandleText(ctx, chat, user, "+1"))

	if len(h.sched.jobs) != 1 {
		t.Fatalf("jobs = %d", len(h.sched.jobs))
	}
	job := h.sched.jobs[0]
	if got := job.FireAt.Sub(h.now); got != time.Minute {
		t.Fatalf("fire delay = %v", got)
	}
	if job.Payload.VideoPath == "" || job.Payload.Title != "Cats" {
		t.Fatalf("payload not snapshotted: %+v", job.Payload)
	}
	if !strings.Contains(h.notes.last(), "in 1 minutes") {
		t.Fatalf("confirmation = %q", h.notes.last())
	}
	if _, ok := h.m.Active(chat); ok {
		t.Fatalf("session should be gone after scheduling")
	}
	if len(h.asm.discarded) != 0 {
		t.Fatalf("scheduled video must be kept for the job")
	}
	if len(h.up.got) != 0 {
		t.Fatalf("upload ran before fire time")
	}
}

func TestScheduleClockTime(t *testing.T) {
	h := newHarness(t)
	h.toVideoReady(t)
	ctx := context.Background()

	mustOK(t, h.m.HandleChoice(ctx, chat, user, ChoiceSchedule))
	mustOK(t, h.m.HandleText(ctx, chat, user, "08:30"))
	want := time.Date(2026, 3, 11, 8, 30, 0, 0, time.Local)
	if len(h.sched.jobs) != 1 || !h.sched.jobs[0].FireAt.Equal(want) {
		t.Fatalf("jobs = %+v", h.sched.jobs)
	}
	if !strings.Contains(h.notes.last(), "at 2026-03-11 08:30") {
		t.Fatalf("confirmation = %q", h.notes.last())
	}
}

func TestBadScheduleTimeKeepsState(t *testing.T) {
	h := newHarness(t)
	h.toVideoReady(t)
	ctx := context.Background()
	mustOK(t, h.m.HandleChoice(ctx, chat, user, ChoiceSchedule))

	for _, in := range []string{"25:00", "abc", "-5", "+", "+1.5"} {
		err := h.m.HandleText(ctx, chat, user, in)
		if !errors.Is(err, types.ErrInputFormat) {
			t.Fatalf("%q: expected ErrInputFormat, got %v", in, err)
		}
		if st, ok := h.m.Active(chat); !ok || st != AwaitingScheduleTime {
			t.Fatalf("%q: state = %v, %v", in, st, ok)
		}
		if !strings.Contains(h.notes.last(), "Invalid time format") {
			t.Fatalf("%q: reply = %q", in, h.notes.last())
		}
	}
	if h.sched.called != 0 {
		t.Fatalf("bad input reached the scheduler")
	}

	mustOK(t, h.m.HandleText(ctx, chat, user, "+10"))
	if len(h.sched.jobs) != 1 {
		t.Fatalf("valid retry not scheduled")
	}
}

func TestEnqueueFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	h.toVideoReady(t)
	h.sched.err = errors.New("redis down")
	ctx := context.Background()
	mustOK(t, h.m.HandleChoice(ctx, chat, user, ChoiceSchedule))

	if err := h.m.HandleText(ctx, chat, user, "+5"); err == nil {
		t.Fatalf("expected error")
	}
	if st, ok := h.m.Active(chat); !ok || st != AwaitingScheduleTime {
		t.Fatalf("state = %v, %v", st, ok)
	}
}

func TestAssemblyFailureDestroysSession(t *testing.T) {
	h := newHarness(t)
	h.asm.err = fmt.Errorf("%w: %w", types.ErrAssembly, errors.New("ffmpeg exit 1"))
	ctx := context.Background()
	mustOK(t, h.m.Start(ctx, chat))
	mustOK(t, h.m.HandleText(ctx, chat, user, "Cats"))
	mustOK(t, h.m.HandleText(ctx, chat, user, "Why cats purr"))
	for i := 0; i < 3; i++ {
		mustOK(t, h.m.HandleImage(ctx, chat, []byte{byte('a' + i)}))
	}
	err := h.m.HandleImage(ctx, chat, []byte("d"))
	if !errors.Is(err, types.ErrAssembly) {
		t.Fatalf("expected ErrAssembly, got %v", err)
	}
	if _, ok := h.m.Active(chat); ok {
		t.Fatalf("session should be destroyed")
	}
	if len(h.imgs.discarded) != 1 {
		t.Fatalf("images not discarded")
	}
	if !strings.Contains(h.notes.last(), "/start") {
		t.Fatalf("reply = %q", h.notes.last())
	}
	if len(h.notes.choices) != 0 {
		t.Fatalf("choice offered after failure")
	}
}

func TestUploadFailureDestroysSession(t *testing.T) {
	h := newHarness(t)
	h.toVideoReady(t)
	h.up.err = fmt.Errorf("user %d: %w", user, types.ErrMissingCredential)

	err := h.m.HandleChoice(context.Background(), chat, user, ChoiceImmediate)
	if !errors.Is(err, types.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if _, ok := h.m.Active(chat); ok {
		t.Fatalf("session should be destroyed")
	}
	if !strings.Contains(h.notes.last(), "/set_token") {
		t.Fatalf("reply = %q", h.notes.last())
	}
}

func TestStartReplacesSession(t *testing.T) {
	h := newHarness(t)
	h.toVideoReady(t)
	mustOK(t, h.m.Start(context.Background(), chat))

	if st, _ := h.m.Active(chat); st != AwaitingTopic {
		t.Fatalf("state = %v", st)
	}
	s, _ := h.m.reg.Get(chat)
	if s.Topic != "" || len(s.Images) != 0 {
		t.Fatalf("replaced session kept data: %+v", s)
	}
	if len(h.asm.discarded) != 1 || len(h.imgs.discarded) != 1 {
		t.Fatalf("old artifacts not discarded")
	}
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustOK(t, h.m.Cancel(ctx, chat))
	if h.notes.last() != msgNoSession {
		t.Fatalf("reply = %q", h.notes.last())
	}
	mustOK(t, h.m.Start(ctx, chat))
	mustOK(t, h.m.Cancel(ctx, chat))
	if _, ok := h.m.Active(chat); ok {
		t.Fatalf("session survived cancel")
	}
}

func TestChatsAreIndependent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for c := int64(1); c <= 5; c++ {
		wg.Add(1)
		go func(c int64) {
			defer wg.Done()
			_ = h.m.Start(ctx, c)
			_ = h.m.HandleText(ctx, c, c, fmt.Sprintf("topic %d", c))
		}(c)
	}
	wg.Wait()
	if h.m.Sessions() != 5 {
		t.Fatalf("sessions = %d", h.m.Sessions())
	}
	for c := int64(1); c <= 5; c++ {
		s, _ := h.m.reg.Get(c)
		if s.Topic != fmt.Sprintf("topic %d", c) || s.UserID != c {
			t.Fatalf("chat %d mixed up: %+v", c, s)
		}
	}
}

func TestParseChoice(t *testing.T) {
	for in, want := range map[string]Choice{"now": ChoiceImmediate, "immediate": ChoiceImmediate, "later": ChoiceSchedule, "schedule": ChoiceSchedule} {
		if got, ok := ParseChoice(in); !ok || got != want {
			t.Fatalf("ParseChoice(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ParseChoice("maybe"); ok {
		t.Fatalf("unexpected choice")
	}
}

func TestSessionEndLogsAge(t *testing.T) {
	h := newHarness(t)
	var buf bytes.Buffer
	h.m.logger = zerolog.New(&buf)
	ctx := context.Background()

	mustOK(t, h.m.Start(ctx, chat))
	h.now = h.now.Add(90 * time.Second)
	mustOK(t, h.m.Cancel(ctx, chat))

	if !strings.Contains(buf.String(), `"message":"session ended"`) || !strings.Contains(buf.String(), `"age":90000`) {
		t.Fatalf("log = %s", buf.String())
	}
}
