package submission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSolver struct {
	mu    sync.Mutex
	calls []Request

	steps []Progress
	resp  Response
	err   error

	// block, when set, is closed by the test to let Solve return.
	block   chan struct{}
	started chan struct{}
}

func (f *fakeSolver) Solve(ctx context.Context, req Request, progress func(Progress)) (Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	for _, p := range f.steps {
		progress(p)
	}
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return Response{}, &SubmitError{Kind: ErrTransport, Err: ctx.Err()}
		}
	}
	return f.resp, f.err
}

func (f *fakeSolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) observe(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) percents() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, s := range r.snaps {
		if s.State.Phase == InProgress {
			out = append(out, s.State.Percent)
		}
	}
	return out
}

func (r *recorder) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Phase
	for _, s := range r.snaps {
		out = append(out, s.State.Phase)
	}
	return out
}

func uploadSteps(total int64) []Progress {
	return []Progress{
		{Sent: 0, Total: total},
		{Sent: total / 4, Total: total},
		{Sent: total / 2, Total: total},
		{Sent: total, Total: total},
		{Sent: total, Total: total, Complete: true},
	}
}

func pdfFile() FileInput {
	return FileInput{Bytes: []byte("%PDF-1.4\n..."), Filename: "hw.pdf", MimeType: "application/pdf"}
}

func TestSubmit_EmptyInputIsRefused(t *testing.T) {
	s := &fakeSolver{resp: Response{Solution: "x"}}
	c := NewController(s)
	rec := &recorder{}
	c.Observe(rec.observe)

	err := c.Submit(context.Background(), "en")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationSkip)
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, 0, s.callCount())
	assert.Equal(t, State{Phase: Idle}, c.State())
	assert.Empty(t, rec.snaps)

	c.SelectText("")
	err = c.Submit(context.Background(), "en")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, 0, s.callCount())
	assert.Equal(t, Idle, c.State().Phase)
	assert.False(t, c.CanSubmit())
}

func TestSubmit_FileSuccessClearsInput(t *testing.T) {
	s := &fakeSolver{steps: uploadSteps(1000), resp: Response{Solution: "x=5"}}
	c := NewController(s)
	rec := &recorder{}
	c.Observe(rec.observe)

	require.NoError(t, c.SelectFile(pdfFile()))
	require.True(t, c.CanSubmit())

	require.NoError(t, c.Submit(context.Background(), "en"))

	st := c.State()
	assert.Equal(t, Succeeded, st.Phase)
	assert.Equal(t, "x=5", st.Solution)
	assert.Equal(t, 0, st.Percent)
	assert.True(t, c.Input().IsEmpty())
	_, hasFile := c.Input().File()
	assert.False(t, hasFile)

	require.Equal(t, 1, s.callCount())
	f, ok := s.calls[0].Input.File()
	require.True(t, ok)
	assert.Equal(t, "hw.pdf", f.Filename)
	assert.Equal(t, "en", s.calls[0].LanguageTag)
}

func TestSubmit_TextSuccess(t *testing.T) {
	s := &fakeSolver{resp: Response{Solution: "2+2=4"}}
	c := NewController(s)
	c.SelectText("what is 2+2?")

	require.NoError(t, c.Submit(context.Background(), "id", WithSubject(" math ")))
	assert.Equal(t, State{Phase: Succeeded, Solution: "2+2=4"}, c.State())
	assert.True(t, c.Input().IsEmpty())
	assert.Equal(t, "math", s.calls[0].Subject)
	assert.Equal(t, "id", s.calls[0].LanguageTag)
}

func TestSubmit_ProgressIsMonotonicAndEndsAt100(t *testing.T) {
	steps := []Progress{
		{Sent: 0, Total: 200},
		{Sent: 150, Total: 200},
		{Sent: 100, Total: 200}, // out of order report is ignored
		{Sent: 200, Total: 200},
		{Sent: 200, Total: 200, Complete: true},
	}
	c := NewController(&fakeSolver{steps: steps, resp: Response{Solution: "ok"}})
	rec := &recorder{}
	c.Observe(rec.observe)
	c.SelectText("q")

	require.NoError(t, c.Submit(context.Background(), "en"))

	got := rec.percents()
	assert.Equal(t, []int{0, 75, 99, 100}, got)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i], got[i-1])
	}
	phases := rec.phases()
	assert.Equal(t, Succeeded, phases[len(phases)-1])
}

func TestSubmit_ProgressCappedBeforeUploadComplete(t *testing.T) {
	steps := []Progress{
		{Sent: 10, Total: 10},
		{Sent: 12, Total: 10},
	}
	c := NewController(&fakeSolver{steps: steps, resp: Response{Solution: "ok"}})
	rec := &recorder{}
	c.Observe(rec.observe)
	c.SelectText("q")

	require.NoError(t, c.Submit(context.Background(), "en"))

	got := rec.percents()
	// 0 at start, capped 99 while uploading, 100 forced before success
	assert.Equal(t, []int{0, 99, 100}, got)
}

func TestSubmit_UnknownTotalIsCapped(t *testing.T) {
	c := NewController(&fakeSolver{steps: []Progress{{Sent: 4096}}, resp: Response{Solution: "ok"}})
	rec := &recorder{}
	c.Observe(rec.observe)
	c.SelectText("q")

	require.NoError(t, c.Submit(context.Background(), "en"))
	assert.Equal(t, []int{0, 99, 100}, rec.percents())
}

func TestSubmit_TransportFailureKeepsInput(t *testing.T) {
	s := &fakeSolver{steps: uploadSteps(10), err: errors.New("dial tcp: connection refused")}
	c := NewController(s)
	require.NoError(t, c.SelectFile(pdfFile()))
	before := c.Input()

	err := c.Submit(context.Background(), "en")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)

	st := c.State()
	assert.Equal(t, Failed, st.Phase)
	assert.Equal(t, "Error processing your request. Please try again.", st.Message)
	assert.Equal(t, before, c.Input())
	assert.True(t, c.CanSubmit())
}

func TestSubmit_ServiceMessageIsShown(t *testing.T) {
	s := &fakeSolver{err: &SubmitError{Kind: ErrService, Status: 500, Message: "Error processing request: boom"}}
	c := NewController(s)
	c.SelectText("q")

	err := c.Submit(context.Background(), "en")
	assert.ErrorIs(t, err, ErrService)
	assert.Equal(t, State{Phase: Failed, Message: "Error processing request: boom"}, c.State())
	text, ok := c.Input().Text()
	assert.True(t, ok)
	assert.Equal(t, "q", text)
}

type staticLocalizer map[string]string

func (l staticLocalizer) T(key string) string {
	if v, ok := l[key]; ok {
		return v
	}
	return key
}

func TestSubmit_LocalizedFallback(t *testing.T) {
	s := &fakeSolver{err: &SubmitError{Kind: ErrMalformedResponse, Err: errors.New("bad json")}}
	c := NewController(s, WithLocalizer(staticLocalizer{KeyError: "Gagal memproses permintaan."}))
	c.SelectText("q")

	err := c.Submit(context.Background(), "id")
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, "Gagal memproses permintaan.", c.State().Message)
}

func TestSubmit_RetryAfterFailure(t *testing.T) {
	s := &fakeSolver{err: &SubmitError{Kind: ErrService, Status: 502}}
	c := NewController(s)
	c.SelectText("q")

	require.Error(t, c.Submit(context.Background(), "en"))
	require.Equal(t, Failed, c.State().Phase)

	s.err = nil
	s.resp = Response{Solution: "done"}
	require.NoError(t, c.Submit(context.Background(), "en"))
	assert.Equal(t, State{Phase: Succeeded, Solution: "done"}, c.State())
	assert.Equal(t, 2, s.callCount())
}

func TestSubmit_EmptySolutionFailsByDefault(t *testing.T) {
	c := NewController(&fakeSolver{resp: Response{Solution: "  "}})
	c.SelectText("q")

	err := c.Submit(context.Background(), "en")
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.ErrorIs(t, err, ErrEmptySolution)
	assert.Equal(t, Failed, c.State().Phase)
	assert.False(t, c.Input().IsEmpty())
}

func TestSubmit_EmptySolutionLenient(t *testing.T) {
	c := NewController(&fakeSolver{resp: Response{}}, WithLenientEmptySolution())
	c.SelectText("q")

	require.NoError(t, c.Submit(context.Background(), "en"))
	assert.Equal(t, State{Phase: Idle}, c.State())
	text, _ := c.Input().Text()
	assert.Equal(t, "q", text)
}

func TestSubmit_RejectedWhileInProgress(t *testing.T) {
	s := &fakeSolver{
		resp:    Response{Solution: "ok"},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	c := NewController(s)
	c.SelectText("q")

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background(), "en") }()
	<-s.started

	require.Equal(t, InProgress, c.State().Phase)
	assert.False(t, c.CanSubmit())
	before := c.State()

	err := c.Submit(context.Background(), "en")
	assert.ErrorIs(t, err, ErrInProgress)
	assert.ErrorIs(t, err, ErrValidationSkip)
	assert.Equal(t, before, c.State())
	assert.Equal(t, 1, s.callCount())

	close(s.block)
	require.NoError(t, <-done)
	assert.Equal(t, Succeeded, c.State().Phase)
}

func TestSubmit_CancelledContextFails(t *testing.T) {
	s := &fakeSolver{block: make(chan struct{}), started: make(chan struct{})}
	c := NewController(s)
	c.SelectText("q")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Submit(ctx, "en") }()
	<-s.started
	cancel()

	err := <-done
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Failed, c.State().Phase)
	assert.False(t, c.Input().IsEmpty())
}

type lateSolver struct {
	progress func(Progress)
}

func (l *lateSolver) Solve(_ context.Context, _ Request, progress func(Progress)) (Response, error) {
	l.progress = progress
	progress(Progress{Sent: 1, Total: 10})
	return Response{Solution: "ok"}, nil
}

func TestSubmit_NoProgressAfterTerminal(t *testing.T) {
	s := &lateSolver{}
	c := NewController(s)
	rec := &recorder{}
	c.Observe(rec.observe)
	c.SelectText("q")

	require.NoError(t, c.Submit(context.Background(), "en"))
	n := len(rec.snaps)

	s.progress(Progress{Sent: 5, Total: 10})
	s.progress(Progress{Complete: true})

	assert.Len(t, rec.snaps, n)
	assert.Equal(t, Succeeded, c.State().Phase)
}

func TestObserve_Unsubscribe(t *testing.T) {
	c := NewController(&fakeSolver{})
	rec := &recorder{}
	stop := c.Observe(rec.observe)

	c.SelectText("a")
	stop()
	c.SelectText("b")

	require.Len(t, rec.snaps, 1)
	text, _ := rec.snaps[0].Input.Text()
	assert.Equal(t, "a", text)
	assert.True(t, rec.snaps[0].CanSubmit)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "in_progress", InProgress.String())
	assert.Equal(t, "succeeded", Succeeded.String())
	assert.Equal(t, "failed", Failed.String())
}

// asyncSolver reports progress from its own goroutine, like the HTTP
// transport does.
type asyncSolver struct {
	release chan struct{}
}

func (a *asyncSolver) Solve(ctx context.Context, _ Request, progress func(Progress)) (Response, error) {
	go progress(Progress{Sent: 5, Total: 10})
	select {
	case <-a.release:
	case <-ctx.Done():
		return Response{}, &SubmitError{Kind: ErrTransport, Err: ctx.Err()}
	}
	return Response{Solution: "ok"}, nil
}

func TestObserve_ReadsStateWhileInputChanges(t *testing.T) {
	s := &asyncSolver{release: make(chan struct{})}
	c := NewController(s)
	c.SelectText("q")

	entered := make(chan struct{})
	resume := make(chan struct{})
	seen := make(chan State, 1)
	var (
		texts   []string
		blocked bool
	)
	c.Observe(func(snap Snapshot) {
		if txt, ok := snap.Input.Text(); ok {
			texts = append(texts, txt)
		}
		if snap.State.Phase == InProgress && snap.State.Percent == 50 && !blocked {
			blocked = true
			close(entered)
			<-resume
			seen <- c.State()
		}
	})

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background(), "en") }()
	<-entered

	selected := make(chan struct{})
	go func() {
		c.SelectText("other")
		close(selected)
	}()
	require.Eventually(t, func() bool {
		txt, _ := c.Input().Text()
		return txt == "other"
	}, 2*time.Second, 5*time.Millisecond)

	close(resume)
	select {
	case st := <-seen:
		assert.Equal(t, InProgress, st.Phase)
	case <-time.After(2 * time.Second):
		t.Fatal("observer could not read state")
	}

	select {
	case <-selected:
	case <-time.After(2 * time.Second):
		t.Fatal("SelectText did not return")
	}
	assert.False(t, c.CanSubmit())

	close(s.release)
	require.NoError(t, <-done)
	assert.Equal(t, Succeeded, c.State().Phase)
	// the 50% snapshot was delivered before the one carrying "other"
	assert.Equal(t, []string{"q", "q", "other", "other"}, texts)
}
