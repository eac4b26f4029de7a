package submission

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type Phase int

const (
	Idle Phase = iota
	InProgress
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case InProgress:
		return "in_progress"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the observable submission state. Percent is meaningful only in
// InProgress, Solution only in Succeeded, Message only in Failed.
type State struct {
	Phase    Phase
	Percent  int
	Solution string
	Message  string
}

// Request is what the controller hands to a Solver.
type Request struct {
	ID          uuid.UUID
	Input       Input
	LanguageTag string
	Subject     string
}

// Progress is an upload progress report. Complete is set once the service
// has received the whole request body.
type Progress struct {
	Sent     int64
	Total    int64
	Complete bool
}

type Response struct {
	Solution string
}

// Solver delivers a request to the solving service. It may call progress from
// any goroutine until it returns. Failures should be *SubmitError; anything
// else is treated as a transport failure.
type Solver interface {
	Solve(ctx context.Context, req Request, progress func(Progress)) (Response, error)
}

// Localizer resolves user-facing message keys.
type Localizer interface {
	T(key string) string
}

// Message keys used by the controller.
const (
	KeyError         = "upload.error"
	KeyEmptySolution = "upload.emptySolution"
)

type defaultLocalizer struct{}

func (defaultLocalizer) T(key string) string {
	switch key {
	case KeyError:
		return "Error processing your request. Please try again."
	case KeyEmptySolution:
		return "The service returned no solution. Please try again."
	}
	return key
}

// Snapshot is what observers receive after every change.
type Snapshot struct {
	State     State
	Input     Input
	CanSubmit bool
}

type observer struct {
	id int
	fn func(Snapshot)
}

// Controller owns the staged input and the submission state. All methods are
// safe for concurrent use. Observers are called in transition order, outside
// the state lock, so they may read State, Input, CanSubmit and Snapshot. They
// must not call SelectFile, SelectText, Clear or Submit synchronously.
type Controller struct {
	solver       Solver
	loc          Localizer
	logger       *slog.Logger
	lenientEmpty bool

	mu        sync.Mutex
	sel       Selector
	state     State
	seq       uint64
	observers []observer
	nextObs   int
	issued    uint64 // next publish ticket, guarded by mu

	notifyMu  sync.Mutex
	turn      *sync.Cond
	delivered uint64 // tickets fully delivered, guarded by notifyMu
}

type Option func(*Controller)

func WithLocalizer(l Localizer) Option {
	return func(c *Controller) {
		if l != nil {
			c.loc = l
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLenientEmptySolution makes a 2xx response without a solution a silent
// no-op instead of a failure.
func WithLenientEmptySolution() Option {
	return func(c *Controller) { c.lenientEmpty = true }
}

func NewController(s Solver, opts ...Option) *Controller {
	c := &Controller{
		solver: s,
		loc:    defaultLocalizer{},
		logger: slog.Default(),
	}
	c.turn = sync.NewCond(&c.notifyMu)
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetLocalizer swaps the localizer used for fallback messages.
func (c *Controller) SetLocalizer(l Localizer) {
	if l == nil {
		return
	}
	c.mu.Lock()
	c.loc = l
	c.mu.Unlock()
}

// Observe registers fn and returns a function that removes it.
func (c *Controller) Observe(fn func(Snapshot)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextObs++
	id := c.nextObs
	c.observers = append(c.observers, observer{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, o := range c.observers {
			if o.id == id {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Input() Input {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sel.Input()
}

func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSubmitLocked()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) SelectFile(f FileInput) error {
	c.mu.Lock()
	if err := c.sel.SelectFile(f); err != nil {
		c.mu.Unlock()
		return err
	}
	c.publishLocked()
	return nil
}

func (c *Controller) SelectText(content string) {
	c.mu.Lock()
	c.sel.SelectText(content)
	c.publishLocked()
}

func (c *Controller) Clear() {
	c.mu.Lock()
	c.sel.Clear()
	c.publishLocked()
}

type submitOptions struct {
	subject string
}

type SubmitOption func(*submitOptions)

func WithSubject(subject string) SubmitOption {
	return func(o *submitOptions) { o.subject = strings.TrimSpace(subject) }
}

// Submit sends the staged input and blocks until the service answers or the
// request fails. Empty input and a submission already in flight are refused
// with an ErrValidationSkip error and no state change. A failed submission
// leaves the input staged; a successful one clears it.
func (c *Controller) Submit(ctx context.Context, languageTag string, opts ...SubmitOption) error {
	var so submitOptions
	for _, o := range opts {
		o(&so)
	}

	c.mu.Lock()
	if c.state.Phase == InProgress {
		c.mu.Unlock()
		return skip(ErrInProgress)
	}
	in := c.sel.Input()
	if in.IsEmpty() {
		c.mu.Unlock()
		return skip(ErrEmptyInput)
	}
	c.seq++
	seq := c.seq
	c.state = State{Phase: InProgress}
	req := Request{
		ID:          uuid.New(),
		Input:       in,
		LanguageTag: languageTag,
		Subject:     so.subject,
	}
	c.publishLocked()

	log := c.logger.With("submission_id", req.ID.String(), "language", languageTag)
	log.Info("submission started", "kind", inputKind(in))

	resp, err := c.solver.Solve(ctx, req, func(p Progress) { c.progress(seq, p) })
	if err != nil {
		se := asSubmitError(err)
		log.Warn("submission failed", "error", se)
		c.finish(seq, func() {
			c.state = State{Phase: Failed, Message: c.failureMessage(se)}
		})
		return se
	}

	if strings.TrimSpace(resp.Solution) == "" {
		if c.lenientEmpty {
			log.Warn("service returned no solution")
			c.finish(seq, func() { c.state = State{Phase: Idle} })
			return nil
		}
		se := &SubmitError{Kind: ErrMalformedResponse, Err: ErrEmptySolution}
		log.Warn("submission failed", "error", se)
		c.finish(seq, func() {
			c.state = State{Phase: Failed, Message: c.loc.T(KeyEmptySolution)}
		})
		return se
	}

	c.complete(seq)
	c.finish(seq, func() {
		c.sel.Clear()
		c.state = State{Phase: Succeeded, Solution: resp.Solution}
	})
	log.Info("submission succeeded", "solution_len", len(resp.Solution))
	return nil
}

func (c *Controller) progress(seq uint64, p Progress) {
	c.mu.Lock()
	if c.seq != seq || c.state.Phase != InProgress {
		c.mu.Unlock()
		return
	}
	pct := percent(p)
	if pct <= c.state.Percent {
		c.mu.Unlock()
		return
	}
	c.state.Percent = pct
	c.publishLocked()
}

// complete raises the percent to 100 if the transport never reported the
// upload as complete.
func (c *Controller) complete(seq uint64) {
	c.progress(seq, Progress{Complete: true})
}

func (c *Controller) finish(seq uint64, apply func()) {
	c.mu.Lock()
	if c.seq != seq {
		c.mu.Unlock()
		return
	}
	apply()
	c.publishLocked()
}

func percent(p Progress) int {
	if p.Complete {
		return 100
	}
	total := p.Total
	if total <= 0 {
		total = 1
	}
	pct := int(p.Sent * 100 / total)
	if pct > 99 {
		pct = 99
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}

func (c *Controller) failureMessage(se *SubmitError) string {
	if m := strings.TrimSpace(se.Message); m != "" {
		return m
	}
	return c.loc.T(KeyError)
}

func (c *Controller) canSubmitLocked() bool {
	return !c.sel.Input().IsEmpty() && c.state.Phase != InProgress
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:     c.state,
		Input:     c.sel.Input(),
		CanSubmit: c.canSubmitLocked(),
	}
}

// publishLocked must be called with c.mu held and releases it. The ticket
// taken under mu fixes the delivery order; observers run with no lock held.
func (c *Controller) publishLocked() {
	snap := c.snapshotLocked()
	obs := make([]observer, len(c.observers))
	copy(obs, c.observers)
	ticket := c.issued
	c.issued++
	c.mu.Unlock()

	c.notifyMu.Lock()
	for c.delivered != ticket {
		c.turn.Wait()
	}
	c.notifyMu.Unlock()
	defer func() {
		c.notifyMu.Lock()
		c.delivered++
		c.turn.Broadcast()
		c.notifyMu.Unlock()
	}()

	for _, o := range obs {
		o.fn(snap)
	}
}

func inputKind(in Input) string {
	if _, ok := in.File(); ok {
		return "file"
	}
	return "text"
}
