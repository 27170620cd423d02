package training

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval is the delay between two status polls of a tracked job.
const DefaultInterval = 2 * time.Second

// UpdateFunc receives the job after every poll of a tracked job. On a failed
// poll job is the last known record and err is set.
type UpdateFunc func(job *Job, err error)

type record struct {
	// poll serialises status fetches for one job
	poll sync.Mutex
	job  Job
}

// Tracker keeps the last known state of submitted jobs and polls the service
// for updates. Completed and failed are final: once a record reaches either
// state it is never fetched or overwritten again.
type Tracker struct {
	svc      Service
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	jobs    map[string]*record
	order   []string
	handles map[string]*Handle
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithInterval sets the polling period; non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithLogger sets the logger used for poll and lifecycle events.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// NewTracker returns a tracker backed by svc.
func NewTracker(svc Service, opts ...Option) *Tracker {
	t := &Tracker{
		svc:      svc,
		interval: DefaultInterval,
		log:      zerolog.Nop(),
		jobs:     make(map[string]*record),
		handles:  make(map[string]*Handle),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Interval returns the polling period.
func (t *Tracker) Interval() time.Duration { return t.interval }

// Submit validates cfg and asks the service to train on dataset. A record in
// pending state is created only when the service accepted the job.
func (t *Tracker) Submit(ctx context.Context, cfg Config, dataset string) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", &SubmissionError{Err: err}
	}
	if strings.TrimSpace(dataset) == "" {
		return "", &SubmissionError{Err: errors.New("no dataset selected")}
	}
	id, err := t.svc.Submit(ctx, cfg, dataset)
	if err != nil {
		t.log.Warn().Err(err).Str("model", cfg.ModelName).Str("dataset", dataset).Msg("training submission failed")
		return "", &SubmissionError{Err: err}
	}
	if id == "" {
		return "", &SubmissionError{Err: errors.New("service returned an empty job id")}
	}
	t.add(id, Job{JobID: id, Status: StatusPending, Message: "submitted"})
	t.log.Info().Str("job_id", id).Str("model", cfg.ModelName).Str("dataset", dataset).Msg("training job submitted")
	return id, nil
}

// Attach registers a job submitted elsewhere so it can be polled. It is a no-op
// when the id is already known.
func (t *Tracker) Attach(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty id", ErrUnknownJob)
	}
	t.add(id, Job{JobID: id, Status: StatusPending})
	return nil
}

func (t *Tracker) add(id string, job Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.jobs[id]; ok {
		return
	}
	t.jobs[id] = &record{job: job}
	t.order = append(t.order, id)
}

func (t *Tracker) lookup(id string) *record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.jobs[id]
}

func (t *Tracker) snapshot(rec *record) Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return rec.job.clone()
}

// Poll fetches the job's state once and stores it. A terminal record is
// returned as is without contacting the service. A failed fetch leaves the
// record untouched and returns a *PollTransportError. A done ctx returns its
// error without fetching.
func (t *Tracker) Poll(ctx context.Context, id string) (*Job, error) {
	rec := t.lookup(id)
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	rec.poll.Lock()
	defer rec.poll.Unlock()
	// a poller stopped while waiting for the lock must not fetch
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cur := t.snapshot(rec)
	if cur.Status.Terminal() {
		return &cur, nil
	}
	got, err := t.svc.Status(ctx, id)
	if err == nil && !got.Status.Valid() {
		err = fmt.Errorf("%w: %q", ErrUnexpectedStatus, got.Status)
	}
	if err != nil {
		t.log.Debug().Err(err).Str("job_id", id).Str("status", string(cur.Status)).Msg("status poll failed")
		return nil, &PollTransportError{JobID: id, Err: err}
	}
	next := got.clone()
	next.JobID = id
	if next.Progress < 0 {
		next.Progress = 0
	} else if next.Progress > 1 {
		next.Progress = 1
	}

	t.mu.Lock()
	rec.job = next
	t.mu.Unlock()

	ev := t.log.Debug()
	if next.Status.Terminal() {
		ev = t.log.Info()
	}
	ev.Str("job_id", id).Str("status", string(next.Status)).Float64("progress", next.Progress).Msg("training job update")
	out := next.clone()
	return &out, nil
}

// Track starts a background poller for id: one poll right away, then one per
// interval until the job is terminal, the handle is stopped or ctx is done.
// Tracking an id that already has a running poller returns that poller.
func (t *Tracker) Track(ctx context.Context, id string, onUpdate UpdateFunc) (*Handle, error) {
	if t.lookup(id) == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	t.mu.Lock()
	if h, ok := t.handles[id]; ok {
		t.mu.Unlock()
		return h, nil
	}
	pctx, cancel := context.WithCancel(ctx)
	h := &Handle{id: id, cancel: cancel, done: make(chan struct{})}
	t.handles[id] = h
	t.mu.Unlock()

	go t.run(pctx, h, onUpdate)
	return h, nil
}

func (t *Tracker) run(ctx context.Context, h *Handle, onUpdate UpdateFunc) {
	defer close(h.done)
	defer t.release(h)
	defer h.cancel()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			t.stopped(h, ctx.Err())
			return
		}
		job, err := t.Poll(ctx, h.id)
		if ctx.Err() != nil {
			t.stopped(h, ctx.Err())
			return
		}
		if err != nil {
			last := t.snapshot(t.lookup(h.id))
			job = &last
		}
		h.set(job, err)
		if onUpdate != nil {
			onUpdate(job, err)
		}
		if err == nil && job.Status.Terminal() {
			return
		}
		var pte *PollTransportError
		if errors.As(err, &pte) && !pte.Temporary() {
			t.log.Warn().Err(err).Str("job_id", h.id).Msg("tracking abandoned")
			return
		}
		select {
		case <-ctx.Done():
			t.stopped(h, ctx.Err())
			return
		case <-ticker.C:
		}
	}
}

func (t *Tracker) stopped(h *Handle, err error) {
	var last *Job
	if rec := t.lookup(h.id); rec != nil {
		j := t.snapshot(rec)
		last = &j
	}
	h.set(last, err)
	t.log.Debug().Str("job_id", h.id).Msg("tracking stopped")
}

func (t *Tracker) release(h *Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handles[h.id] == h {
		delete(t.handles, h.id)
	}
}

// Cancel stops local tracking of id. The remote job keeps running. It reports
// whether a poller was active.
func (t *Tracker) Cancel(id string) bool {
	t.mu.Lock()
	h := t.handles[id]
	t.mu.Unlock()
	if h == nil {
		return false
	}
	h.Stop()
	return true
}

// Job returns a snapshot of the record for id.
func (t *Tracker) Job(id string) (*Job, bool) {
	rec := t.lookup(id)
	if rec == nil {
		return nil, false
	}
	j := t.snapshot(rec)
	return &j, true
}

// Jobs returns snapshots of every record in submission order.
func (t *Tracker) Jobs() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Job, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.jobs[id].job.clone())
	}
	return out
}

// Close stops every poller and waits for them to exit.
func (t *Tracker) Close() {
	t.mu.Lock()
	hs := make([]*Handle, 0, len(t.handles))
	for _, h := range t.handles {
		hs = append(hs, h)
	}
	t.mu.Unlock()
	for _, h := range hs {
		h.Stop()
		<-h.Done()
	}
}

// Wait tracks id and blocks until the job is terminal or ctx is done.
func (t *Tracker) Wait(ctx context.Context, id string, onUpdate UpdateFunc) (*Job, error) {
	h, err := t.Track(ctx, id, onUpdate)
	if err != nil {
		return nil, err
	}
	select {
	case <-h.Done():
		return h.Wait()
	case <-ctx.Done():
		h.Stop()
		<-h.Done()
		return h.Wait()
	}
}

// Handle controls one background poller.
type Handle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	last *Job
	err  error
}

// JobID returns the tracked job id.
func (h *Handle) JobID() string { return h.id }

// Stop cancels the poller; no poll is issued after it returns.
func (h *Handle) Stop() { h.cancel() }

// Done is closed once the poller has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the poller exits and returns the last job seen together
// with the last poll error, or the context error when it was stopped.
func (h *Handle) Wait() (*Job, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.err
}

func (h *Handle) set(job *Job, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = job
	h.err = err
}
