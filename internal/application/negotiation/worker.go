package negotiation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
)

// ErrRegistryClosed is returned for commands arriving during shutdown.
var ErrRegistryClosed = errors.New("session registry closed")

type job struct {
	ctx    context.Context
	abort  context.Context
	cmd    Command
	expire bool
	reply  chan jobResult
}

type jobResult struct {
	out *Outcome
	err error
}

// worker is the single writer of one session. Jobs run in arrival order.
type worker struct {
	id       uuid.UUID
	machine  *machine
	session  *negotiation.Session
	snapshot atomic.Pointer[negotiation.Session]
	mailbox  chan job
	onRetire func(uuid.UUID, negotiation.Status)

	mu       sync.Mutex
	queued   int
	closed   bool
	closeErr error
	abortCtx context.Context
	abortFn  context.CancelFunc
	wake     chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

func newWorker(s *negotiation.Session, m *machine, mailboxSize int, onRetire func(uuid.UUID, negotiation.Status)) *worker {
	w := &worker{
		id:       s.ID,
		machine:  m,
		session:  s,
		mailbox:  make(chan job, mailboxSize),
		onRetire: onRetire,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	w.abortCtx, w.abortFn = context.WithCancel(context.Background())
	w.snapshot.Store(s.Clone())
	return w
}

// Snapshot returns the last committed state.
func (w *worker) Snapshot() *negotiation.Session {
	return w.snapshot.Load()
}

// abort cancels collaborator calls of every job queued so far.
func (w *worker) abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.abortFn()
	w.abortCtx, w.abortFn = context.WithCancel(context.Background())
}

func (w *worker) submit(ctx context.Context, cmd Command, expire bool) (*Outcome, error) {
	w.mu.Lock()
	if w.closed {
		err := w.closeErr
		w.mu.Unlock()
		return nil, err
	}
	w.queued++
	j := job{ctx: ctx, abort: w.abortCtx, cmd: cmd, expire: expire, reply: make(chan jobResult, 1)}
	w.mu.Unlock()

	select {
	case w.mailbox <- j:
	case <-ctx.Done():
		w.mu.Lock()
		w.queued--
		w.mu.Unlock()
		select {
		case w.wake <- struct{}{}:
		default:
		}
		return nil, ctx.Err()
	}
	select {
	case res := <-j.reply:
		return res.out, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *worker) run() {
	defer close(w.done)
	quit := w.quit
	for {
		select {
		case j := <-w.mailbox:
			res := w.process(j)
			exit := w.finish(true)
			j.reply <- res
			if exit {
				return
			}
		case <-w.wake:
			if w.finish(false) {
				return
			}
		case <-quit:
			quit = nil
			if w.finish(false) {
				return
			}
		}
	}
}

// finish settles bookkeeping after a job and reports whether the loop can exit.
func (w *worker) finish(processed bool) bool {
	w.mu.Lock()
	if processed {
		w.queued--
	}
	var retired negotiation.Status
	if !w.closed && w.session.Status.IsTerminal() {
		w.closed = true
		w.closeErr = terminalError(w.session.Status)
		retired = w.session.Status
	}
	exit := w.closed && w.queued == 0
	w.mu.Unlock()

	if retired != "" && w.onRetire != nil {
		w.onRetire(w.id, retired)
	}
	return exit
}

func (w *worker) process(j job) jobResult {
	if err := j.ctx.Err(); err != nil {
		return jobResult{err: err}
	}
	ctx, cancel := context.WithCancel(j.ctx)
	defer cancel()
	stop := context.AfterFunc(j.abort, cancel)
	defer stop()

	var (
		next *negotiation.Session
		out  *Outcome
		err  error
	)
	if j.expire {
		if w.session.Status.IsTerminal() || !w.session.IsExpired(w.machine.now()) {
			return jobResult{}
		}
		next, out, err = w.machine.expire(ctx, w.session)
	} else {
		next, out, err = w.machine.handle(ctx, w.session, j.cmd)
	}
	if next != w.session {
		w.session = next
		w.snapshot.Store(next.Clone())
	}
	return jobResult{out: out, err: err}
}

// stop refuses new jobs and lets queued ones drain.
func (w *worker) stop() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		w.closeErr = ErrRegistryClosed
	}
	w.mu.Unlock()
	w.quitOnce.Do(func() { close(w.quit) })
}
