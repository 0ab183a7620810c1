package typing

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrRunnerStopped is returned by calls made after the runner's loop exited.
var ErrRunnerStopped = errors.New("runner stopped")

// Default runner timings.
const (
	DefaultDifficultyInterval = 20 * time.Second
	DefaultCallTimeout        = 5 * time.Second
)

// Persistence is the remote store behind a running game. Calls are made
// in the background and never block the simulation.
type Persistence interface {
	LoadLives(ctx context.Context) (int, error)
	ConsumeLife(ctx context.Context) (int, error)
	SaveScore(ctx context.Context, score, combo int) error
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Config             Config
	Vocabulary         *Vocabulary
	Seed               int64
	Store              Persistence
	Lives              int
	BestScore          int
	BestCombo          int
	DifficultyInterval time.Duration
	CallTimeout        time.Duration
}

// Runner drives a Session in real time. The session is owned by the Run
// goroutine; every other method hands work to it over a channel.
type Runner struct {
	session   *Session
	clock     *Clock
	store     Persistence
	timeout   time.Duration
	diffEvery time.Duration
	lastLives int

	cmds   chan func()
	frames chan Snapshot
	done   chan struct{}
	diff   *time.Ticker

	pending sync.WaitGroup
}

// NewRunner creates a runner. Call Run to start the loop.
func NewRunner(opts RunnerOptions) *Runner {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := New(opts.Config, opts.Vocabulary, rand.New(rand.NewSource(seed)))
	s.SetBest(opts.BestScore, opts.BestCombo)
	s.SyncLives(opts.Lives)

	r := &Runner{
		session:   s,
		clock:     NewClock(opts.Config.TickRate()),
		store:     opts.Store,
		timeout:   opts.CallTimeout,
		diffEvery: opts.DifficultyInterval,
		lastLives: max(opts.Lives, 0),
		cmds:      make(chan func(), 16),
		frames:    make(chan Snapshot, 1),
		done:      make(chan struct{}),
	}
	if r.timeout <= 0 {
		r.timeout = DefaultCallTimeout
	}
	if r.diffEvery <= 0 {
		r.diffEvery = DefaultDifficultyInterval
	}
	return r
}

// Frames delivers the latest snapshot after every change. Stale frames are
// replaced rather than queued.
func (r *Runner) Frames() <-chan Snapshot {
	return r.frames
}

// Run executes the game loop until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)

	ticker := time.NewTicker(r.clock.Interval())
	defer ticker.Stop()
	r.diff = time.NewTicker(r.diffEvery)
	defer r.diff.Stop()

	last := time.Now()
	r.publish()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case fn := <-r.cmds:
			fn()
			r.publish()

		case now := <-ticker.C:
			n := r.clock.Advance(now.Sub(last))
			last = now
			wasPlaying := r.session.State() == StatePlaying
			for i := 0; i < n; i++ {
				r.step(ctx)
			}
			// the frame that ends the game is published too
			if n > 0 && wasPlaying {
				r.publish()
			}

		case <-r.diff.C:
			r.session.RaiseDifficulty()
		}
	}
}

func (r *Runner) step(ctx context.Context) {
	res := r.session.Tick()
	switch {
	case res.LifeLost:
		r.lastLives = res.Lives
		log.Debug().Str("word", res.Bubble).Int("lives", res.Lives).Msg("Life lost")
		r.background(ctx, "consume life", func(ctx context.Context) error {
			_, err := r.store.ConsumeLife(ctx)
			return err
		})
	case res.GameOver:
		final := r.session.Final()
		log.Info().Int("score", final.Score).Int("max_combo", final.MaxCombo).Msg("Game over")
		r.saveScore(ctx, final)
	}
}

func (r *Runner) saveScore(ctx context.Context, res Result) {
	r.background(ctx, "save score", func(ctx context.Context) error {
		return r.store.SaveScore(ctx, res.Score, res.MaxCombo)
	})
}

// background runs a persistence call without waiting for it. Failures are
// logged and the local state stays authoritative.
func (r *Runner) background(ctx context.Context, op string, fn func(ctx context.Context) error) {
	if r.store == nil {
		return
	}
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		if err := fn(callCtx); err != nil {
			log.Warn().Err(err).Str("op", op).Msg("Persistence call failed")
		}
	}()
}

func (r *Runner) loadLives(ctx context.Context) {
	if r.store == nil {
		return
	}
	go func() {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		lives, err := r.store.LoadLives(callCtx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load lives, keeping last known value")
			return
		}
		r.post(func() {
			r.lastLives = lives
			r.session.SyncLives(lives)
		})
	}()
}

func (r *Runner) publish() {
	snap := r.session.Snapshot()
	select {
	case <-r.frames:
	default:
	}
	select {
	case r.frames <- snap:
	default:
	}
}

// Wait blocks until background persistence calls finish or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn for the loop without waiting.
func (r *Runner) post(fn func()) {
	select {
	case r.cmds <- fn:
	case <-r.done:
	}
}

// call runs fn on the loop and waits for it.
func (r *Runner) call(fn func()) error {
	finished := make(chan struct{})
	select {
	case r.cmds <- func() { fn(); close(finished) }:
	case <-r.done:
		return ErrRunnerStopped
	}
	select {
	case <-finished:
		return nil
	case <-r.done:
		return ErrRunnerStopped
	}
}

// Start begins a new run with the last known lives and refreshes lives
// from the store.
func (r *Runner) Start(ctx context.Context) error {
	return r.call(func() {
		r.session.Start(r.lastLives)
		r.clock.Reset()
		r.diff.Reset(r.diffEvery)
		r.loadLives(ctx)
	})
}

// Input submits typed text. It reports whether a bubble was popped.
func (r *Runner) Input(text string) (matched bool, points int, err error) {
	err = r.call(func() {
		matched, points = r.session.Input(text)
	})
	return matched, points, err
}

// Continue resumes after a purchase with at least one life.
func (r *Runner) Continue(lives int) (bool, error) {
	var ok bool
	err := r.call(func() {
		ok = r.session.Continue(lives)
		if ok {
			r.lastLives = r.session.Lives()
			r.clock.Reset()
			r.diff.Reset(r.diffEvery)
		}
	})
	return ok, err
}

// SyncLives applies lives pushed from the server. During play lives only go
// down, so a higher count is a late echo of a life already spent here and is
// ignored.
func (r *Runner) SyncLives(lives int) error {
	if lives < 0 {
		return nil
	}
	return r.call(func() {
		if r.session.State() == StatePlaying && lives > r.session.Lives() {
			log.Debug().Int("pushed", lives).Int("local", r.session.Lives()).Msg("Ignoring stale lives")
			return
		}
		r.lastLives = lives
		r.session.SyncLives(lives)
	})
}

// Exit returns to the menu and saves the run's score.
func (r *Runner) Exit(ctx context.Context) (Result, error) {
	var res Result
	err := r.call(func() {
		playing := r.session.State() != StateMenu
		res = r.session.Exit()
		if playing {
			r.saveScore(ctx, res)
		}
	})
	return res, err
}

// Snapshot returns the current state.
func (r *Runner) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := r.call(func() { snap = r.session.Snapshot() })
	return snap, err
}
