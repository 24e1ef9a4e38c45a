// Package session hosts the live game: it owns the current snapshot, applies
// actions one at a time and drives the periodic tick and autosave sources.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"idlegame/engine/internal/clock"
	"idlegame/engine/internal/commands"
	"idlegame/engine/internal/domain"
	"idlegame/engine/internal/engine"
	"idlegame/engine/internal/logging"
)

var (
	// ErrQueueFull is returned by Dispatch when the action queue has no room.
	ErrQueueFull = errors.New("session: action queue full")
	// ErrClosed is returned once the session has shut down.
	ErrClosed = errors.New("session: closed")
)

// Update is delivered to observers after every applied action.
type Update struct {
	Action    string
	CommandID string
	State     domain.State
	At        time.Time
}

// Options tunes a Session. Zero values fall back to the defaults below.
type Options struct {
	TickInterval     time.Duration
	AutosaveInterval time.Duration
	QueueSize        int
	// SaveOnClose performs one final Save while shutting down.
	SaveOnClose bool
	// DisableAutosave skips the autosave source, for ephemeral games.
	DisableAutosave bool
	// Hooks run synchronously on the loop goroutine after each action.
	Hooks []func(Update)
}

const (
	defaultTickInterval     = time.Second
	defaultAutosaveInterval = 5 * time.Second
	defaultQueueSize        = 64
)

type envelope struct {
	cmd        commands.Command
	timer      bool
	generation uint64
	reply      chan domain.State
}

// Session serialises every action through a single goroutine.
type Session struct {
	machine *engine.Machine
	clock   clock.Clock
	sched   clock.Scheduler
	log     *logging.Logger
	opts    Options

	queue chan envelope

	mu      sync.RWMutex
	current domain.State

	// generation and the subscriptions are owned by the loop goroutine once
	// Start returns.
	generation uint64
	tickSub    clock.Subscription
	saveSub    clock.Subscription

	obsMu     sync.Mutex
	nextObs   int
	observers map[int]chan Update

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// New prepares a session holding a fresh game. Call Start to begin processing.
func New(machine *engine.Machine, clk clock.Clock, sched clock.Scheduler, logger *logging.Logger, opts Options) *Session {
	if clk == nil {
		clk = clock.Real{}
	}
	if sched == nil {
		sched = clock.TickerScheduler{}
	}
	if logger == nil {
		logger = logging.L()
	}
	if machine == nil {
		machine = engine.NewMachine(nil, clk, logger)
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.AutosaveInterval <= 0 {
		opts.AutosaveInterval = defaultAutosaveInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Session{
		machine:   machine,
		clock:     clk,
		sched:     sched,
		log:       logger,
		opts:      opts,
		queue:     make(chan envelope, opts.QueueSize),
		current:   machine.Fresh(),
		observers: make(map[int]chan Update),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start creates the periodic sources and launches the action loop.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		s.startSources()
		go s.loop()
	})
}

// Snapshot returns the current game state.
func (s *Session) Snapshot() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Clock exposes the session's time source so views age consistently.
func (s *Session) Clock() clock.Clock {
	return s.clock
}

// Dispatch enqueues cmd without waiting. A full queue drops the action.
func (s *Session) Dispatch(cmd commands.Command) error {
	return s.enqueue(envelope{cmd: cmd})
}

// Do enqueues cmd and waits for the snapshot it produced.
func (s *Session) Do(ctx context.Context, cmd commands.Command) (domain.State, error) {
	env := envelope{cmd: cmd, reply: make(chan domain.State, 1)}
	select {
	case <-s.stop:
		return domain.State{}, ErrClosed
	default:
	}
	select {
	case s.queue <- env:
	case <-s.stop:
		return domain.State{}, ErrClosed
	case <-ctx.Done():
		return domain.State{}, ctx.Err()
	}
	select {
	case st := <-env.reply:
		return st, nil
	case <-s.done:
		//1.- The loop drains the queue before exiting, so the reply may still be waiting.
		select {
		case st := <-env.reply:
			return st, nil
		default:
			return domain.State{}, ErrClosed
		}
	case <-ctx.Done():
		return domain.State{}, ctx.Err()
	}
}

// Subscribe registers an observer. Updates are dropped for an observer whose
// buffer is full. The returned func unregisters and closes the channel.
func (s *Session) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Update, buffer)
	s.obsMu.Lock()
	select {
	case <-s.done:
		s.obsMu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	s.nextObs++
	id := s.nextObs
	s.observers[id] = ch
	s.obsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.obsMu.Lock()
			defer s.obsMu.Unlock()
			if existing, ok := s.observers[id]; ok {
				delete(s.observers, id)
				close(existing)
			}
		})
	}
}

// Close stops the periodic sources, applies queued actions, performs the final
// save when configured and waits for the loop to exit or ctx to expire.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.stop)
		neverStarted := false
		s.startOnce.Do(func() { neverStarted = true })
		if neverStarted {
			//1.- There is no loop to wait for.
			s.finish()
		}
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) enqueue(env envelope) error {
	select {
	case <-s.stop:
		return ErrClosed
	default:
	}
	select {
	case s.queue <- env:
		return nil
	default:
		name := "<nil>"
		if env.cmd != nil {
			name = env.cmd.Name()
		}
		s.log.Warn("action queue full, dropping action", logging.String("action", name), logging.Bool("timer", env.timer))
		return ErrQueueFull
	}
}

func (s *Session) startSources() {
	//1.- Each callback captures the generation it belongs to so stale firings are recognisable.
	gen := s.generation
	s.tickSub = s.sched.Every(s.opts.TickInterval, func() {
		_ = s.enqueue(envelope{cmd: commands.Tick{}, timer: true, generation: gen})
	})
	if !s.opts.DisableAutosave {
		s.saveSub = s.sched.Every(s.opts.AutosaveInterval, func() {
			_ = s.enqueue(envelope{cmd: commands.Save{ID: "autosave"}, timer: true, generation: gen})
		})
	}
}

func (s *Session) stopSources() {
	if s.tickSub != nil {
		s.tickSub.Cancel()
		s.tickSub = nil
	}
	if s.saveSub != nil {
		s.saveSub.Cancel()
		s.saveSub = nil
	}
}

func (s *Session) restartSources() {
	s.stopSources()
	s.generation++
	s.startSources()
}

func (s *Session) loop() {
	defer s.finish()
	for {
		select {
		case env := <-s.queue:
			s.process(env)
		case <-s.stop:
			s.stopSources()
			//1.- Apply whatever was accepted before shutdown began.
			for {
				select {
				case env := <-s.queue:
					s.process(env)
				default:
					if s.opts.SaveOnClose {
						s.process(envelope{cmd: commands.Save{ID: "shutdown"}})
					}
					return
				}
			}
		}
	}
}

func (s *Session) process(env envelope) {
	if env.timer && env.generation != s.generation {
		s.log.Debug("dropping stale timer action", logging.String("action", env.cmd.Name()), logging.Uint64("generation", env.generation))
		return
	}

	st := s.Snapshot()
	next, ok := s.machine.Transition(st, env.cmd)
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	//1.- Reply last so a caller of Do observes every side effect of its action.
	if env.reply != nil {
		defer func() { env.reply <- next }()
	}
	if env.cmd == nil {
		return
	}

	//2.- A successful Load replaces the game, so the periodic sources start over.
	if ok && env.cmd.Name() == commands.NameLoad {
		select {
		case <-s.stop:
		default:
			s.restartSources()
		}
	}

	update := Update{
		Action:    env.cmd.Name(),
		CommandID: env.cmd.CommandID(),
		State:     next,
		At:        s.clock.Now(),
	}
	for _, hook := range s.opts.Hooks {
		if hook != nil {
			hook(update)
		}
	}
	s.notify(update)
}

func (s *Session) notify(update Update) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for id, ch := range s.observers {
		select {
		case ch <- update:
		default:
			s.log.Debug("observer lagging, dropping update", logging.Int("observer", id), logging.String("action", update.Action))
		}
	}
}

func (s *Session) finish() {
	s.obsMu.Lock()
	for id, ch := range s.observers {
		delete(s.observers, id)
		close(ch)
	}
	close(s.done)
	s.obsMu.Unlock()
}
