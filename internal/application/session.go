package application

import (
	"context"
	"sync"

	"fluid-presale/internal/application/port"
)

// Compile-time check
var _ port.Session = (*Session)(nil)

// Session is one user's purchase orchestrator and raise tracker. Its timers live
// until Close.
type Session struct {
	id       string
	purchase *PurchaseService
	tracker  *ProgressTracker

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	onClose   func()
	done      chan struct{}
}

func newSession(parent context.Context, id string, purchase *PurchaseService, tracker *ProgressTracker, onClose func()) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		id:       id,
		purchase: purchase,
		tracker:  tracker,
		ctx:      ctx,
		cancel:   cancel,
		onClose:  onClose,
		done:     make(chan struct{}),
	}
}

// Start launches the progress timer.
func (s *Session) Start() {
	go func() {
		defer close(s.done)
		s.tracker.Run(s.ctx)
	}()
}

// Close stops the session's timers. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.purchase.Close()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

// Done is closed once the progress timer has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Context is cancelled when the session closes. Purchase attempts run under it.
func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Purchase() port.Purchase {
	return s.purchase
}

func (s *Session) Progress() port.Progress {
	return s.tracker
}
