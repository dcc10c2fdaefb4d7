package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Manager runs cleanup hooks when a command finishes or is interrupted
type Manager struct {
	hooks   []hook
	mu      sync.Mutex
	timeout time.Duration
	once    sync.Once
	err     error
}

type hook struct {
	name string
	fn   func(context.Context) error
}

// New creates a manager whose hooks share one timeout
func New(timeout time.Duration) *Manager {
	return &Manager{timeout: timeout}
}

// Register adds a named hook. Hooks run in reverse order (LIFO)
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// NotifyContext returns a context cancelled on SIGINT or SIGTERM, so a job
// being waited for stops polling when the user interrupts the command.
func (m *Manager) NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Shutdown runs every hook once. Later calls return the first result.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		m.mu.Lock()
		hooks := m.hooks
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i].fn(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", hooks[i].name, err))
			}
		}
		m.err = errors.Join(errs...)
	})
	return m.err
}

// CloseResource creates a hook for an io.Closer
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(ctx context.Context) error {
		return closer.Close()
	}
}
