package monitor

import (
	"sync"

	"github.com/banshee-data/gapfollow/internal/controller"
	"github.com/banshee-data/gapfollow/internal/followgap"
)

// Latest keeps the most recent cycle and the most recent decision. It is a
// controller.Observer; readers get copies.
type Latest struct {
	mu       sync.RWMutex
	cycle    controller.Cycle
	decision *followgap.Decision
	seen     bool
}

// ObserveCycle implements controller.Observer.
func (l *Latest) ObserveCycle(c controller.Cycle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cycle = c
	l.seen = true
	if c.Decision != nil {
		l.decision = c.Decision
	}
}

// Decision returns the last decision that produced a command.
func (l *Latest) Decision() (followgap.Decision, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.decision == nil {
		return followgap.Decision{}, false
	}
	return *l.decision, true
}

// Cycle returns the last cycle of any status.
func (l *Latest) Cycle() (controller.Cycle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cycle, l.seen
}
