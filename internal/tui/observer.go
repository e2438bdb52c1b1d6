package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/banshee-data/gapfollow/internal/controller"
)

// Forwarder is a controller.Observer that queues cycles for the view.
// ObserveCycle never blocks; when the view falls behind, cycles are dropped.
// Register it with the driver first, then hand it to Run.
type Forwarder struct {
	ch chan controller.Cycle
}

// NewForwarder returns a Forwarder with the given queue size.
func NewForwarder(buffer int) *Forwarder {
	if buffer <= 0 {
		buffer = 64
	}
	return &Forwarder{ch: make(chan controller.Cycle, buffer)}
}

// ObserveCycle implements controller.Observer.
func (f *Forwarder) ObserveCycle(c controller.Cycle) {
	select {
	case f.ch <- c:
	default:
	}
}

// forward delivers queued cycles through send until ctx is done.
func (f *Forwarder) forward(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-f.ch:
			send(cycleMsg(c))
		}
	}
}

// Run shows the view until the user quits or ctx is cancelled.
func Run(ctx context.Context, fwd *Forwarder, m *Model, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(m, opts...)
	go fwd.forward(ctx, p.Send)

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
