package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hangar-launcher/hangar/internal/relay"
)

// eventBacklog bounds how many events queue between the hub and the view.
const eventBacklog = 256

// eventMsg wraps a relay event for the bubbletea runtime.
type eventMsg struct {
	ev relay.Event
}

// Forward attaches a wildcard observer and bridges every relay event into
// the returned channel. Sends never block the publisher: when the buffer
// is full the oldest event is dropped, same as the hub's keyed streams, so
// the newest event (including the terminal one) always lands. The returned
// func detaches the observer.
func Forward(hub *relay.Hub) (<-chan relay.Event, func()) {
	ch := make(chan relay.Event, eventBacklog)
	detach := hub.Observe(func(ev relay.Event) {
		for {
			select {
			case ch <- ev:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})
	return ch, detach
}

// listen waits for the next bridged event. A nil channel yields no
// command; tests drive Update directly instead.
func listen(events <-chan relay.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		return eventMsg{ev: <-events}
	}
}

// Run drives a progress view until it quits. The observer is attached
// before start runs, so events the operation publishes while beginning are
// buffered rather than lost; a start error is returned without ever
// rendering. Run reports the awaited entity's outcome when that terminal
// event arrived before the view closed; the caller keeps waiting on the
// hub otherwise, since quitting the view does not cancel the operation.
func Run(hub *relay.Hub, cfg Config, start func() error) (relay.Outcome, bool, error) {
	events, detach := Forward(hub)
	defer detach()

	if start != nil {
		if err := start(); err != nil {
			return relay.Outcome{}, false, err
		}
	}

	p := tea.NewProgram(NewModel(cfg, events))
	final, err := p.Run()
	if err != nil {
		return relay.Outcome{}, false, err
	}
	m, ok := final.(Model)
	if !ok {
		return relay.Outcome{}, false, nil
	}
	outcome, done := m.AwaitedOutcome()
	return outcome, done, nil
}
