package library

import (
	"fmt"
	"sync"

	"github.com/hangar-launcher/hangar/internal/errors"
	"github.com/hangar-launcher/hangar/internal/relay"
)

// Controller owns the status of a single entity. Every transition goes
// through it, so at most one operation holds a non-idle status at a time
// and each started operation ends in exactly one terminal event.
type Controller struct {
	app string
	hub *relay.Hub

	mu     sync.Mutex
	status relay.Status
}

func newController(app string, hub *relay.Hub) *Controller {
	return &Controller{app: app, hub: hub, status: relay.StatusIdle}
}

// App returns the entity key this controller owns.
func (c *Controller) App() string { return c.app }

// Status returns the current status.
func (c *Controller) Status() relay.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// begin claims the entity for an operation. It fails with
// ErrOperationInProgress when the entity is not at rest.
func (c *Controller) begin(next relay.Status) error {
	c.mu.Lock()
	if !c.status.AtRest() {
		cur := c.status
		c.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", errors.ErrOperationInProgress, c.app, cur)
	}
	c.status = next
	c.mu.Unlock()

	c.hub.Publish(relay.NewStatusEvent(c.app, next))
	return nil
}

// transition moves a claimed entity to another non-terminal status.
// Launch uses it for Launching to Running.
func (c *Controller) transition(next relay.Status) {
	c.mu.Lock()
	c.status = next
	c.mu.Unlock()

	c.hub.Publish(relay.NewStatusEvent(c.app, next))
}

// end releases the entity and publishes the operation's single terminal
// event. opStatus names the status the result belongs to, not the status
// after it; the entity itself returns to idle.
func (c *Controller) end(opStatus relay.Status, outcome relay.Outcome) {
	c.mu.Lock()
	c.status = relay.StatusIdle
	c.mu.Unlock()

	c.hub.Publish(relay.NewResultEvent(c.app, opStatus, outcome))
}
