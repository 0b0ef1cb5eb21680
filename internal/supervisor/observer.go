package supervisor

import (
	"context"

	"go.olrik.dev/amman/internal/relay"
)

// Observer is a read-only view of a Supervisor. It is a plain value and can
// be copied freely; it cannot start or kill anything.
type Observer struct {
	client  *relay.Client
	pid     int
	started bool
	owned   bool
}

// NewObserver creates an observer that knows nothing yet. Call Refresh.
func NewObserver(client *relay.Client) Observer {
	return Observer{client: client}
}

func (o Observer) Started() bool { return o.started }
func (o Observer) Pid() int      { return o.pid }
func (o Observer) Owned() bool   { return o.owned }

// Refresh asks the relay for the running validator. A view of an owned
// validator is returned unchanged since only the owning Supervisor can
// tell when its process exits.
func (o Observer) Refresh(ctx context.Context) Observer {
	if o.owned {
		return o
	}
	pid, err := o.client.ValidatorPid(ctx)
	if err != nil || pid <= 0 {
		return Observer{client: o.client}
	}
	return Observer{client: o.client, pid: pid, started: true}
}
