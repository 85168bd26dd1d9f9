package bus

import (
	"context"

	"github.com/orionsky/obsdb-backend/internal/sse"
)

// Bus fans calc-state and edit notifications out across processes: the API
// node that committed a change publishes, every node forwards into its local
// SSE hub, and the worker pool listens for pending work the same way.
type Bus interface {
	Publish(ctx context.Context, msg sse.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m sse.SSEMessage)) error
	Close() error
}
