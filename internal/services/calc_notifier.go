package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/orionsky/obsdb-backend/internal/logger"
	"github.com/orionsky/obsdb-backend/internal/sse"
	"github.com/orionsky/obsdb-backend/internal/sse/bus"
	"github.com/orionsky/obsdb-backend/internal/types"
)

// CalcNotifier announces calc-entry state transitions. The worker pool
// listens for pending work this way; UI subscribers learn when results land.
type CalcNotifier interface {
	ObscalcStateChanged(programID, observationID uuid.UUID, oldState, newState types.CalcState, op string)
	BlindOffsetStateChanged(programID, observationID uuid.UUID, oldState, newState types.CalcState, op string)
}

// EditNotifier announces structural and property edits for live-update
// subscriptions.
type EditNotifier interface {
	GroupEdit(programID, groupID uuid.UUID, op string)
	ObservationEdit(programID, observationID uuid.UUID, op string)
	TargetEdit(programID, targetID uuid.UUID, op string)
}

type busNotifier struct {
	log *logger.Logger
	bus bus.Bus
}

func NewBusNotifier(baseLog *logger.Logger, b bus.Bus) *busNotifier {
	return &busNotifier{
		log: baseLog.With("service", "BusNotifier"),
		bus: b,
	}
}

func (n *busNotifier) publish(msg sse.SSEMessage) {
	if n == nil || n.bus == nil {
		return
	}
	if err := n.bus.Publish(context.Background(), msg); err != nil {
		n.log.Warn("bus publish failed", "error", err, "event", msg.Event, "channel", msg.Channel)
	}
}

func (n *busNotifier) ObscalcStateChanged(programID, observationID uuid.UUID, oldState, newState types.CalcState, op string) {
	n.publish(sse.SSEMessage{
		Channel: programID.String(),
		Event:   sse.SSEEventObscalcStateChanged,
		Data: map[string]any{
			"observation_id": observationID,
			"program_id":     programID,
			"old_state":      oldState,
			"new_state":      newState,
			"op":             op,
		},
	})
}

func (n *busNotifier) BlindOffsetStateChanged(programID, observationID uuid.UUID, oldState, newState types.CalcState, op string) {
	n.publish(sse.SSEMessage{
		Channel: programID.String(),
		Event:   sse.SSEEventBlindOffsetStateChanged,
		Data: map[string]any{
			"observation_id": observationID,
			"program_id":     programID,
			"old_state":      oldState,
			"new_state":      newState,
			"op":             op,
		},
	})
}

func (n *busNotifier) GroupEdit(programID, groupID uuid.UUID, op string) {
	n.publish(sse.SSEMessage{
		Channel: programID.String(),
		Event:   sse.SSEEventGroupEdit,
		Data: map[string]any{
			"group_id":   groupID,
			"program_id": programID,
			"op":         op,
		},
	})
}

func (n *busNotifier) ObservationEdit(programID, observationID uuid.UUID, op string) {
	n.publish(sse.SSEMessage{
		Channel: programID.String(),
		Event:   sse.SSEEventObservationEdit,
		Data: map[string]any{
			"observation_id": observationID,
			"program_id":     programID,
			"op":             op,
		},
	})
}

func (n *busNotifier) TargetEdit(programID, targetID uuid.UUID, op string) {
	n.publish(sse.SSEMessage{
		Channel: programID.String(),
		Event:   sse.SSEEventTargetEdit,
		Data: map[string]any{
			"target_id":  targetID,
			"program_id": programID,
			"op":         op,
		},
	})
}
