package game

import "github.com/Ivantech123/neontrill/internal/model"

// EventType tags a registry state change.
type EventType string

const (
	EventGameCreated  EventType = "game:created"
	EventPlayerJoined EventType = "game:playerJoined"
	EventGameStarting EventType = "game:starting"
	EventGameResult   EventType = "game:result"
)

// Event is one state change published by the registry. Game is always set;
// Player accompanies joins, Result accompanies settlements.
type Event struct {
	Type   EventType
	Game   model.GameSummary
	Player *model.Player
	Result *model.GameResult
}
