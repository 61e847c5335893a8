package orchestrator

import (
	"time"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/state"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/tasks"
)

// EventType classifies orchestrator lifecycle events.
type EventType int

const (
	EventRunStart    EventType = iota // loop started for an objective
	EventRunEnd                       // loop finished (drained, capped, stopped, cancelled)
	EventTaskStart                    // task dequeued and marked running
	EventTaskEnd                      // task completed or failed
	EventTasksAdded                   // initial or follow-up tasks enqueued
	EventLog                          // execution log entry appended
	EventStateChange                  // paused, resumed, stopped or reset
)

// Event carries data about an orchestrator lifecycle event.
type Event struct {
	Type      EventType
	Time      time.Time
	SessionID string
	Iteration int // current iteration (1-based)
	MaxIter   int // iteration cap for the run
	TaskID    string
	TaskTitle string
	Message   string         // human-readable message
	Entry     state.LogEntry // for EventLog
	Status    tasks.Status   // for EventTaskEnd: final status
	Duration  time.Duration  // for EventTaskEnd: executor latency
	Error     string         // error message if applicable
	State     State          // for EventStateChange and EventRunEnd
	Reason    string         // for EventRunEnd
	Count     int            // for EventTasksAdded
}

// EventHandler is a callback that receives orchestrator events.
// Handlers run synchronously while the orchestrator holds its lock and must
// not call back into the Orchestrator.
type EventHandler func(Event)
