package domain

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// TaskEvent names a lifecycle intent applied to a task.
type TaskEvent string

const (
	EventAccept   TaskEvent = "accept"
	EventComplete TaskEvent = "complete"
	EventSettle   TaskEvent = "settle"
)

// Untyped mirrors of the statuses and events for statekit.StateID / statekit.EventType.
const (
	stateOpen      = "open"
	stateAccepted  = "accepted"
	stateCompleted = "completed"

	eventAccept   = "accept"
	eventComplete = "complete"
	eventSettle   = "settle"
)

func init() {
	states := map[string]Status{
		stateOpen:      StatusOpen,
		stateAccepted:  StatusAccepted,
		stateCompleted: StatusCompleted,
	}
	for id, status := range states {
		if id != string(status) {
			panic(fmt.Sprintf("fsm state %q does not match status %q", id, status))
		}
	}
	events := map[string]TaskEvent{
		eventAccept:   EventAccept,
		eventComplete: EventComplete,
		eventSettle:   EventSettle,
	}
	for id, event := range events {
		if id != string(event) {
			panic(fmt.Sprintf("fsm event %q does not match task event %q", id, event))
		}
	}
}

type taskContext struct {
	TaskID string
}

// TaskMachine enforces open -> accepted -> completed with no way back.
type TaskMachine struct {
	interpreter *statekit.Interpreter[taskContext]
}

// NewTaskMachine builds a machine positioned at the task's current status.
func NewTaskMachine(taskID string, current Status) (*TaskMachine, error) {
	if !current.Valid() {
		return nil, Validation("unknown task status %q", current)
	}

	builder := statekit.NewMachine[taskContext]("hustle").
		WithInitial(statekit.StateID(current)).
		WithContext(taskContext{TaskID: taskID})

	builder.State(stateOpen).
		On(eventAccept).Target(stateAccepted).
		Done()

	builder.State(stateAccepted).
		On(eventComplete).Target(stateCompleted).
		On(eventSettle).Target(stateCompleted).
		Done()

	builder.State(stateCompleted).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build task machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	return &TaskMachine{interpreter: interpreter}, nil
}

// Fire applies the event and returns the resulting status.
func (m *TaskMachine) Fire(event TaskEvent) (Status, error) {
	before := m.Current()
	m.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	after := m.Current()
	if before == after {
		return before, InvalidTransition(before, event)
	}
	return after, nil
}

func (m *TaskMachine) Current() Status {
	return Status(m.interpreter.State().Value)
}

// NextStatus resolves the status a task moves to when the event is applied.
// Settling payment on a completed task keeps it completed.
func NextStatus(taskID string, current Status, event TaskEvent) (Status, error) {
	if event == EventSettle && current == StatusCompleted {
		return StatusCompleted, nil
	}
	machine, err := NewTaskMachine(taskID, current)
	if err != nil {
		return current, err
	}
	return machine.Fire(event)
}

// SourcesFor lists the statuses from which the event is legal.
func SourcesFor(event TaskEvent) []Status {
	switch event {
	case EventAccept:
		return []Status{StatusOpen}
	case EventComplete:
		return []Status{StatusAccepted}
	case EventSettle:
		return []Status{StatusAccepted, StatusCompleted}
	}
	return nil
}
