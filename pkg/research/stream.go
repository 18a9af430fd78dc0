package research

import (
	"context"
	"errors"
	"iter"
	"strings"
)

type EventType string

const (
	EventStart       EventType = "start"
	EventNodeStart   EventType = "node_start"
	EventNodeOutput  EventType = "node_output"
	EventNodeEnd     EventType = "node_end"
	EventIteration   EventType = "iteration"
	EventReportStart EventType = "report_start"
	EventReportChunk EventType = "report_chunk"
	EventComplete    EventType = "complete"
	EventError       EventType = "error"
)

// Event is one item of the progress stream. Data is one of the payload
// types below and is what gets serialized on the wire.
type Event struct {
	Type EventType
	Data any
}

type StartData struct {
	Topic string `json:"topic"`
	Mode  Mode   `json:"mode"`
}

type NodeData struct {
	Node string `json:"node"`
}

type IterationData struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

type ReportChunkData struct {
	Content string `json:"content"`
}

type CompleteData struct {
	SourcesCount int `json:"sources_count"`
	Iterations   int `json:"iterations"`
}

type ErrorData struct {
	Message string `json:"message"`
}

// errConsumerGone stops the loop once the consumer stopped iterating.
var errConsumerGone = errors.New("event consumer stopped")

// emitter turns stage notifications into events.
type emitter struct {
	yield func(Event) bool
}

func (em *emitter) send(t EventType, data any) error {
	if !em.yield(Event{Type: t, Data: data}) {
		return errConsumerGone
	}
	return nil
}

func (em *emitter) StageStarted(s Stage) error {
	return em.send(EventNodeStart, NodeData{Node: string(s)})
}

func (em *emitter) StageFinished(s Stage, u Update, rc *ResearchContext) error {
	if u.Messages.Set {
		for _, m := range u.Messages.Value {
			if err := em.send(EventNodeOutput, m); err != nil {
				return err
			}
		}
	}
	if u.Iteration.Set {
		if err := em.send(EventIteration, IterationData{Current: rc.Iteration, Max: rc.MaxIterations}); err != nil {
			return err
		}
	}
	return em.send(EventNodeEnd, NodeData{Node: string(s)})
}

// Events runs the research loop for rc and then streams the report. The
// sequence ends after complete or after a single error event. Stopping the
// iteration early cancels whatever is in flight.
func (e *ResearchEngine) Events(ctx context.Context, rc *ResearchContext) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		em := &emitter{yield: yield}
		fail := func(err error) {
			if errors.Is(err, errConsumerGone) {
				return
			}
			e.Logger.Error("Research failed", "topic", rc.Topic, "error", err)
			yield(Event{Type: EventError, Data: ErrorData{Message: err.Error()}})
		}

		if err := em.send(EventStart, StartData{Topic: rc.Topic, Mode: rc.Mode}); err != nil {
			return
		}
		if err := e.Run(ctx, rc, em); err != nil {
			fail(err)
			return
		}

		if err := em.send(EventReportStart, struct{}{}); err != nil {
			return
		}
		var report strings.Builder
		for chunk, err := range e.WriteReport(ctx, rc) {
			if err != nil {
				fail(err)
				return
			}
			report.WriteString(chunk)
			if err := em.send(EventReportChunk, ReportChunkData{Content: chunk}); err != nil {
				return
			}
		}

		rc.Apply(Update{Report: Some(report.String())})
		if e.OnStateUpdate != nil {
			e.OnStateUpdate(rc.Snapshot())
		}
		e.Logger.Info("Research complete", "sources", len(rc.Sources), "iterations", rc.Iteration)
		em.send(EventComplete, CompleteData{SourcesCount: len(rc.Sources), Iterations: rc.Iteration})
	}
}

// Stream validates req and returns its event sequence. An invalid request
// yields a single error event.
func (e *ResearchEngine) Stream(ctx context.Context, req Request) iter.Seq[Event] {
	rc, err := NewContext(req, e.Defaults)
	if err != nil {
		return func(yield func(Event) bool) {
			yield(Event{Type: EventError, Data: ErrorData{Message: err.Error()}})
		}
	}
	return e.Events(ctx, rc)
}
