// Package events publishes helper mutation outcomes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MutationEventType is the type of every mutation-result event.
	MutationEventType = "io.github.cpupower_gui.helper.mutation"
	// EventSource identifies the emitting service.
	EventSource = "cpupower-gui-helper"
	// JSONDataContentType is the content type of event payloads.
	JSONDataContentType = "application/json"
)

var (
	newEventID   = uuid.NewString
	marshalEvent = json.Marshal
)

// Event is a CloudEvents-shaped envelope.
type Event struct {
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`
}

// Mutation describes one completed privileged write call.
type Mutation struct {
	Method string
	CPU    int
	Args   map[string]string
	Caller string
	Result int
	At     time.Time
}

type mutationEventData struct {
	Method    string            `json:"method"`
	CPU       int               `json:"cpu"`
	Args      map[string]string `json:"args,omitempty"`
	Caller    string            `json:"caller,omitempty"`
	Result    int               `json:"result"`
	Succeeded bool              `json:"succeeded"`
}

// Publisher delivers events to interested listeners.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Noop discards every event.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Event) error {
	return nil
}

// NewMutationEvent builds the envelope for m.
func NewMutationEvent(m Mutation) (Event, error) {
	method := strings.TrimSpace(m.Method)
	if method == "" {
		return Event{}, fmt.Errorf("method is required")
	}

	data, err := marshalEvent(mutationEventData{
		Method:    method,
		CPU:       m.CPU,
		Args:      m.Args,
		Caller:    strings.TrimSpace(m.Caller),
		Result:    m.Result,
		Succeeded: m.Result == 0,
	})
	if err != nil {
		return Event{}, fmt.Errorf("marshaling mutation payload: %w", err)
	}

	at := m.At
	if at.IsZero() {
		at = time.Now()
	}

	return Event{
		ID:              "evt-" + newEventID(),
		Source:          EventSource,
		Type:            MutationEventType,
		Subject:         "cpu" + strconv.Itoa(m.CPU),
		Time:            at.UTC(),
		DataContentType: JSONDataContentType,
		Data:            data,
	}, nil
}
