package outbox

import (
	"context"
	"encoding/json"

	"github.com/Tracy625/event-stream-starter-sub001/domain/card"
)

// outboxPayload is the JSON shape DispatcherSender expects in an outbox
// row's payload for a card dispatch.
type outboxPayload struct {
	Text string `json:"text"`
}

// DispatcherSender adapts a card.Dispatcher (which sends pre-rendered
// text to a channel) to the outbox Sender contract.
type DispatcherSender struct {
	dispatcher card.Dispatcher
}

// NewDispatcherSender builds a Sender backed by a card.Dispatcher.
func NewDispatcherSender(dispatcher card.Dispatcher) *DispatcherSender {
	return &DispatcherSender{dispatcher: dispatcher}
}

func (s *DispatcherSender) Send(ctx context.Context, item Item) SendOutcome {
	var payload outboxPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return SendOutcome{Success: false, Retryable: false, Err: err}
	}

	result := s.dispatcher.Send(ctx, item.ChannelID, payload.Text)
	switch result.Class {
	case card.StatusOK:
		return SendOutcome{Success: true, StatusCode: result.HTTPStatus}
	case card.Status429, card.StatusNet, card.Status5xx:
		return SendOutcome{Success: false, Retryable: true, StatusCode: result.HTTPStatus, Err: result.Err}
	default:
		return SendOutcome{Success: false, Retryable: false, StatusCode: result.HTTPStatus, Err: result.Err}
	}
}
