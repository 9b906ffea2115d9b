package order

import (
	"fmt"
	"strings"

	"github.com/example/retail-orders/internal/apperr"
)

// MessagePrefix starts every order queue payload.
const MessagePrefix = "NewOrder:"

var ErrMalformedMessage = fmt.Errorf("%w: expected %q followed by an order id", apperr.ErrMalformedMessage, MessagePrefix)

// NewOrderMessage builds the queue payload announcing a placed order.
func NewOrderMessage(orderID string) string {
	return MessagePrefix + orderID
}

// ParseMessage extracts the order id from a queue payload. The prefix is
// matched case-insensitively and surrounding whitespace is ignored.
func ParseMessage(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if len(payload) < len(MessagePrefix) || !strings.EqualFold(payload[:len(MessagePrefix)], MessagePrefix) {
		return "", ErrMalformedMessage
	}
	id := strings.TrimSpace(payload[len(MessagePrefix):])
	if id == "" {
		return "", ErrMalformedMessage
	}
	return id, nil
}
