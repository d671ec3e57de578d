package modem

import (
	"context"
	"errors"
	"fmt"

	"i4.energy/across/cellat/capability"
)

// SendSMS sends a text message to the specified recipient and returns the
// message reference assigned by the network.
//
// The message is sent in text mode (not PDU mode). The recipient should be
// in international format (e.g., "+1234567890"). The variant writes the
// body only after the modem's prompt was received.
//
// This method blocks until the message is accepted by the network or an error
// occurs. Network delivery (to the final recipient) happens asynchronously.
func (m *Modem) SendSMS(ctx context.Context, recipient, message string) (int, error) {
	if recipient == "" {
		return 0, errors.New("SMS recipient is required")
	}
	res, err := call[capability.SMSResult](ctx, m, capability.SIDSendSMS, capability.SMSRequest{
		To:   recipient,
		Text: message,
	})
	if err != nil {
		return 0, fmt.Errorf("SMS send failed: %w", err)
	}
	return res.Reference, nil
}
