package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"owed/internal/core"
)

// DebtRecordedMessage announces a debt pair that was committed to the
// ledger. It carries the canonical record; consumers verify both halves
// against the store rather than trust the message.
type DebtRecordedMessage struct {
	ID           string    `json:"id"`
	Creditor     string    `json:"creditor"`
	Debtor       string    `json:"debtor"`
	TimeUnixNano int64     `json:"time_unix_nano"`
	AmountCents  int64     `json:"amount_cents"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewDebtRecordedMessage builds a message for d, in canonical orientation.
func NewDebtRecordedMessage(d core.Debt) *DebtRecordedMessage {
	d = d.Canonical()
	return &DebtRecordedMessage{
		ID:           uuid.NewString(),
		Creditor:     d.Creditor,
		Debtor:       d.Debtor,
		TimeUnixNano: d.Time.UnixNano(),
		AmountCents:  d.Amount.Cents(),
		Timestamp:    time.Now(),
	}
}

// Debt returns the canonical record the message describes.
func (m *DebtRecordedMessage) Debt() core.Debt {
	return core.NewDebt(m.Creditor, m.Debtor, time.Unix(0, m.TimeUnixNano).UTC(), core.FromCents(m.AmountCents))
}

func (m *DebtRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DebtRecordedMessageFromJSON(data []byte) (*DebtRecordedMessage, error) {
	var msg DebtRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
