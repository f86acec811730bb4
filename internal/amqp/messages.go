package amqp

import (
	"encoding/json"
	"time"
)

// BillingReconcileMessage asks the worker to retry flipping time entries
// to invoiced for an already-saved invoice. Published when the entry
// status update fails after the invoice write succeeded; consumed until
// both sides agree.
type BillingReconcileMessage struct {
	InvoiceID int64     `json:"invoice_id"`
	EntryIDs  []int64   `json:"entry_ids"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBillingReconcileMessage(invoiceID int64, entryIDs []int64) *BillingReconcileMessage {
	return &BillingReconcileMessage{
		InvoiceID: invoiceID,
		EntryIDs:  entryIDs,
		Timestamp: time.Now(),
	}
}

func (m *BillingReconcileMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BillingReconcileMessageFromJSON(data []byte) (*BillingReconcileMessage, error) {
	var msg BillingReconcileMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
