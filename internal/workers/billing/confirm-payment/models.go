// internal/workers/billing/confirm-payment/models.go
package confirmpayment

type Input struct {
	SessionID string `json:"sessionId"`
	Tier      string `json:"tier"`
	Amount    int64  `json:"amount"`
}

type Output struct {
	SessionID         string `json:"sessionId"`
	PaymentID         string `json:"paymentId"`
	Tier              string `json:"tier"`
	Amount            int64  `json:"amount"`
	RevisionAllotment int    `json:"revisionAllotment"`
	Phase             string `json:"phase"`
}
