package models

import "time"

// CreditAccount holds a user's spendable balance in currency units. The
// per-session revision allotment lives on the Session; both are mutated
// atomically by the ledger.
type CreditAccount struct {
	UserID    string    `json:"userId" db:"user_id"`
	Balance   int64     `json:"balance" db:"balance"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Payment is one audit row written when a tier charge succeeds.
type Payment struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	SessionID string    `json:"sessionId" db:"session_id"`
	Tier      string    `json:"tier" db:"tier"`
	Amount    int64     `json:"amount" db:"amount"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
