package domain

import "time"

type CoinTransactionType string

const (
	CoinTransactionEarned      CoinTransactionType = "earned"
	CoinTransactionSpent       CoinTransactionType = "spent"
	CoinTransactionTransferred CoinTransactionType = "transferred"
	CoinTransactionReceived    CoinTransactionType = "received"
	CoinTransactionRefunded    CoinTransactionType = "refunded"
)

// CoinTransaction is one append-only ledger entry. Amount is signed:
// debits are negative, credits positive.
type CoinTransaction struct {
	ID          string              `json:"id"`
	UserID      string              `json:"user_id"`
	Type        CoinTransactionType `json:"type"`
	Amount      int64               `json:"amount"`
	Description string              `json:"description"`
	ReferenceID string              `json:"reference_id,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}
