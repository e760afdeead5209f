package entity

import (
	"time"
)

// TxStatus is the lifecycle state of a submitted transaction. Transitions are
// monotonic: PENDING -> COMPLETED or PENDING -> FAILED, never back.
type TxStatus string

const (
	StatusPending   TxStatus = "PENDING"
	StatusCompleted TxStatus = "COMPLETED"
	StatusFailed    TxStatus = "FAILED"
)

// CanTransitionTo reports whether the status machine allows moving to next.
func (s TxStatus) CanTransitionTo(next TxStatus) bool {
	return s == StatusPending && (next == StatusCompleted || next == StatusFailed)
}

// Terminal reports whether no further transition is possible.
func (s TxStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// OperationClass selects the fallback resource-cost estimate when the network
// refuses to estimate a payload.
type OperationClass string

const (
	OpNativeTransfer OperationClass = "native_transfer"
	OpTokenOperation OperationClass = "token_operation"
	OpContractCall   OperationClass = "contract_call"
)

// TxKind labels what the operation meant at the application level.
type TxKind string

const (
	KindTransfer      TxKind = "transfer"
	KindTokenDeposit  TxKind = "token_deposit"
	KindTokenWithdraw TxKind = "token_withdraw"
	KindTokenTransfer TxKind = "token_transfer"
	KindInvest        TxKind = "invest"
	KindClaim         TxKind = "claim"
	KindRentDeposit   TxKind = "rent_deposit"
)

// Transaction is an append-only history row for a submitted operation. Only
// Status (and the confirmation fields that come with it) mutate after append.
type Transaction struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"ownerId"`
	Hash        string         `json:"hash"`
	From        string         `json:"from"`
	To          string         `json:"to"`
	Value       string         `json:"value"` // wei, decimal string
	Payload     []byte         `json:"payload,omitempty"`
	Nonce       uint64         `json:"nonce"`
	GasLimit    uint64         `json:"gasLimit"`
	GasPrice    string         `json:"gasPrice"`
	Network     string         `json:"network"`
	Kind        TxKind         `json:"kind"`
	Class       OperationClass `json:"class"`
	Status      TxStatus       `json:"status"`
	BlockNumber uint64         `json:"blockNumber,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}
