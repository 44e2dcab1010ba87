package models

import "time"

// RequestStatus represents the lifecycle state of a funding request
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusApproved  RequestStatus = "APPROVED"
	RequestStatusFulfilled RequestStatus = "FULFILLED"
)

// TransferRecord is an immutable historical value transfer, sourced
// entirely from the ledger contract's enumeration.
type TransferRecord struct {
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Amount    string    `json:"amount"` // decimal string, 18-decimal precision
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// FundingRequest is a request for another address to send funds.
// Index is the request's absolute position in the contract's global
// request list and is the identifier used for approve/fulfill calls.
type FundingRequest struct {
	Requester string    `json:"requester"`
	Target    string    `json:"target"`
	Amount    string    `json:"amount"` // decimal string, 18-decimal precision
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Index     uint64    `json:"index"`
	Approved  bool      `json:"approved"`
	Fulfilled bool      `json:"fulfilled"`
}

// Status derives the three-state progression from the two contract
// booleans. Fulfilled is terminal; no regression is possible.
func (r FundingRequest) Status() RequestStatus {
	switch {
	case r.Fulfilled:
		return RequestStatusFulfilled
	case r.Approved:
		return RequestStatusApproved
	default:
		return RequestStatusPending
	}
}

// CounterSnapshot is an advisory cache row holding the last observed
// ledger counters for a contract. Never authoritative; always
// re-validated against the contract.
type CounterSnapshot struct {
	ContractAddress string    `db:"contract_address"`
	TransferCount   int64     `db:"transfer_count"`
	RequestCount    int64     `db:"request_count"`
	UpdatedAt       time.Time `db:"updated_at"`
}
