package api

import (
	"github.com/krypt-labs/krypt-gateway/internal/models"
	"github.com/krypt-labs/krypt-gateway/internal/orchestrator"
	"github.com/krypt-labs/krypt-gateway/internal/paginator"
)

// ==================== Session ====================

// SessionResponse reports the active account session
type SessionResponse struct {
	Connected bool   `json:"connected"`
	Account   string `json:"account,omitempty"`
	Balance   string `json:"balance,omitempty"`
}

// ConnectResponse reports the outcome of an authorization attempt.
// Status is "connected", "already_connected", or
// "gateway_unavailable"; Message carries the user-facing text for the
// latter two.
type ConnectResponse struct {
	Status  string `json:"status"`
	Account string `json:"account,omitempty"`
	Balance string `json:"balance,omitempty"`
	Message string `json:"message,omitempty"`
}

// ==================== Transfers ====================

// SendTransferRequest submits a value transfer with a message
type SendTransferRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"` // decimal string
	Message   string `json:"message"`
}

// TransferPageResponse is one most-recent-first page of transfer
// history
type TransferPageResponse struct {
	paginator.Page[models.TransferRecord]
}

// ==================== Funding requests ====================

// CreateRequestRequest submits a new funding request
type CreateRequestRequest struct {
	Target  string `json:"target"`
	Amount  string `json:"amount"` // decimal string
	Message string `json:"message"`
}

// FulfillRequestRequest carries the transfer parameters matching the
// request being fulfilled
type FulfillRequestRequest struct {
	Target string `json:"target"`
	Amount string `json:"amount"` // decimal string
}

// RequestView is a FundingRequest with its derived status attached
type RequestView struct {
	models.FundingRequest
	Status models.RequestStatus `json:"status"`
}

// RequestPageResponse is one most-recent-first page of funding
// requests
type RequestPageResponse struct {
	paginator.Page[RequestView]
}

// ==================== Operations ====================

// OperationAccepted acknowledges a confirmed write operation
type OperationAccepted struct {
	Status string             `json:"status"`
	Flags  orchestrator.Flags `json:"flags"`
}

// ==================== Error / health ====================

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
