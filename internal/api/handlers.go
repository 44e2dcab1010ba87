package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/krypt-labs/krypt-gateway/internal/orchestrator"
	"github.com/krypt-labs/krypt-gateway/internal/paginator"
)

const installWalletMessage = "No wallet provider detected. Please install and configure a wallet to continue."

// Handler holds dependencies for HTTP handlers
type Handler struct {
	orch     *orchestrator.Orchestrator
	pageSize int
	logger   *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(orch *orchestrator.Orchestrator, pageSize int, logger *zap.Logger) *Handler {
	return &Handler{
		orch:     orch,
		pageSize: pageSize,
		logger:   logger,
	}
}

// ==================== Health Check ====================

// HandleHealth returns service health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
	})
}

// ==================== Session ====================

// HandleCheckSession handles POST /api/v1/session/check.
// Re-queries already-authorized accounts without prompting and
// refreshes the session state; never fails.
func (h *Handler) HandleCheckSession(w http.ResponseWriter, r *http.Request) {
	h.orch.CheckExistingAuthorization(r.Context())
	h.HandleGetSession(w, r)
}

// HandleGetSession handles GET /api/v1/session
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	account, balance, connected := h.orch.Session()
	respondJSON(w, http.StatusOK, SessionResponse{
		Connected: connected,
		Account:   account,
		Balance:   balance,
	})
}

// HandleConnect handles POST /api/v1/session/connect.
// A missing wallet provider is reported as an instructional message,
// not an error status.
func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	result, err := h.orch.Authorize(r.Context())
	if err != nil {
		if errors.Is(err, orchestrator.ErrGatewayUnavailable) {
			respondJSON(w, http.StatusOK, ConnectResponse{
				Status:  "gateway_unavailable",
				Message: installWalletMessage,
			})
			return
		}
		h.respondTaxonomy(w, "Authorization failed", err)
		return
	}

	account, balance, _ := h.orch.Session()
	resp := ConnectResponse{
		Status:  string(result),
		Account: account,
		Balance: balance,
	}
	if result == orchestrator.AuthAlreadyConnected {
		resp.Message = "Wallet is already connected."
	}
	respondJSON(w, http.StatusOK, resp)
}

// ==================== Transfers ====================

// HandleSendTransfer handles POST /api/v1/transfers
func (h *Handler) HandleSendTransfer(w http.ResponseWriter, r *http.Request) {
	var req SendTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request", zap.Error(err))
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Recipient == "" {
		respondError(w, http.StatusBadRequest, "recipient is required", nil)
		return
	}
	if !common.IsHexAddress(req.Recipient) {
		respondError(w, http.StatusBadRequest, "invalid recipient address", nil)
		return
	}
	if req.Amount == "" {
		respondError(w, http.StatusBadRequest, "amount is required", nil)
		return
	}

	err := h.orch.SendTransfer(r.Context(), common.HexToAddress(req.Recipient), req.Amount, req.Message)
	if err != nil {
		h.respondTaxonomy(w, "Transfer failed", err)
		return
	}

	respondJSON(w, http.StatusOK, OperationAccepted{
		Status: "confirmed",
		Flags:  h.orch.OperationFlags(),
	})
}

// HandleListTransfers handles GET /api/v1/transfers?page=N
func (h *Handler) HandleListTransfers(w http.ResponseWriter, r *http.Request) {
	page := parsePage(r)
	result := paginator.Paginate(h.orch.Transfers(), page, h.pageSize)
	respondJSON(w, http.StatusOK, TransferPageResponse{Page: result})
}

// ==================== Funding requests ====================

// HandleCreateRequest handles POST /api/v1/requests
func (h *Handler) HandleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var req CreateRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request", zap.Error(err))
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Target == "" {
		respondError(w, http.StatusBadRequest, "target is required", nil)
		return
	}
	if !common.IsHexAddress(req.Target) {
		respondError(w, http.StatusBadRequest, "invalid target address", nil)
		return
	}
	if req.Amount == "" {
		respondError(w, http.StatusBadRequest, "amount is required", nil)
		return
	}

	err := h.orch.CreateRequest(r.Context(), common.HexToAddress(req.Target), req.Amount, req.Message)
	if err != nil {
		h.respondTaxonomy(w, "Request creation failed", err)
		return
	}

	respondJSON(w, http.StatusOK, OperationAccepted{
		Status: "confirmed",
		Flags:  h.orch.OperationFlags(),
	})
}

// HandleApproveRequest handles POST /api/v1/requests/{index}/approve
func (h *Handler) HandleApproveRequest(w http.ResponseWriter, r *http.Request) {
	index, ok := parseIndex(w, r)
	if !ok {
		return
	}

	if err := h.orch.ApproveRequest(r.Context(), index); err != nil {
		h.respondTaxonomy(w, "Approval failed", err)
		return
	}

	respondJSON(w, http.StatusOK, OperationAccepted{
		Status: "confirmed",
		Flags:  h.orch.OperationFlags(),
	})
}

// HandleFulfillRequest handles POST /api/v1/requests/{index}/fulfill
func (h *Handler) HandleFulfillRequest(w http.ResponseWriter, r *http.Request) {
	index, ok := parseIndex(w, r)
	if !ok {
		return
	}

	var req FulfillRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request", zap.Error(err))
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Target == "" || !common.IsHexAddress(req.Target) {
		respondError(w, http.StatusBadRequest, "valid target address is required", nil)
		return
	}
	if req.Amount == "" {
		respondError(w, http.StatusBadRequest, "amount is required", nil)
		return
	}

	err := h.orch.FulfillRequest(r.Context(), common.HexToAddress(req.Target), req.Amount, index)
	if err != nil {
		h.respondTaxonomy(w, "Fulfillment failed", err)
		return
	}

	respondJSON(w, http.StatusOK, OperationAccepted{
		Status: "confirmed",
		Flags:  h.orch.OperationFlags(),
	})
}

// HandleListRequests handles GET /api/v1/requests?page=N
func (h *Handler) HandleListRequests(w http.ResponseWriter, r *http.Request) {
	page := parsePage(r)

	requests := h.orch.Requests()
	views := make([]RequestView, 0, len(requests))
	for _, req := range requests {
		views = append(views, RequestView{
			FundingRequest: req,
			Status:         req.Status(),
		})
	}

	result := paginator.Paginate(views, page, h.pageSize)
	respondJSON(w, http.StatusOK, RequestPageResponse{Page: result})
}

// ==================== Helper Functions ====================

// respondTaxonomy maps the orchestrator's error taxonomy to HTTP
// status codes
func (h *Handler) respondTaxonomy(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, zap.Error(err))

	switch {
	case errors.Is(err, orchestrator.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, orchestrator.ErrInvalidStatus):
		respondError(w, http.StatusConflict, message, err)
	case errors.Is(err, orchestrator.ErrUserRejected):
		respondError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, orchestrator.ErrGatewayUnavailable):
		respondError(w, http.StatusServiceUnavailable, installWalletMessage, nil)
	default:
		respondError(w, http.StatusBadGateway, message, err)
	}
}

func parsePage(r *http.Request) int {
	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if parsed, err := strconv.Atoi(pageStr); err == nil && parsed > 0 {
			page = parsed
		}
	}
	return page
}

func parseIndex(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	vars := mux.Vars(r)
	index, err := strconv.ParseUint(vars["index"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request index", err)
		return 0, false
	}
	return index, true
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already written, nothing left to send
		fmt.Printf("Failed to encode JSON response: %v\n", err)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errorMsg := message
	if err != nil {
		errorMsg = fmt.Sprintf("%s: %v", message, err)
	}

	respondJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Message: errorMsg,
	})
}
