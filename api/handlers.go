package api

import (
	"errors"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fractea_engine/internal/config"
	"fractea_engine/internal/entity"
	"fractea_engine/internal/port"
)

// EngineHandler exposes the custody, pipeline and reconciliation surfaces
// over HTTP.
type EngineHandler struct {
	custody    port.CustodyService
	submission port.SubmissionService
	recon      port.ReconciliationService
	ledger     port.LedgerService
	history    port.HistoryService
	cfg        *config.Config
	logger     *zap.Logger
}

// NewEngineHandler creates the handler set over the wired services.
func NewEngineHandler(
	custody port.CustodyService,
	submission port.SubmissionService,
	recon port.ReconciliationService,
	ledger port.LedgerService,
	history port.HistoryService,
	cfg *config.Config,
	logger *zap.Logger,
) *EngineHandler {
	return &EngineHandler{
		custody:    custody,
		submission: submission,
		recon:      recon,
		ledger:     ledger,
		history:    history,
		cfg:        cfg,
		logger:     logger.Named("api"),
	}
}

// APIResponse is the uniform success envelope.
type APIResponse struct {
	Data          interface{} `json:"data,omitempty"`
	StatusMessage string      `json:"status_message"`
}

// APIError is the uniform error envelope carrying the taxonomy tag.
type APIError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func statusForKind(kind entity.ErrorKind) int {
	switch kind {
	case entity.KindValidation:
		return http.StatusBadRequest
	case entity.KindUnknownOwner:
		return http.StatusNotFound
	case entity.KindInsufficientFunds, entity.KindInsufficientResource:
		return http.StatusPaymentRequired
	case entity.KindNetwork:
		return http.StatusBadGateway
	case entity.KindTimeout:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

func (h *EngineHandler) writeError(c *gin.Context, err error) {
	kind := entity.KindOf(err)
	status := statusForKind(kind)
	if kind == "" {
		kind = "INTERNAL"
		h.logger.Error("Unclassified error crossed the API boundary", zap.Error(err))
	}
	body := APIError{Kind: string(kind), Message: err.Error()}
	var engineErr *entity.EngineError
	if errors.As(err, &engineErr) {
		body.Message = engineErr.Message
		body.Hint = engineErr.Hint
	}
	c.JSON(status, gin.H{"error": body})
}

// writeSubmissionResult handles the pipeline's three-way outcome: completed or
// failed rows return 200, a confirmation timeout returns 202 with the still
// pending row, anything else is a tagged error.
func (h *EngineHandler) writeSubmissionResult(c *gin.Context, tx *entity.Transaction, err error) {
	if err != nil {
		if entity.IsKind(err, entity.KindTimeout) && tx != nil {
			c.JSON(http.StatusAccepted, APIResponse{
				Data:          tx,
				StatusMessage: "Transaction broadcast; confirmation still pending.",
			})
			return
		}
		h.writeError(c, err)
		return
	}
	message := "Transaction completed."
	if tx.Status == entity.StatusFailed {
		message = "Transaction was rejected on chain."
	}
	c.JSON(http.StatusOK, APIResponse{Data: tx, StatusMessage: message})
}

// ProvisionWalletRequest creates or returns an owner's custodial wallet.
type ProvisionWalletRequest struct {
	OwnerID string `json:"ownerId" binding:"required"`
	Email   string `json:"email"`
}

// ProvisionWalletHandler godoc
// @Summary Provision a custodial wallet
// @Description Creates a key pair for the owner, or returns the existing wallet. Idempotent.
// @Tags wallets
// @Accept json
// @Produce json
// @Param request body ProvisionWalletRequest true "Owner identity"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIError
// @Router /api/v1/wallets [post]
func (h *EngineHandler) ProvisionWalletHandler(c *gin.Context) {
	var req ProvisionWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, entity.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	wallet, err := h.custody.Provision(c.Request.Context(), req.OwnerID, req.Email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: wallet.Public(), StatusMessage: "Wallet ready."})
}

// GetWalletHandler godoc
// @Summary Get a wallet
// @Tags wallets
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIError
// @Router /api/v1/wallets/{ownerId} [get]
func (h *EngineHandler) GetWalletHandler(c *gin.Context) {
	wallet, err := h.custody.Lookup(c.Request.Context(), c.Param("ownerId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: wallet.Public(), StatusMessage: "Wallet retrieved."})
}

// GetLedgerHandler godoc
// @Summary Get an owner's cached ledger
// @Tags ledger
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Success 200 {object} APIResponse
// @Router /api/v1/wallets/{ownerId}/ledger [get]
func (h *EngineHandler) GetLedgerHandler(c *gin.Context) {
	entry, err := h.ledger.Get(c.Request.Context(), c.Param("ownerId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: entry, StatusMessage: "Ledger retrieved."})
}

// SyncLedgerHandler godoc
// @Summary Reconcile an owner's ledger against the chain
// @Tags ledger
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Success 200 {object} APIResponse
// @Failure 502 {object} APIError
// @Router /api/v1/wallets/{ownerId}/sync [post]
func (h *EngineHandler) SyncLedgerHandler(c *gin.Context) {
	entry, err := h.recon.Sync(c.Request.Context(), c.Param("ownerId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: entry, StatusMessage: "Ledger reconciled."})
}

// TransferRequest submits a native-value transfer.
type TransferRequest struct {
	To       string `json:"to" binding:"required"`
	ValueWei string `json:"valueWei" binding:"required"`
}

// TransferHandler godoc
// @Summary Send native value from a custodial wallet
// @Tags transactions
// @Accept json
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Param request body TransferRequest true "Transfer"
// @Success 200 {object} APIResponse
// @Success 202 {object} APIResponse
// @Failure 400 {object} APIError
// @Failure 402 {object} APIError
// @Router /api/v1/wallets/{ownerId}/transfer [post]
func (h *EngineHandler) TransferHandler(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, entity.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	value, ok := new(big.Int).SetString(req.ValueWei, 10)
	if !ok {
		h.writeError(c, entity.NewValidationError("valueWei must be a decimal integer string"))
		return
	}
	tx, err := h.submission.SubmitTransfer(c.Request.Context(), c.Param("ownerId"), port.TransferRequest{
		To:    req.To,
		Value: value,
	})
	h.writeSubmissionResult(c, tx, err)
}

// InvestRequest buys fractions of an asset.
type InvestRequest struct {
	AssetID   int64  `json:"assetId" binding:"required"`
	Fractions int64  `json:"fractions" binding:"required"`
	CostWei   string `json:"costWei" binding:"required"`
}

// InvestHandler godoc
// @Summary Invest in fractions of an asset
// @Tags transactions
// @Accept json
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Param request body InvestRequest true "Investment"
// @Success 200 {object} APIResponse
// @Success 202 {object} APIResponse
// @Failure 400 {object} APIError
// @Router /api/v1/wallets/{ownerId}/invest [post]
func (h *EngineHandler) InvestHandler(c *gin.Context) {
	var req InvestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, entity.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	cost, ok := new(big.Int).SetString(req.CostWei, 10)
	if !ok {
		h.writeError(c, entity.NewValidationError("costWei must be a decimal integer string"))
		return
	}
	tx, err := h.submission.Invest(c.Request.Context(), c.Param("ownerId"), req.AssetID, req.Fractions, cost)
	h.writeSubmissionResult(c, tx, err)
}

// ClaimRequest claims accrued rent for an asset.
type ClaimRequest struct {
	AssetID int64 `json:"assetId" binding:"required"`
}

// ClaimHandler godoc
// @Summary Claim accrued rent for an asset
// @Tags transactions
// @Accept json
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Param request body ClaimRequest true "Claim"
// @Success 200 {object} APIResponse
// @Success 202 {object} APIResponse
// @Failure 400 {object} APIError
// @Router /api/v1/wallets/{ownerId}/claim [post]
func (h *EngineHandler) ClaimHandler(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, entity.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	result, err := h.submission.ClaimRent(c.Request.Context(), c.Param("ownerId"), req.AssetID)
	if err != nil {
		if entity.IsKind(err, entity.KindTimeout) && result != nil {
			c.JSON(http.StatusAccepted, APIResponse{
				Data:          result,
				StatusMessage: "Claim broadcast; confirmation still pending.",
			})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: result, StatusMessage: "Rent claimed."})
}

// RentDepositRequest deposits rent for an asset through the relayer wallet.
type RentDepositRequest struct {
	OwnerID   string `json:"ownerId" binding:"required"`
	AssetID   int64  `json:"assetId" binding:"required"`
	AmountWei string `json:"amountWei" binding:"required"`
}

// RentDepositHandler godoc
// @Summary Deposit rent for an asset
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body RentDepositRequest true "Rent deposit"
// @Success 200 {object} APIResponse
// @Success 202 {object} APIResponse
// @Failure 400 {object} APIError
// @Router /api/v1/rent/deposit [post]
func (h *EngineHandler) RentDepositHandler(c *gin.Context) {
	var req RentDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, entity.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	amount, ok := new(big.Int).SetString(req.AmountWei, 10)
	if !ok {
		h.writeError(c, entity.NewValidationError("amountWei must be a decimal integer string"))
		return
	}
	tx, err := h.submission.DepositRent(c.Request.Context(), req.OwnerID, req.AssetID, amount)
	h.writeSubmissionResult(c, tx, err)
}

// TokenAmountRequest moves a cached token balance in or out.
type TokenAmountRequest struct {
	Symbol string `json:"symbol" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

func parseTokenAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, entity.NewValidationError("amount must be a decimal string")
	}
	return amount, nil
}

// TokenDepositHandler godoc
// @Summary Credit a cached token balance
// @Tags tokens
// @Accept json
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Param request body TokenAmountRequest true "Deposit"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIError
// @Router /api/v1/wallets/{ownerId}/tokens/deposit [post]
func (h *EngineHandler) TokenDepositHandler(c *gin.Context) {
	var req TokenAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, entity.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	amount, err := parseTokenAmount(req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	tx, err := h.submission.DepositTokens(c.Request.Context(), c.Param("ownerId"), req.Symbol, amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: tx, StatusMessage: "Tokens deposited."})
}

// TokenWithdrawHandler godoc
// @Summary Debit a cached token balance
// @Tags tokens
// @Accept json
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Param request body TokenAmountRequest true "Withdrawal"
// @Success 200 {object} APIResponse
// @Failure 402 {object} APIError
// @Router /api/v1/wallets/{ownerId}/tokens/withdraw [post]
func (h *EngineHandler) TokenWithdrawHandler(c *gin.Context) {
	var req TokenAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, entity.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	amount, err := parseTokenAmount(req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	tx, err := h.submission.WithdrawTokens(c.Request.Context(), c.Param("ownerId"), req.Symbol, amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: tx, StatusMessage: "Tokens withdrawn."})
}

// TokenTransferRequest moves tokens between two owners.
type TokenTransferRequest struct {
	ToOwnerID string `json:"toOwnerId" binding:"required"`
	Symbol    string `json:"symbol" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
}

// TokenTransferHandler godoc
// @Summary Transfer a cached token balance to another owner
// @Tags tokens
// @Accept json
// @Produce json
// @Param ownerId path string true "Sender owner ID"
// @Param request body TokenTransferRequest true "Transfer"
// @Success 200 {object} APIResponse
// @Failure 402 {object} APIError
// @Router /api/v1/wallets/{ownerId}/tokens/transfer [post]
func (h *EngineHandler) TokenTransferHandler(c *gin.Context) {
	var req TokenTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, entity.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	amount, err := parseTokenAmount(req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	tx, err := h.submission.TransferTokens(c.Request.Context(), c.Param("ownerId"), req.ToOwnerID, req.Symbol, amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: tx, StatusMessage: "Tokens transferred."})
}

// ListTransactionsHandler godoc
// @Summary List an owner's transaction history, newest first
// @Tags transactions
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Success 200 {object} APIResponse
// @Router /api/v1/wallets/{ownerId}/transactions [get]
func (h *EngineHandler) ListTransactionsHandler(c *gin.Context) {
	rows, err := h.history.ListByOwner(c.Request.Context(), c.Param("ownerId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: rows, StatusMessage: "Transactions retrieved."})
}

// GetTransactionHandler godoc
// @Summary Get one transaction by hash
// @Tags transactions
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Param hash path string true "Transaction hash"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIError
// @Router /api/v1/wallets/{ownerId}/transactions/{hash} [get]
func (h *EngineHandler) GetTransactionHandler(c *gin.Context) {
	tx, err := h.history.GetByHash(c.Request.Context(), c.Param("ownerId"), c.Param("hash"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: tx, StatusMessage: "Transaction retrieved."})
}

// HealthHandler reports liveness.
func (h *EngineHandler) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "network": h.cfg.ActiveNetwork})
}
