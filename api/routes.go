package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterEngineRoutes mounts the engine API under /api/v1.
func RegisterEngineRoutes(router *gin.Engine, handler *EngineHandler) {
	router.GET("/health", handler.HealthHandler)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/wallets", handler.ProvisionWalletHandler)
		v1.GET("/wallets/:ownerId", handler.GetWalletHandler)
		v1.GET("/wallets/:ownerId/ledger", handler.GetLedgerHandler)
		v1.POST("/wallets/:ownerId/sync", handler.SyncLedgerHandler)

		v1.POST("/wallets/:ownerId/transfer", handler.TransferHandler)
		v1.POST("/wallets/:ownerId/invest", handler.InvestHandler)
		v1.POST("/wallets/:ownerId/claim", handler.ClaimHandler)

		v1.POST("/wallets/:ownerId/tokens/deposit", handler.TokenDepositHandler)
		v1.POST("/wallets/:ownerId/tokens/withdraw", handler.TokenWithdrawHandler)
		v1.POST("/wallets/:ownerId/tokens/transfer", handler.TokenTransferHandler)

		v1.GET("/wallets/:ownerId/transactions", handler.ListTransactionsHandler)
		v1.GET("/wallets/:ownerId/transactions/:hash", handler.GetTransactionHandler)

		v1.POST("/rent/deposit", handler.RentDepositHandler)
	}
}
