package http

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	api := router.Group("/api/v1", RequireOwner())
	{
		api.GET("/shares", handler.ListShares)
		api.POST("/shares/:symbol/buy", handler.Buy)
		api.POST("/shares/:symbol/sell", handler.SellBySymbol)

		api.GET("/assets/:id", handler.GetAsset)
		api.GET("/assets/:id/trades", handler.ListAssetTrades)
		api.POST("/assets/:id/sell", handler.SellLot)

		api.GET("/portfolios", handler.ListPortfolios)
		api.POST("/portfolios", handler.CreatePortfolio)
		api.POST("/portfolios/default", handler.EnsureDefaultPortfolio)
		api.GET("/portfolios/:id/assets", handler.ListPortfolioAssets)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
