package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmanzanog/share-ledger/internal/application"
	"github.com/jmanzanog/share-ledger/internal/domain"
)

// LedgerService defines the operations exposed over HTTP
type LedgerService interface {
	Buy(ctx context.Context, req application.BuyRequest) (*application.Fill, error)
	SellLot(ctx context.Context, req application.SellLotRequest) (*application.Fill, error)
	SellBySymbol(ctx context.Context, req application.SellBySymbolRequest) ([]application.Fill, error)
	ListShares(ctx context.Context) ([]domain.Share, error)
	ListPortfolios(ctx context.Context, ownerID string) ([]domain.Portfolio, error)
	ListPortfolioAssets(ctx context.Context, ownerID, portfolioID string) ([]domain.Asset, error)
	GetAsset(ctx context.Context, ownerID, assetID string) (*domain.Asset, error)
	ListAssetTrades(ctx context.Context, ownerID, assetID string) ([]domain.Trade, error)
	EnsureDefaultPortfolio(ctx context.Context, ownerID string) (*domain.Portfolio, error)
	CreatePortfolio(ctx context.Context, ownerID, name string) (*domain.Portfolio, error)
}

type Handler struct {
	ledger LedgerService
}

func NewHandler(ledger LedgerService) *Handler {
	return &Handler{
		ledger: ledger,
	}
}

// TradeRequest is the body of buy and sell calls. PortfolioID is ignored by
// single-lot sells.
type TradeRequest struct {
	Unit        domain.Decimal `json:"unit"`
	PortfolioID string         `json:"portfolio_id,omitempty"`
}

type CreatePortfolioRequest struct {
	Name string `json:"name"`
}

type SellResponse struct {
	Fills []application.Fill `json:"fills"`
}

type ErrorResponse struct {
	Error   string        `json:"error"`
	Payload *ErrorPayload `json:"payload,omitempty"`
}

type ErrorPayload struct {
	Slack domain.Decimal `json:"slack"`
}

const (
	errInvalidRequest = "invalid_request"
	errOwnerRequired  = "owner_required"
	errInternal       = "internal_error"
)

// statusFor maps a ledger error kind onto an HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindShareNotFound, domain.KindPortfolioNotFound, domain.KindAssetNotFound:
		return http.StatusNotFound
	case domain.KindInvalidQuantity, domain.KindAssetClosed,
		domain.KindInsufficientLotQuantity, domain.KindInsufficientAssets:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(c *gin.Context, msg string, err error, attrs ...any) {
	ctx := c.Request.Context()
	attrs = append(attrs, "error", err)

	var ledgerErr *domain.LedgerError
	if !errors.As(err, &ledgerErr) {
		slog.ErrorContext(ctx, msg, attrs...)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: errInternal})
		return
	}

	status := statusFor(ledgerErr.Kind)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, msg, attrs...)
	} else {
		slog.InfoContext(ctx, msg, attrs...)
	}

	resp := ErrorResponse{Error: string(ledgerErr.Kind)}
	if ledgerErr.Slack != nil {
		resp.Payload = &ErrorPayload{Slack: *ledgerErr.Slack}
	}
	c.JSON(status, resp)
}

func bindTrade(c *gin.Context) (TradeRequest, bool) {
	var req TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.InfoContext(c.Request.Context(), "Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: errInvalidRequest})
		return req, false
	}
	return req, true
}

func (h *Handler) Buy(c *gin.Context) {
	req, ok := bindTrade(c)
	if !ok {
		return
	}
	symbol := c.Param("symbol")

	fill, err := h.ledger.Buy(c.Request.Context(), application.BuyRequest{
		OwnerID:     ownerID(c),
		PortfolioID: req.PortfolioID,
		Symbol:      symbol,
		Unit:        req.Unit,
	})
	if err != nil {
		h.respondError(c, "Buy rejected", err, "symbol", symbol, "unit", req.Unit.String())
		return
	}

	c.JSON(http.StatusCreated, fill)
}

func (h *Handler) SellBySymbol(c *gin.Context) {
	req, ok := bindTrade(c)
	if !ok {
		return
	}
	symbol := c.Param("symbol")

	fills, err := h.ledger.SellBySymbol(c.Request.Context(), application.SellBySymbolRequest{
		OwnerID:     ownerID(c),
		PortfolioID: req.PortfolioID,
		Symbol:      symbol,
		Unit:        req.Unit,
	})
	if err != nil {
		h.respondError(c, "Sell rejected", err, "symbol", symbol, "unit", req.Unit.String())
		return
	}

	c.JSON(http.StatusOK, SellResponse{Fills: fills})
}

func (h *Handler) SellLot(c *gin.Context) {
	req, ok := bindTrade(c)
	if !ok {
		return
	}
	assetID := c.Param("id")

	fill, err := h.ledger.SellLot(c.Request.Context(), application.SellLotRequest{
		OwnerID: ownerID(c),
		AssetID: assetID,
		Unit:    req.Unit,
	})
	if err != nil {
		h.respondError(c, "Sell rejected", err, "asset_id", assetID, "unit", req.Unit.String())
		return
	}

	c.JSON(http.StatusOK, fill)
}

func (h *Handler) ListShares(c *gin.Context) {
	shares, err := h.ledger.ListShares(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list shares", err)
		return
	}

	c.JSON(http.StatusOK, shares)
}

func (h *Handler) GetAsset(c *gin.Context) {
	assetID := c.Param("id")

	asset, err := h.ledger.GetAsset(c.Request.Context(), ownerID(c), assetID)
	if err != nil {
		h.respondError(c, "Failed to get asset", err, "asset_id", assetID)
		return
	}

	c.JSON(http.StatusOK, asset)
}

func (h *Handler) ListAssetTrades(c *gin.Context) {
	assetID := c.Param("id")

	trades, err := h.ledger.ListAssetTrades(c.Request.Context(), ownerID(c), assetID)
	if err != nil {
		h.respondError(c, "Failed to list trades", err, "asset_id", assetID)
		return
	}

	c.JSON(http.StatusOK, trades)
}

func (h *Handler) ListPortfolios(c *gin.Context) {
	portfolios, err := h.ledger.ListPortfolios(c.Request.Context(), ownerID(c))
	if err != nil {
		h.respondError(c, "Failed to list portfolios", err)
		return
	}

	c.JSON(http.StatusOK, portfolios)
}

func (h *Handler) CreatePortfolio(c *gin.Context) {
	var req CreatePortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.InfoContext(c.Request.Context(), "Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: errInvalidRequest})
		return
	}

	portfolio, err := h.ledger.CreatePortfolio(c.Request.Context(), ownerID(c), req.Name)
	if err != nil {
		h.respondError(c, "Failed to create portfolio", err, "name", req.Name)
		return
	}

	c.JSON(http.StatusCreated, portfolio)
}

// EnsureDefaultPortfolio is called once an owner registers upstream. It is
// idempotent.
func (h *Handler) EnsureDefaultPortfolio(c *gin.Context) {
	portfolio, err := h.ledger.EnsureDefaultPortfolio(c.Request.Context(), ownerID(c))
	if err != nil {
		h.respondError(c, "Failed to ensure default portfolio", err)
		return
	}

	c.JSON(http.StatusOK, portfolio)
}

func (h *Handler) ListPortfolioAssets(c *gin.Context) {
	portfolioID := c.Param("id")

	assets, err := h.ledger.ListPortfolioAssets(c.Request.Context(), ownerID(c), portfolioID)
	if err != nil {
		h.respondError(c, "Failed to list portfolio assets", err, "portfolio_id", portfolioID)
		return
	}

	c.JSON(http.StatusOK, assets)
}
