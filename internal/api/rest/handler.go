package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lootview/wallet-portfolio/internal/domain"
	"github.com/lootview/wallet-portfolio/internal/logger"
	"github.com/lootview/wallet-portfolio/internal/reconcile"
	"github.com/lootview/wallet-portfolio/internal/store"
)

// Handler defines the interface for REST API handlers
// This interface allows for easy mocking and testing
//
//go:generate mockgen -source=handler.go -destination=../../mocks/api_handler.go -package=mocks -mock_names=Handler=MockAPIHandler
type Handler interface {
	// GetPortfolio evaluates the positions for a set of tokens held by a wallet
	// GET /api/v1/wallets/:address/positions?tokens=<tokenKey1>,<tokenKey2>
	GetPortfolio(c *gin.Context)

	// GetPosition returns the reconciled position for a single token. Serves
	// the cached result when one is fresh and refreshes it in the background;
	// refresh=true forces a synchronous re-evaluation.
	// GET /api/v1/wallets/:address/position?token=<tokenKey>&refresh=<bool>
	GetPosition(c *gin.Context)

	// InvalidatePosition drops the cached reconciliation for a token
	// DELETE /api/v1/wallets/:address/position?token=<tokenKey>
	InvalidatePosition(c *gin.Context)

	// GetJournal lists recent reconciliation journal entries
	// GET /api/v1/journal?wallet=<address>&limit=<limit>
	GetJournal(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// backgroundRefreshTimeout bounds refreshes that outlive their request
const backgroundRefreshTimeout = 2 * time.Minute

// handler implements the Handler interface
type handler struct {
	pipeline reconcile.Pipeline
	journal  store.Store
}

// NewHandler creates a new REST API handler
func NewHandler(pipeline reconcile.Pipeline, journal store.Store) Handler {
	return &handler{
		pipeline: pipeline,
		journal:  journal,
	}
}

// positionResponse wraps a reconciliation with its serving source
type positionResponse struct {
	Source string                 `json:"source"`
	Result *domain.Reconciliation `json:"result"`
}

// portfolioResponse holds the evaluated positions for a wallet
type portfolioResponse struct {
	WalletAddress string                  `json:"wallet_address"`
	Positions     []domain.Reconciliation `json:"positions"`
}

// GetPortfolio evaluates the positions for a set of tokens held by a wallet
func (h *handler) GetPortfolio(c *gin.Context) {
	wallet := c.Param("address")
	if !common.IsHexAddress(wallet) {
		respondBadRequest(c, "Invalid wallet address")
		return
	}

	query, err := ParsePortfolioQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	positions := h.pipeline.EvaluatePortfolio(c.Request.Context(), wallet, query.TokenKeys)

	c.JSON(http.StatusOK, portfolioResponse{
		WalletAddress: domain.NormalizeAddress(wallet),
		Positions:     positions,
	})
}

// GetPosition returns the reconciled position for a single token
func (h *handler) GetPosition(c *gin.Context) {
	wallet := c.Param("address")
	if !common.IsHexAddress(wallet) {
		respondBadRequest(c, "Invalid wallet address")
		return
	}

	query, err := ParsePositionQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	if !query.Refresh {
		if cached, ok := h.pipeline.EvaluateCached(ctx, wallet, query.TokenKey); ok {
			// Serve the cached snapshot immediately and refresh it behind the
			// response so the next viewer sees current data
			go h.refreshInBackground(wallet, query.TokenKey)
			c.JSON(http.StatusOK, positionResponse{Source: "cache", Result: cached})
			return
		}
	}

	result, err := h.pipeline.Evaluate(ctx, wallet, query.TokenKey)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoAcquisition):
			respondNotFound(c, "Wallet never acquired this token on-chain")
		case errors.Is(err, domain.ErrInvalidAddress), errors.Is(err, domain.ErrInvalidTokenKey):
			respondBadRequest(c, err.Error())
		default:
			respondUpstreamError(c, err, "Failed to evaluate position",
				zap.String("token_key", query.TokenKey.String()))
		}
		return
	}

	c.JSON(http.StatusOK, positionResponse{Source: "fresh", Result: result})
}

// InvalidatePosition drops the cached reconciliation for a token
func (h *handler) InvalidatePosition(c *gin.Context) {
	wallet := c.Param("address")
	if !common.IsHexAddress(wallet) {
		respondBadRequest(c, "Invalid wallet address")
		return
	}

	query, err := ParsePositionQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	if err := h.pipeline.Invalidate(c.Request.Context(), wallet, query.TokenKey); err != nil {
		respondInternalError(c, err, "Failed to invalidate cached position")
		return
	}

	c.Status(http.StatusNoContent)
}

// GetJournal lists recent reconciliation journal entries
func (h *handler) GetJournal(c *gin.Context) {
	query, err := ParseJournalQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	entries, err := h.journal.ListReconciliations(c.Request.Context(), query.WalletAddress, query.Limit)
	if err != nil {
		respondInternalError(c, err, "Failed to list journal entries")
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// refreshInBackground re-runs the reconciliation after a cached response was
// already served. Session cancellation discards the result if the refresh
// outlives its deadline.
func (h *handler) refreshInBackground(wallet string, tokenKey domain.TokenKey) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundRefreshTimeout)
	defer cancel()

	session := reconcile.NewSession(h.pipeline, wallet, tokenKey)
	timer := time.AfterFunc(backgroundRefreshTimeout, session.Cancel)
	defer timer.Stop()

	if _, err := session.Run(ctx, func(*domain.Reconciliation, bool) {}); err != nil {
		logger.Warn("background refresh failed",
			zap.String("wallet", domain.NormalizeAddress(wallet)),
			zap.String("token_key", tokenKey.String()),
			zap.Error(err))
	}
}
