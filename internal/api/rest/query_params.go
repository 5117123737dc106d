package rest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/lootview/wallet-portfolio/internal/domain"
)

const (
	defaultJournalLimit = 100
	maxJournalLimit     = 1000
	maxPortfolioTokens  = 200
)

// PortfolioQuery holds the parsed parameters for the portfolio endpoint
type PortfolioQuery struct {
	TokenKeys []domain.TokenKey
}

// ParsePortfolioQuery parses and validates the portfolio query parameters
func ParsePortfolioQuery(c *gin.Context) (*PortfolioQuery, error) {
	raw := c.Query("tokens")
	if raw == "" {
		return nil, fmt.Errorf("tokens parameter is required")
	}

	parts := strings.Split(raw, ",")
	if len(parts) > maxPortfolioTokens {
		return nil, fmt.Errorf("too many tokens: %d (max %d)", len(parts), maxPortfolioTokens)
	}

	query := &PortfolioQuery{TokenKeys: make([]domain.TokenKey, 0, len(parts))}
	for _, part := range parts {
		tokenKey := domain.TokenKey(strings.TrimSpace(part))
		if !tokenKey.Valid() {
			return nil, fmt.Errorf("invalid token key: %s", tokenKey)
		}
		query.TokenKeys = append(query.TokenKeys, tokenKey)
	}

	return query, nil
}

// PositionQuery holds the parsed parameters for the single-position endpoint
type PositionQuery struct {
	TokenKey domain.TokenKey
	Refresh  bool
}

// ParsePositionQuery parses and validates the position query parameters
func ParsePositionQuery(c *gin.Context) (*PositionQuery, error) {
	tokenKey := domain.TokenKey(strings.TrimSpace(c.Query("token")))
	if tokenKey == "" {
		return nil, fmt.Errorf("token parameter is required")
	}
	if !tokenKey.Valid() {
		return nil, fmt.Errorf("invalid token key: %s", tokenKey)
	}

	refresh := false
	if raw := c.Query("refresh"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid refresh parameter: %s", raw)
		}
		refresh = parsed
	}

	return &PositionQuery{TokenKey: tokenKey, Refresh: refresh}, nil
}

// JournalQuery holds the parsed parameters for the journal endpoint
type JournalQuery struct {
	WalletAddress string
	Limit         int
}

// ParseJournalQuery parses and validates the journal query parameters
func ParseJournalQuery(c *gin.Context) (*JournalQuery, error) {
	query := &JournalQuery{Limit: defaultJournalLimit}

	if wallet := c.Query("wallet"); wallet != "" {
		if !common.IsHexAddress(wallet) {
			return nil, fmt.Errorf("invalid wallet address: %s", wallet)
		}
		query.WalletAddress = domain.NormalizeAddress(wallet)
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return nil, fmt.Errorf("invalid limit: %s", raw)
		}
		if limit > maxJournalLimit {
			limit = maxJournalLimit
		}
		query.Limit = limit
	}

	return query, nil
}
