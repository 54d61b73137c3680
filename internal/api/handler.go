// Package api provides the REST surface for the settlement and gamification
// engine: check-in ingestion hooks, freeze operations, manual settlement, and
// dashboard reads.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stakepact/stakepact/internal/models"
	"github.com/stakepact/stakepact/internal/repository"
	"github.com/stakepact/stakepact/internal/service/leaderboard"
	"github.com/stakepact/stakepact/internal/service/ledger"
	"github.com/stakepact/stakepact/internal/service/prizepool"
	"github.com/stakepact/stakepact/internal/service/streak"
	"github.com/stakepact/stakepact/pkg/logger"
)

// StreakService interface for streak operations.
type StreakService interface {
	UpdateStreak(ctx context.Context, userID uint) (*streak.Result, error)
	UseFreeze(ctx context.Context, userID uint) (*streak.Result, error)
	PurchaseFreeze(ctx context.Context, userID uint, method streak.PurchaseMethod) (*streak.Result, error)
}

// SettlementService interface for manual batch runs.
type SettlementService interface {
	RunSettlementBatch(ctx context.Context) (int, error)
}

// PrizePoolService interface for manual distribution.
type PrizePoolService interface {
	Distribute(ctx context.Context, challengeID uint) (*prizepool.Result, error)
}

// BadgeService interface for achievement reads.
type BadgeService interface {
	GetUserAchievements(userID uint) ([]models.Achievement, error)
}

// LeaderboardService interface for ranking reads.
type LeaderboardService interface {
	GetLeaderboard(ctx context.Context, metric string, limit int) ([]leaderboard.Entry, error)
	GetUserStats(ctx context.Context, userID uint) (*leaderboard.UserStats, error)
}

// HealthChecker reports storage connectivity.
type HealthChecker interface {
	Health() error
}

// Handler handles API requests.
type Handler struct {
	streakService      StreakService
	settlementService  SettlementService
	prizePoolService   PrizePoolService
	badgeService       BadgeService
	leaderboardService LeaderboardService
	health             HealthChecker
	log                *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	streakService StreakService,
	settlementService SettlementService,
	prizePoolService PrizePoolService,
	badgeService BadgeService,
	leaderboardService LeaderboardService,
	health HealthChecker,
	log *logger.Logger,
) *Handler {
	return &Handler{
		streakService:      streakService,
		settlementService:  settlementService,
		prizePoolService:   prizePoolService,
		badgeService:       badgeService,
		leaderboardService: leaderboardService,
		health:             health,
		log:                log.Component("api"),
	}
}

// RegisterRoutes registers all API routes on the router.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.GetHealth)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/users/:id/checkin", h.PostCheckIn)
		v1.POST("/users/:id/freeze", h.PostUseFreeze)
		v1.POST("/users/:id/freeze/purchase", h.PostPurchaseFreeze)
		v1.GET("/users/:id/stats", h.GetUserStats)
		v1.GET("/users/:id/badges", h.GetUserBadges)
		v1.GET("/leaderboard", h.GetLeaderboard)

		admin := v1.Group("/admin")
		{
			admin.POST("/settlement/run", h.PostRunSettlement)
			admin.POST("/challenges/:id/distribute", h.PostDistribute)
		}
	}
}

// GetHealth returns storage connectivity status.
func (h *Handler) GetHealth(c *gin.Context) {
	if h.health != nil {
		if err := h.health.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// PostCheckIn advances the user's streak after a verified check-in.
func (h *Handler) PostCheckIn(c *gin.Context) {
	userID, ok := h.parseID(c)
	if !ok {
		return
	}

	result, err := h.streakService.UpdateStreak(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"streak": result})
}

// PostUseFreeze consumes a freeze token for the user.
func (h *Handler) PostUseFreeze(c *gin.Context) {
	userID, ok := h.parseID(c)
	if !ok {
		return
	}

	result, err := h.streakService.UseFreeze(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"freezes_remaining": result.FreezesAvailable, "streak": result})
}

type purchaseRequest struct {
	Method string `json:"method" binding:"required"`
}

// PostPurchaseFreeze buys a freeze token with points or money.
func (h *Handler) PostPurchaseFreeze(c *gin.Context) {
	userID, ok := h.parseID(c)
	if !ok {
		return
	}

	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "method is required"})
		return
	}

	result, err := h.streakService.PurchaseFreeze(c.Request.Context(), userID, streak.PurchaseMethod(req.Method))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"freezes_available": result.FreezesAvailable, "streak": result})
}

// GetUserStats returns the user's aggregated gamification state.
func (h *Handler) GetUserStats(c *gin.Context) {
	userID, ok := h.parseID(c)
	if !ok {
		return
	}

	stats, err := h.leaderboardService.GetUserStats(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetUserBadges returns badges earned by the user.
func (h *Handler) GetUserBadges(c *gin.Context) {
	userID, ok := h.parseID(c)
	if !ok {
		return
	}

	achievements, err := h.badgeService.GetUserAchievements(userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"achievements": achievements, "count": len(achievements)})
}

// GetLeaderboard returns ranked users for a metric.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	metric := c.DefaultQuery("metric", "points")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	entries, err := h.leaderboardService.GetLeaderboard(c.Request.Context(), metric, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries, "metric": metric})
}

// PostRunSettlement triggers a settlement batch out-of-band.
func (h *Handler) PostRunSettlement(c *gin.Context) {
	settled, err := h.settlementService.RunSettlementBatch(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settled": settled})
}

// PostDistribute runs prize pool distribution for one challenge, for manual
// remediation.
func (h *Handler) PostDistribute(c *gin.Context) {
	challengeID, ok := h.parseID(c)
	if !ok {
		return
	}

	result, err := h.prizePoolService.Distribute(c.Request.Context(), challengeID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// parseID extracts the numeric :id path parameter.
func (h *Handler) parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// writeError maps service errors to HTTP status codes.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrChallengeNotFound),
		errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	case errors.Is(err, prizepool.ErrAlreadyDistributed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	case errors.Is(err, streak.ErrStreakNotAtRisk),
		errors.Is(err, streak.ErrStreakExpired),
		errors.Is(err, streak.ErrNoActiveStreak),
		errors.Is(err, prizepool.ErrNotDistributable),
		errors.Is(err, prizepool.ErrNotSettled):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	case errors.Is(err, streak.ErrNoFreezeAvailable),
		errors.Is(err, streak.ErrInsufficientPoints),
		errors.Is(err, streak.ErrInsufficientBalance),
		errors.Is(err, streak.ErrUnknownMethod):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
