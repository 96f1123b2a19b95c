package handler

import (
	"context"
	"net/http"

	"aarath-auction/internal/biddingerrors"
	model "aarath-auction/internal/models"
	"aarath-auction/internal/realtime"
	"aarath-auction/services/bidding/helpers"
	"aarath-auction/utils"

	"github.com/gin-gonic/gin"
)

type BiddingServiceInterface interface {
	InitializeAuctionRoom(ctx context.Context, payload model.AuctionPayload) (bool, error)
	GetAuction(ctx context.Context, auctionID string) (model.AuctionRoom, error)
	SetAuctionStatus(ctx context.Context, auctionID string, status model.AuctionStatus) error
	PlaceBid(ctx context.Context, auctionID string, amount float64, user *model.UserIdentity) (string, error)
	GetBids(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetTotalBids(ctx context.Context, auctionID string) (int, error)
	GetUserBidCount(ctx context.Context, auctionID, userID string) (int, error)
	MinimumNextBid(ctx context.Context, auctionID string) (float64, error)
	MinIncrementPercent() float64
	LeaveAuctionRoom(ctx context.Context, sess *realtime.Session, auctionID string, user *model.UserIdentity)
	RecentActivity(ctx context.Context, auctionID string, n int) ([]model.ActivityEntry, error)
	ArchivedActivity(ctx context.Context, auctionID string, limit int) ([]model.ActivityEntry, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// InitAuctionHandler handles POST /auctions
func (h *BiddingHandler) InitAuctionHandler(c *gin.Context) {
	var req model.AuctionPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "InitAuctionHandler", err)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.service.InitializeAuctionRoom(ctx, req); err != nil {
		helpers.HandleServiceError(c, "InitAuctionHandler", err, map[string]any{"auction_id": req.AuctionKey()})
		return
	}

	room, err := h.service.GetAuction(ctx, req.AuctionKey())
	if err != nil {
		helpers.HandleServiceError(c, "InitAuctionHandler", err, map[string]any{"auction_id": req.AuctionKey()})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, room, "auction room initialized")
	helpers.LogSuccess("InitAuctionHandler", "auction room initialized", map[string]any{
		"auction_id":   room.AuctionID,
		"starting_bid": room.StartingBid,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	room, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.HandleServiceError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, room, "auction retrieved successfully")
}

// UpdateStatusHandler handles PUT /auctions/:auction_id/status
func (h *BiddingHandler) UpdateStatusHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	var req helpers.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateStatusHandler", err)
		return
	}

	if err := h.service.SetAuctionStatus(c.Request.Context(), auctionID, req.Status); err != nil {
		helpers.HandleServiceError(c, "UpdateStatusHandler", err, map[string]any{"auction_id": auctionID, "status": req.Status})
		return
	}

	utils.JSONResponse(c, http.StatusOK, gin.H{"auction_id": auctionID, "status": req.Status}, "auction status updated")
	helpers.LogSuccess("UpdateStatusHandler", "auction status updated", map[string]any{
		"auction_id": auctionID,
		"status":     req.Status,
	})
}

// PlaceBidHandler handles POST /auctions/:auction_id/bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	user := helpers.CurrentUser(c)
	if user == nil {
		helpers.HandleServiceError(c, "PlaceBidHandler", biddingerrors.ErrUnauthenticated, map[string]any{"auction_id": auctionID})
		return
	}

	bidID, err := h.service.PlaceBid(c.Request.Context(), auctionID, req.Amount, user)
	if err != nil {
		helpers.HandleServiceError(c, "PlaceBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    user.UserID,
			"amount":     req.Amount,
		})
		return
	}

	resp := helpers.PlaceBidResponse{
		BidID:     bidID,
		AuctionID: auctionID,
		UserID:    user.UserID,
		Amount:    req.Amount,
	}

	utils.JSONResponse(c, http.StatusCreated, resp, "bid recorded successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":     bidID,
		"auction_id": auctionID,
		"user_id":    user.UserID,
		"amount":     req.Amount,
	})
}

// GetBidsHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetBidsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.service.GetBids(c.Request.Context(), auctionID)
	if err != nil {
		helpers.HandleServiceError(c, "GetBidsHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	if bids == nil {
		bids = []model.Bid{}
	}

	utils.JSONResponse(c, http.StatusOK, bids, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(bids),
	})
}

// GetTotalBidsHandler handles GET /auctions/:auction_id/bids/count
func (h *BiddingHandler) GetTotalBidsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	n, err := h.service.GetTotalBids(c.Request.Context(), auctionID)
	if err != nil {
		helpers.HandleServiceError(c, "GetTotalBidsHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.CountResponse{AuctionID: auctionID, Count: n}, "bid count retrieved successfully")
}

// GetUserBidCountHandler handles GET /auctions/:auction_id/users/:user_id/bids/count
func (h *BiddingHandler) GetUserBidCountHandler(c *gin.Context) {
	auctionID, userID := c.Param("auction_id"), c.Param("user_id")
	n, err := h.service.GetUserBidCount(c.Request.Context(), auctionID, userID)
	if err != nil {
		helpers.HandleServiceError(c, "GetUserBidCountHandler", err, map[string]any{"auction_id": auctionID, "user_id": userID})
		return
	}

	resp := helpers.CountResponse{AuctionID: auctionID, UserID: userID, Count: n}
	utils.JSONResponse(c, http.StatusOK, resp, "user bid count retrieved successfully")
}

// GetMinimumBidHandler handles GET /auctions/:auction_id/minimum-bid
func (h *BiddingHandler) GetMinimumBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	minBid, err := h.service.MinimumNextBid(c.Request.Context(), auctionID)
	if err != nil {
		helpers.HandleServiceError(c, "GetMinimumBidHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	resp := helpers.MinimumBidResponse{
		AuctionID:        auctionID,
		MinimumBid:       minBid,
		IncrementPercent: h.service.MinIncrementPercent(),
	}
	utils.JSONResponse(c, http.StatusOK, resp, "minimum bid retrieved successfully")
}

// LeaveAuctionHandler handles POST /auctions/:auction_id/leave. Leaving is best
// effort and always answers 200 for an authenticated user.
func (h *BiddingHandler) LeaveAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	user := helpers.CurrentUser(c)
	if user == nil {
		helpers.HandleServiceError(c, "LeaveAuctionHandler", biddingerrors.ErrUnauthenticated, map[string]any{"auction_id": auctionID})
		return
	}

	h.service.LeaveAuctionRoom(c.Request.Context(), nil, auctionID, user)

	utils.JSONResponse(c, http.StatusOK, gin.H{"auction_id": auctionID}, "left auction room")
	helpers.LogSuccess("LeaveAuctionHandler", "left auction room", map[string]any{
		"auction_id": auctionID,
		"user_id":    user.UserID,
	})
}

// GetAuctionActivityHandler handles GET /auctions/:auction_id/activity
func (h *BiddingHandler) GetAuctionActivityHandler(c *gin.Context) {
	h.activity(c, "GetAuctionActivityHandler", c.Param("auction_id"))
}

// GetGlobalActivityHandler handles GET /activity
func (h *BiddingHandler) GetGlobalActivityHandler(c *gin.Context) {
	h.activity(c, "GetGlobalActivityHandler", "")
}

func (h *BiddingHandler) activity(c *gin.Context, handlerName, auctionID string) {
	limit, err := helpers.ParseLimit(c, 0)
	if err != nil {
		helpers.HandleServiceError(c, handlerName, err, nil)
		return
	}

	entries, err := h.service.RecentActivity(c.Request.Context(), auctionID, limit)
	if err != nil {
		helpers.HandleServiceError(c, handlerName, err, map[string]any{"auction_id": auctionID})
		return
	}
	if entries == nil {
		entries = []model.ActivityEntry{}
	}

	utils.JSONResponse(c, http.StatusOK, entries, "activity retrieved successfully")
}

// GetArchivedActivityHandler handles GET /activity/archive?auction_id=&limit=
func (h *BiddingHandler) GetArchivedActivityHandler(c *gin.Context) {
	auctionID := c.Query("auction_id")
	limit, err := helpers.ParseLimit(c, 100)
	if err != nil {
		helpers.HandleServiceError(c, "GetArchivedActivityHandler", err, nil)
		return
	}

	entries, err := h.service.ArchivedActivity(c.Request.Context(), auctionID, limit)
	if err != nil {
		helpers.HandleServiceError(c, "GetArchivedActivityHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	if entries == nil {
		entries = []model.ActivityEntry{}
	}

	utils.JSONResponse(c, http.StatusOK, entries, "archived activity retrieved successfully")
}
