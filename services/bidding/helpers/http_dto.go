package helpers

import model "aarath-auction/internal/models"

// Request/Response DTOs
type PlaceBidRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

type PlaceBidResponse struct {
	BidID     string  `json:"bid_id"`
	AuctionID string  `json:"auction_id"`
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
}

type UpdateStatusRequest struct {
	Status model.AuctionStatus `json:"status" binding:"required,oneof=active ended paused"`
}

type CountResponse struct {
	AuctionID string `json:"auction_id"`
	UserID    string `json:"user_id,omitempty"`
	Count     int    `json:"count"`
}

type MinimumBidResponse struct {
	AuctionID        string  `json:"auction_id"`
	MinimumBid       float64 `json:"minimum_bid"`
	IncrementPercent float64 `json:"increment_percent"`
}
