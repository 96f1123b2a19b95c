package activity

import (
	"fmt"

	model "aarath-auction/internal/models"

	"github.com/shopspring/decimal"
)

// BidEntry describes a placed bid
func BidEntry(auctionID, bidID, userID, userName string, amount float64) model.ActivityEntry {
	return model.ActivityEntry{
		Type:      model.ActivityBid,
		AuctionID: auctionID,
		UserID:    userID,
		UserName:  userName,
		Message:   fmt.Sprintf("%s placed a bid of ₹%s", userName, decimal.NewFromFloat(amount).StringFixed(2)),
		Data: map[string]any{
			"bidAmount": amount,
			"bidId":     bidID,
		},
	}
}

// JoinEntry describes a participant coming online in an auction
func JoinEntry(auctionID, userID, userName string) model.ActivityEntry {
	return model.ActivityEntry{
		Type:      model.ActivityJoin,
		AuctionID: auctionID,
		UserID:    userID,
		UserName:  userName,
		Message:   fmt.Sprintf("%s joined the auction", userName),
	}
}

// LeaveEntry describes a graceful leave
func LeaveEntry(auctionID, userID, userName string) model.ActivityEntry {
	return model.ActivityEntry{
		Type:      model.ActivityLeave,
		AuctionID: auctionID,
		UserID:    userID,
		UserName:  userName,
		Message:   fmt.Sprintf("%s left the auction", userName),
	}
}

// StatusEntry describes an auction status transition
func StatusEntry(auctionID string, from, to model.AuctionStatus) model.ActivityEntry {
	return model.ActivityEntry{
		Type:      model.ActivityStatusChange,
		AuctionID: auctionID,
		UserName:  "system",
		Message:   fmt.Sprintf("Auction status changed from %s to %s", from, to),
		Data: map[string]any{
			"from": string(from),
			"to":   string(to),
		},
	}
}
