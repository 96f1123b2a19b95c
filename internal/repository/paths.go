package repository

import "aarath-auction/internal/realtime"

// Store layout
const (
	AuctionsPath           = "auctions"
	GlobalActivityPath     = "activities"
	GlobalParticipantsPath = "participants"
	TotalParticipantsPath  = "auctionMetadata/totalParticipants"
)

// AuctionPath is the room record of one auction
func AuctionPath(auctionID string) string {
	return realtime.Join(AuctionsPath, auctionID)
}

// BidsPath is the bid ledger of one auction
func BidsPath(auctionID string) string {
	return realtime.Join(AuctionsPath, auctionID, "bids")
}

// AuctionActivityPath is the per-auction activity stream
func AuctionActivityPath(auctionID string) string {
	return realtime.Join(AuctionsPath, auctionID, "activity")
}

// AuctionParticipantsPath is the per-auction participant collection
func AuctionParticipantsPath(auctionID string) string {
	return realtime.Join(AuctionsPath, auctionID, "participants")
}

// ParticipantScope decides where participant records and the online counter live
type ParticipantScope string

const (
	// ParticipantsGlobal keeps one presence pool shared by every auction
	ParticipantsGlobal ParticipantScope = "global"
	// ParticipantsPerAuction keys participants by auction and user
	ParticipantsPerAuction ParticipantScope = "auction"
)

// Collection is the participant collection an auction reads
func (s ParticipantScope) Collection(auctionID string) string {
	if s == ParticipantsPerAuction {
		return AuctionParticipantsPath(auctionID)
	}
	return GlobalParticipantsPath
}

// ParticipantPath is the record of one user as seen from an auction
func (s ParticipantScope) ParticipantPath(auctionID, userID string) string {
	return realtime.Join(s.Collection(auctionID), userID)
}

// CounterPath is the online participant counter for an auction
func (s ParticipantScope) CounterPath(auctionID string) string {
	if s == ParticipantsPerAuction {
		return realtime.Join(AuctionsPath, auctionID, "participantCount")
	}
	return TotalParticipantsPath
}
