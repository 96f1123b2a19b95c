package server

import (
	"errors"
	"time"

	handler "aarath-auction/services/bidding/handler"
	wshandler "aarath-auction/services/realtime/handler"

	"github.com/gin-gonic/gin"
)

var errMissingCredentials = errors.New("missing bearer token")

// Service is everything the HTTP and websocket handlers call
type Service interface {
	handler.BiddingServiceInterface
	wshandler.RealtimeServiceInterface
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(service Service, verifier TokenVerifier, heartbeat time.Duration) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(service)
	wsHandler := wshandler.NewWSHandler(service, verifier, heartbeat)

	// the websocket handshake authenticates itself; browsers pass the token as a query parameter
	router.GET("/ws", wsHandler.ServeWS)

	api := router.Group("", AuthMiddleware(verifier))

	auctions := api.Group("/auctions")
	{
		auctions.POST("", biddingHandler.InitAuctionHandler)
		auctions.GET("/:auction_id", biddingHandler.GetAuctionHandler)
		auctions.PUT("/:auction_id/status", RequireUser, biddingHandler.UpdateStatusHandler)
		auctions.POST("/:auction_id/bids", RequireUser, biddingHandler.PlaceBidHandler)
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsHandler)
		auctions.GET("/:auction_id/bids/count", biddingHandler.GetTotalBidsHandler)
		auctions.GET("/:auction_id/users/:user_id/bids/count", biddingHandler.GetUserBidCountHandler)
		auctions.GET("/:auction_id/minimum-bid", biddingHandler.GetMinimumBidHandler)
		auctions.POST("/:auction_id/leave", RequireUser, biddingHandler.LeaveAuctionHandler)
		auctions.GET("/:auction_id/activity", biddingHandler.GetAuctionActivityHandler)
	}

	activity := api.Group("/activity")
	{
		activity.GET("", biddingHandler.GetGlobalActivityHandler)
		activity.GET("/archive", biddingHandler.GetArchivedActivityHandler)
	}

	return router
}
