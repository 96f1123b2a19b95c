package integrationtests

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"aarath-auction/internal/auth"
	bidding "aarath-auction/internal/biddingService"
	model "aarath-auction/internal/models"
	"aarath-auction/internal/realtime"
	"aarath-auction/internal/server"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

const testSecret = "integration-secret"

// testEnv is a router over a fresh in-memory store
type testEnv struct {
	router   *gin.Engine
	service  *bidding.BiddingService
	verifier *auth.Verifier
}

// SetupTestRouter initializes the router with an in-memory store for integration testing.
func SetupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := realtime.NewMemoryStore(realtime.WithMaxRetries(1000))
	t.Cleanup(func() { _ = store.Close() })

	service := bidding.NewBiddingService(store, bidding.Options{MinIncrementPct: 1, ActivityWindow: 20, ActivityRetention: 50})
	verifier := auth.NewVerifier(testSecret)
	return &testEnv{
		router:   server.SetupRouter(service, verifier, 0),
		service:  service,
		verifier: verifier,
	}
}

// SetupTestRouterWithAuctions initializes the router and seeds the store with rooms.
func SetupTestRouterWithAuctions(t *testing.T, auctions ...model.AuctionPayload) *testEnv {
	t.Helper()
	env := SetupTestRouter(t)
	for _, a := range auctions {
		_, err := env.service.InitializeAuctionRoom(context.Background(), a)
		require.NoError(t, err)
	}
	return env
}

// Token issues a bearer token for user
func (e *testEnv) Token(t *testing.T, user model.UserIdentity) string {
	t.Helper()
	token, err := e.verifier.Issue(user, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

// ExecuteRequestAndParse executes an HTTP request on the router and parses the response envelope
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url, token string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

func auction(id string, startingBid float64) model.AuctionPayload {
	sb := model.FlexNumber(startingBid)
	return model.AuctionPayload{ID: id, Title: "Lot " + id, StartingBid: &sb}
}
