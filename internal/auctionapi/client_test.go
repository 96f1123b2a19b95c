package auctionapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_ListActiveAuctions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantIDs []string
		wantErr bool
	}{
		{
			name:    "bare_array",
			status:  http.StatusOK,
			body:    `[{"id":"a1","startingBid":100},{"_id":"a2","product":{"name":"Wheat","price":"50"}}]`,
			wantIDs: []string{"a1", "a2"},
		},
		{
			name:    "envelope",
			status:  http.StatusOK,
			body:    `{"success":true,"data":[{"auctionId":"a3"}]}`,
			wantIDs: []string{"a3"},
		},
		{name: "empty_body", status: http.StatusOK, body: ``, wantIDs: []string{}},
		{name: "server_error", status: http.StatusInternalServerError, body: `{"error":"boom"}`, wantErr: true},
		{name: "malformed", status: http.StatusOK, body: `{"data":`, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, ActiveAuctionsPath, r.URL.Path)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			auctions, err := NewClient(srv.URL+"/", nil).ListActiveAuctions(context.Background())
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			ids := make([]string, 0, len(auctions))
			for _, a := range auctions {
				ids = append(ids, a.AuctionKey())
			}
			require.Equal(t, tc.wantIDs, ids)
		})
	}
}
