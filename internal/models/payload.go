package models

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"aarath-auction/internal/biddingerrors"

	json "github.com/goccy/go-json"
)

// FlexNumber decodes a JSON number or a numeric string
type FlexNumber float64

func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("flex number %q: %w", s, err)
		}
		*n = FlexNumber(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = FlexNumber(v)
	return nil
}

// FlexTime decodes an RFC3339 string, a numeric string or epoch milliseconds.
// The zero value means unset.
type FlexTime int64

func (t *FlexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '"' {
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*t = FlexTime(int64(v))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*t = FlexTime(ms)
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("flex time %q: %w", s, err)
	}
	*t = FlexTime(parsed.UnixMilli())
	return nil
}

// PayloadProduct is the nested product of the raw API auction shape
type PayloadProduct struct {
	ID       string      `json:"id"`
	MongoID  string      `json:"_id"`
	Name     string      `json:"name"`
	Title    string      `json:"title"`
	Price    *FlexNumber `json:"price"`
	Category string      `json:"category"`
}

// PayloadSeller is the nested seller of the raw API auction shape
type PayloadSeller struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	BusinessName string `json:"businessName"`
}

// AuctionPayload accepts both the raw REST auction and the transformed UI auction.
// Normalize is the only place where the candidate fields are resolved.
type AuctionPayload struct {
	ID                string          `json:"id"`
	AuctionID         string          `json:"auctionId"`
	MongoID           string          `json:"_id"`
	ProductID         string          `json:"productId"`
	Title             string          `json:"title"`
	ProductName       string          `json:"productName"`
	StartingBid       *FlexNumber     `json:"startingBid"`
	StartingPrice     *FlexNumber     `json:"startingPrice"`
	BasePrice         *FlexNumber     `json:"basePrice"`
	CurrentBid        *FlexNumber     `json:"currentBid"`
	CurrentHighestBid *FlexNumber     `json:"currentHighestBid"`
	StartTime         FlexTime        `json:"startTime"`
	CreatedAt         FlexTime        `json:"createdAt"`
	EndTime           FlexTime        `json:"endTime"`
	EndsAt            FlexTime        `json:"endsAt"`
	AuctionEndTime    FlexTime        `json:"auctionEndTime"`
	Status            string          `json:"status"`
	Product           *PayloadProduct `json:"product,omitempty"`
	Seller            *PayloadSeller  `json:"seller,omitempty"`
}

// AuctionKey returns the auction id from whichever id field is populated
func (p AuctionPayload) AuctionKey() string {
	return firstString(p.ID, p.AuctionID, p.MongoID)
}

// Normalize builds the initial AuctionRoom record
func (p AuctionPayload) Normalize(now time.Time) (AuctionRoom, error) {
	id := p.AuctionKey()
	if id == "" {
		return AuctionRoom{}, biddingerrors.ErrMissingAuctionID
	}
	if strings.ContainsAny(id, "/.#$[]") {
		return AuctionRoom{}, fmt.Errorf("%w - auction id %q contains a reserved character", biddingerrors.ErrInvalidAuction, id)
	}

	var product PayloadProduct
	if p.Product != nil {
		product = *p.Product
	}

	startingBid := firstNumber(p.StartingBid, p.StartingPrice, p.BasePrice, product.Price)
	if startingBid < 0 || math.IsNaN(startingBid) || math.IsInf(startingBid, 0) {
		return AuctionRoom{}, fmt.Errorf("%w - starting bid %v", biddingerrors.ErrInvalidAuction, startingBid)
	}
	current := firstNumber(p.CurrentHighestBid, p.CurrentBid)
	if current < startingBid || math.IsNaN(current) || math.IsInf(current, 0) {
		current = startingBid
	}

	status := AuctionStatus(strings.ToLower(strings.TrimSpace(p.Status)))
	if status == "" {
		status = StatusActive
	}
	if !status.Valid() {
		return AuctionRoom{}, fmt.Errorf("%w - unknown status %q", biddingerrors.ErrInvalidAuction, p.Status)
	}

	start := firstTime(p.StartTime, p.CreatedAt)
	if start == 0 {
		start = now.UnixMilli()
	}

	return AuctionRoom{
		AuctionID:         id,
		ProductID:         firstString(p.ProductID, product.ID, product.MongoID),
		Title:             firstString(p.Title, p.ProductName, product.Name, product.Title),
		Status:            status,
		StartTime:         start,
		EndTime:           firstTime(p.EndTime, p.EndsAt, p.AuctionEndTime),
		StartingBid:       startingBid,
		CurrentHighestBid: current,
		TotalBids:         0,
	}, nil
}

func firstString(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func firstNumber(values ...*FlexNumber) float64 {
	for _, v := range values {
		if v != nil {
			return float64(*v)
		}
	}
	return 0
}

func firstTime(values ...FlexTime) int64 {
	for _, v := range values {
		if v != 0 {
			return int64(v)
		}
	}
	return 0
}
