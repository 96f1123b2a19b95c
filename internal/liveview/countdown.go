package liveview

import (
	"fmt"
	"time"
)

// Countdown is the time left until an auction ends
type Countdown struct {
	Days    int  `json:"days"`
	Hours   int  `json:"hours"`
	Minutes int  `json:"minutes"`
	Seconds int  `json:"seconds"`
	Ended   bool `json:"ended"`
}

// TimeLeft splits the time between now and endMillis. A zero end time means the
// auction has no scheduled end.
func TimeLeft(endMillis int64, now time.Time) Countdown {
	if endMillis == 0 {
		return Countdown{}
	}
	left := time.UnixMilli(endMillis).Sub(now)
	if left <= 0 {
		return Countdown{Ended: true}
	}
	secs := int(left / time.Second)
	return Countdown{
		Days:    secs / 86400,
		Hours:   secs % 86400 / 3600,
		Minutes: secs % 3600 / 60,
		Seconds: secs % 60,
	}
}

func (c Countdown) String() string {
	if c.Ended {
		return "ended"
	}
	if c.Days > 0 {
		return fmt.Sprintf("%dd %02dh %02dm %02ds", c.Days, c.Hours, c.Minutes, c.Seconds)
	}
	return fmt.Sprintf("%02dh %02dm %02ds", c.Hours, c.Minutes, c.Seconds)
}
