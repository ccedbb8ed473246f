// Package schedule computes near-market-close submission times and runs
// the one-shot deferred jobs that carry MOC/LOC orders to the dispatcher.
package schedule

import "time"

// CloseTime is a local wall-clock time of day at which deferred close
// orders are submitted.
type CloseTime struct {
	Hour   int `json:"hour" yaml:"hour"`
	Minute int `json:"minute" yaml:"minute"`
	Second int `json:"second" yaml:"second"`
}

// DefaultCloseTime is ten seconds before the 16:00 equity close, leaving
// room for the submission round trip.
var DefaultCloseTime = CloseTime{Hour: 15, Minute: 59, Second: 50}

// MarketTimezone is the exchange-local zone close times are expressed in.
const MarketTimezone = "America/New_York"

// NextClose returns the next valid close-submission instant at or after
// now: today at ct in loc, rolled forward a day if already past, then
// rolled past any weekend days. Exchange holidays are not considered; that
// needs a trading-calendar source this package does not have.
func NextClose(now time.Time, ct CloseTime, loc *time.Location) time.Time {
	now = now.In(loc)
	target := time.Date(now.Year(), now.Month(), now.Day(), ct.Hour, ct.Minute, ct.Second, 0, loc)
	if !now.Before(target) {
		target = target.AddDate(0, 0, 1)
	}
	for target.Weekday() == time.Saturday || target.Weekday() == time.Sunday {
		target = target.AddDate(0, 0, 1)
	}
	return target
}
