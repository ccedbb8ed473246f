// Package order defines the broker-neutral order intent, the broker wire
// order tree, and the pure composer that maps one to the other.
package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Type is the normalized order type requested by the caller.
type Type string

const (
	Market        Type = "MARKET"
	Limit         Type = "LIMIT"
	Stop          Type = "STOP"
	StopLimit     Type = "STOP_LIMIT"
	TrailingStop  Type = "TRAILING_STOP"
	OCO           Type = "OCO"
	Bracket       Type = "BRACKET"
	FirstTriggers Type = "FIRST_TRIGGERS"
	MOC           Type = "MOC"
	LOC           Type = "LOC"
)

// Session selects the trading session an order is valid for.
type Session string

const (
	SessionNormal Session = "NORMAL"
	SessionAM     Session = "AM"
	SessionPM     Session = "PM"
)

// Duration is the order time-in-force.
type Duration string

const (
	Day            Duration = "DAY"
	GoodTillCancel Duration = "GOOD_TILL_CANCEL"
)

// Action is the direction of a single leg.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

// AssetClass distinguishes equity legs from option legs.
type AssetClass string

const (
	Stock  AssetClass = "STOCK"
	Option AssetClass = "OPTION"
)

// Right is the option right for option legs.
type Right string

const (
	Call Right = "CALL"
	Put  Right = "PUT"
)

// LinkType is how a trailing stop's offset is interpreted.
type LinkType string

const (
	LinkValue   LinkType = "VALUE"
	LinkPercent LinkType = "PERCENT"
)

// LinkBasis is the price a trailing stop trails.
type LinkBasis string

const (
	BasisLast LinkBasis = "LAST"
	BasisBid  LinkBasis = "BID"
	BasisAsk  LinkBasis = "ASK"
)

// Trail holds trailing-stop parameters.
type Trail struct {
	LinkType  LinkType        `json:"linkType"`
	LinkBasis LinkBasis       `json:"linkBasis"`
	Offset    decimal.Decimal `json:"offset"`
}

// Attached carries the exit prices used to derive OCO/bracket children.
type Attached struct {
	Target    *decimal.Decimal `json:"target,omitempty"`
	Stop      *decimal.Decimal `json:"stop,omitempty"`
	StopLimit *decimal.Decimal `json:"stopLimit,omitempty"`
}

// Leg is one instrument instruction within an intent.
type Leg struct {
	Action     Action          `json:"action"`
	Asset      AssetClass      `json:"asset"`
	Right      Right           `json:"right,omitempty"`
	Strike     decimal.Decimal `json:"strike,omitempty"`
	Expiration string          `json:"expiration,omitempty"` // YYYY-MM-DD
	Quantity   int             `json:"quantity,omitempty"`
}

// Intent is a caller-constructed, broker-neutral order description. It is
// treated as immutable once submitted.
type Intent struct {
	AccountID      string           `json:"accountId"`
	Symbol         string           `json:"symbol"`
	Type           Type             `json:"orderType"`
	Session        Session          `json:"session,omitempty"`
	Duration       Duration         `json:"duration,omitempty"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	StopPrice      *decimal.Decimal `json:"stopPrice,omitempty"`
	Trail          *Trail           `json:"trail,omitempty"`
	Attached       *Attached        `json:"attached,omitempty"`
	LOCPrice       *decimal.Decimal `json:"locPrice,omitempty"`
	Legs           []Leg            `json:"legs"`
	IdempotencyKey string           `json:"idempotencyKey,omitempty"`
}

// Stake is the notional value used for risk admission: limit price (or LOC
// price for close orders) times total leg quantity. Orders with no price
// attached (pure market orders) have an unknown notional and stake zero.
func (in Intent) Stake() decimal.Decimal {
	px := in.Price
	if in.Type == LOC {
		px = in.LOCPrice
	}
	if px == nil {
		return decimal.Zero
	}
	qty := 0
	for _, l := range in.Legs {
		qty += l.quantity()
	}
	return px.Mul(decimal.NewFromInt(int64(qty)))
}

func (l Leg) quantity() int {
	if l.Quantity <= 0 {
		return 1
	}
	return l.Quantity
}

func (in Intent) session() Session {
	if in.Session == "" {
		return SessionNormal
	}
	return in.Session
}

func (in Intent) duration() Duration {
	if in.Duration == Day || in.Duration == "" {
		return Day
	}
	return GoodTillCancel
}

// ResolveClose rewrites a deferred MOC/LOC intent into the concrete order
// submitted near the close: MOC becomes MARKET, LOC becomes LIMIT at the
// intent's locPrice. Any other type is returned unchanged.
func ResolveClose(in Intent) (Intent, error) {
	switch in.Type {
	case MOC:
		in.Type = Market
		in.Price = nil
		return in, nil
	case LOC:
		if in.LOCPrice == nil {
			return in, fmt.Errorf("%w: LOC order has no locPrice", ErrInvalidIntent)
		}
		in.Type = Limit
		in.Price = in.LOCPrice
		return in, nil
	default:
		return in, nil
	}
}
