package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidIntent marks a malformed or incomplete intent. Such orders
	// are rejected synchronously and never reach the broker.
	ErrInvalidIntent = errors.New("invalid order intent")

	// ErrUnsupportedType marks an order type the composer cannot map and
	// cannot safely fall back from.
	ErrUnsupportedType = errors.New("unsupported order type")
)

// DeferredKind tags a composed order that must be scheduled rather than
// submitted immediately.
type DeferredKind string

const (
	DeferNone DeferredKind = ""
	DeferMOC  DeferredKind = "MOC"
	DeferLOC  DeferredKind = "LOC"
)

// Composed is the result of composing an intent: either a concrete broker
// order tree, or a deferred marker telling the dispatcher to hand the intent
// to the close scheduler and resolve the concrete type at fire time.
type Composed struct {
	Deferred     bool
	DeferredKind DeferredKind
	Intent       Intent // carried verbatim for deferred orders
	Spec         *Spec  // nil when Deferred
}

// Compose maps a normalized intent onto the broker's order tree. It is a
// pure function: no I/O, no state, deterministic for a given intent.
func Compose(in Intent) (Composed, error) {
	if len(in.Legs) == 0 {
		return Composed{}, fmt.Errorf("%w: no legs", ErrInvalidIntent)
	}

	switch in.Type {
	case Market, Limit, Stop, StopLimit, TrailingStop:
		spec, err := leaf(in, in.Type, in.Price, in.StopPrice, in.Trail)
		if err != nil {
			return Composed{}, err
		}
		return Composed{Intent: in, Spec: spec}, nil

	case OCO:
		spec, err := composeOCO(in)
		if err != nil {
			return Composed{}, err
		}
		return Composed{Intent: in, Spec: spec}, nil

	case Bracket:
		entry, err := entryLeaf(in)
		if err != nil {
			return Composed{}, err
		}
		oco, err := composeOCO(in)
		if err != nil {
			return Composed{}, err
		}
		return Composed{Intent: in, Spec: trigger(entry, oco)}, nil

	case FirstTriggers:
		entry, err := entryLeaf(in)
		if err != nil {
			return Composed{}, err
		}
		child, err := firstTriggersChild(in)
		if err != nil {
			return Composed{}, err
		}
		return Composed{Intent: in, Spec: trigger(entry, child)}, nil

	case MOC, LOC:
		// Public broker order endpoints do not accept on-close flags, so
		// these are scheduled server-side and resolved near the close.
		kind := DeferMOC
		if in.Type == LOC {
			kind = DeferLOC
		}
		return Composed{Deferred: true, DeferredKind: kind, Intent: in}, nil

	default:
		// Safe fallback: treat an unknown type as a limit order when a
		// price is available.
		if in.Price == nil {
			return Composed{}, fmt.Errorf("%w: %q", ErrUnsupportedType, in.Type)
		}
		spec, err := leaf(in, Limit, in.Price, nil, nil)
		if err != nil {
			return Composed{}, err
		}
		return Composed{Intent: in, Spec: spec}, nil
	}
}

// leaf builds a single non-composite order. SINGLE for one leg, MULTILEG for
// spreads and other multi-leg structures.
func leaf(in Intent, t Type, price, stopPrice *decimal.Decimal, trail *Trail) (*Spec, error) {
	strat := StrategySingle
	if len(in.Legs) > 1 {
		strat = StrategyMultileg
	}
	spec := &Spec{
		OrderStrategyType: strat,
		OrderType:         t,
		Session:           in.session(),
		Duration:          in.duration(),
	}
	for _, l := range in.Legs {
		wl, err := wireLeg(in.Symbol, l)
		if err != nil {
			return nil, err
		}
		spec.OrderLegCollection = append(spec.OrderLegCollection, wl)
	}

	switch t {
	case Limit:
		if price == nil {
			return nil, fmt.Errorf("%w: LIMIT order needs a price", ErrInvalidIntent)
		}
		spec.Price = price.StringFixed(2)
	case Stop:
		if stopPrice == nil {
			return nil, fmt.Errorf("%w: STOP order needs a stop price", ErrInvalidIntent)
		}
		spec.StopPrice = stopPrice.StringFixed(2)
	case StopLimit:
		if price == nil || stopPrice == nil {
			return nil, fmt.Errorf("%w: STOP_LIMIT order needs price and stop price", ErrInvalidIntent)
		}
		spec.Price = price.StringFixed(2)
		spec.StopPrice = stopPrice.StringFixed(2)
	case TrailingStop:
		if trail == nil {
			return nil, fmt.Errorf("%w: TRAILING_STOP order needs trail parameters", ErrInvalidIntent)
		}
		spec.StopPriceLinkBasis = trail.LinkBasis
		if spec.StopPriceLinkBasis == "" {
			spec.StopPriceLinkBasis = BasisLast
		}
		spec.StopPriceLinkType = trail.LinkType
		if spec.StopPriceLinkType == "" {
			spec.StopPriceLinkType = LinkValue
		}
		spec.StopPriceOffset = trail.Offset.InexactFloat64()
	}
	return spec, nil
}

// entryLeaf builds the entry order for BRACKET/FIRST_TRIGGERS: a limit order
// when a price is given, otherwise a market order.
func entryLeaf(in Intent) (*Spec, error) {
	if in.Price != nil {
		return leaf(in, Limit, in.Price, nil, nil)
	}
	return leaf(in, Market, nil, nil, nil)
}

// composeOCO builds the one-cancels-other pair from the attached exits: a
// profit-taking limit at the target plus a protective stop (or stop-limit
// when a stop-limit price is given).
func composeOCO(in Intent) (*Spec, error) {
	att := in.Attached
	if att == nil || (att.Target == nil && att.Stop == nil && att.StopLimit == nil) {
		return nil, fmt.Errorf("%w: OCO needs attached target and/or stop", ErrInvalidIntent)
	}

	var children []*Spec
	if att.Target != nil {
		tgt, err := leaf(in, Limit, att.Target, nil, nil)
		if err != nil {
			return nil, err
		}
		children = append(children, tgt)
	}
	if att.StopLimit != nil {
		stp, err := leaf(in, StopLimit, att.StopLimit, att.Stop, nil)
		if err != nil {
			return nil, err
		}
		children = append(children, stp)
	} else if att.Stop != nil {
		stp, err := leaf(in, Stop, nil, att.Stop, nil)
		if err != nil {
			return nil, err
		}
		children = append(children, stp)
	}

	return &Spec{OrderStrategyType: StrategyOCO, ChildOrderStrategies: children}, nil
}

// firstTriggersChild picks the single triggered exit by priority:
// target (limit), then stop-limit, then stop.
func firstTriggersChild(in Intent) (*Spec, error) {
	att := in.Attached
	if att == nil {
		return nil, fmt.Errorf("%w: FIRST_TRIGGERS needs an attached exit", ErrInvalidIntent)
	}
	switch {
	case att.Target != nil:
		return leaf(in, Limit, att.Target, nil, nil)
	case att.StopLimit != nil:
		return leaf(in, StopLimit, att.StopLimit, att.Stop, nil)
	case att.Stop != nil:
		return leaf(in, Stop, nil, att.Stop, nil)
	default:
		return nil, fmt.Errorf("%w: FIRST_TRIGGERS needs an attached exit", ErrInvalidIntent)
	}
}

// trigger wraps an entry order so that its fill triggers the children.
func trigger(entry *Spec, children ...*Spec) *Spec {
	out := *entry
	out.OrderStrategyType = StrategyTrigger
	out.ChildOrderStrategies = children
	return &out
}
