package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StrategyType is the broker-side order strategy discriminator.
type StrategyType string

const (
	StrategySingle   StrategyType = "SINGLE"
	StrategyMultileg StrategyType = "MULTILEG"
	StrategyOCO      StrategyType = "OCO"
	StrategyTrigger  StrategyType = "TRIGGER"
)

// Instrument identifies one tradable instrument in the broker's schema.
type Instrument struct {
	AssetType string `json:"assetType"` // EQUITY | OPTION
	Symbol    string `json:"symbol"`
}

// WireLeg is one entry of orderLegCollection in the broker's schema.
type WireLeg struct {
	Instrument  Instrument `json:"instrument"`
	Instruction string     `json:"instruction"`
	Quantity    int        `json:"quantity"`
}

// Spec is the broker wire order. Field names and value formats are a
// pass-through contract with the broker's documented order schema and must
// not be changed: prices travel as strings formatted to two decimals, and
// composite orders nest via childOrderStrategies.
type Spec struct {
	OrderStrategyType    StrategyType `json:"orderStrategyType"`
	OrderType            Type         `json:"orderType,omitempty"`
	Session              Session      `json:"session,omitempty"`
	Duration             Duration     `json:"duration,omitempty"`
	Price                string       `json:"price,omitempty"`
	StopPrice            string       `json:"stopPrice,omitempty"`
	StopPriceLinkBasis   LinkBasis    `json:"stopPriceLinkBasis,omitempty"`
	StopPriceLinkType    LinkType     `json:"stopPriceLinkType,omitempty"`
	StopPriceOffset      float64      `json:"stopPriceOffset,omitempty"`
	OrderLegCollection   []WireLeg    `json:"orderLegCollection,omitempty"`
	ChildOrderStrategies []*Spec      `json:"childOrderStrategies,omitempty"`
}

// OptionSymbol encodes an option leg in the broker's symbology:
// {UNDERLYING}_{YYMMDD}{C|P}{STRIKE} with the strike rendered to two
// decimals and the point removed, e.g. AAPL_251018C19000 for a $190.00
// call expiring 2025-10-18.
func OptionSymbol(underlying, expiration string, right Right, strike decimal.Decimal) (string, error) {
	exp, err := time.Parse("2006-01-02", expiration)
	if err != nil {
		return "", fmt.Errorf("%w: bad expiration %q (want YYYY-MM-DD)", ErrInvalidIntent, expiration)
	}
	var cp string
	switch right {
	case Call:
		cp = "C"
	case Put:
		cp = "P"
	default:
		return "", fmt.Errorf("%w: option leg needs right CALL or PUT", ErrInvalidIntent)
	}
	ks := strings.Replace(strike.StringFixed(2), ".", "", 1)
	return fmt.Sprintf("%s_%s%s%s", underlying, exp.Format("060102"), cp, ks), nil
}

func equityInstrument(symbol string) Instrument {
	return Instrument{AssetType: "EQUITY", Symbol: symbol}
}

func optionInstrument(symbol string, l Leg) (Instrument, error) {
	sym, err := OptionSymbol(symbol, l.Expiration, l.Right, l.Strike)
	if err != nil {
		return Instrument{}, err
	}
	return Instrument{AssetType: "OPTION", Symbol: sym}, nil
}

// wireLeg maps one intent leg onto the broker's leg schema. Equity legs use
// plain Buy/Sell instructions; option legs open positions with
// "Buy to Open"/"Sell to Open".
func wireLeg(symbol string, l Leg) (WireLeg, error) {
	if l.Asset == Stock {
		instr := "Sell"
		if l.Action == Buy {
			instr = "Buy"
		}
		return WireLeg{
			Instrument:  equityInstrument(symbol),
			Instruction: instr,
			Quantity:    l.quantity(),
		}, nil
	}
	in, err := optionInstrument(symbol, l)
	if err != nil {
		return WireLeg{}, err
	}
	instr := "Sell to Open"
	if l.Action == Buy {
		instr = "Buy to Open"
	}
	return WireLeg{
		Instrument:  in,
		Instruction: instr,
		Quantity:    l.quantity(),
	}, nil
}
