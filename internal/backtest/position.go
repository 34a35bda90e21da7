package backtest

import "github.com/shopspring/decimal"

// PositionSide tags the Position sum type's two non-flat states.
type PositionSide int

const (
	PositionFlat PositionSide = iota
	PositionLong
	PositionShort
)

func (s PositionSide) String() string {
	switch s {
	case PositionLong:
		return "long"
	case PositionShort:
		return "short"
	default:
		return "flat"
	}
}

// Position is the tagged variant: at most one position exists at a time.
// EntryPrice/EntryTime/Quantity/Stop/TakeProfit are only meaningful when
// Side != PositionFlat.
type Position struct {
	Side       PositionSide
	EntryPrice decimal.Decimal
	EntryTime  int64
	Quantity   decimal.Decimal
	Stop       decimal.Decimal
	HasStop    bool
	TakeProfit decimal.Decimal
	HasTake    bool
}

func flatPosition() Position { return Position{Side: PositionFlat} }

func (p Position) isFlat() bool { return p.Side == PositionFlat }

// ExitReason tags why a trade closed.
type ExitReason int

const (
	ExitTarget ExitReason = iota
	ExitStop
	ExitSignal
	ExitEndOfData
)

func (r ExitReason) String() string {
	switch r {
	case ExitTarget:
		return "target"
	case ExitStop:
		return "stop"
	case ExitSignal:
		return "signal"
	case ExitEndOfData:
		return "end_of_data"
	default:
		return "unknown"
	}
}
