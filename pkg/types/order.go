package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Action is the signal-level direction of an order. Long and Cover map to
// broker-side BUY; Short and Sell map to broker-side SELL (§3).
type Action string

const (
	Long  Action = "LONG"
	Cover Action = "COVER"
	Short Action = "SHORT"
	Sell  Action = "SELL"
)

// BrokerSide is the two-valued BUY/SELL direction an Action collapses to
// once it reaches the broker.
type BrokerSide string

const (
	BrokerBuy  BrokerSide = "BUY"
	BrokerSell BrokerSide = "SELL"
)

// ToBrokerSide maps an Action onto the broker's BUY/SELL convention.
func (a Action) ToBrokerSide() (BrokerSide, error) {
	switch a {
	case Long, Cover:
		return BrokerBuy, nil
	case Short, Sell:
		return BrokerSell, nil
	default:
		return "", fmt.Errorf("%w: unrecognized action %q", ErrDomainValidation, a)
	}
}

// IsEntry reports whether the action opens/adds to a position (Long,
// Short) as opposed to closing one (Sell, Cover) — used by the order
// manager's quantity computation (§4.3).
func (a Action) IsEntry() bool {
	return a == Long || a == Short
}

// OrderType is the order's execution style.
type OrderType string

const (
	OrderTypeMarket   OrderType = "MKT"
	OrderTypeLimit    OrderType = "LMT"
	OrderTypeStopLoss OrderType = "STP"
)

// Order is the sum type over {Market, Limit, StopLoss}. Direction is
// carried entirely by Action; Quantity is always strictly positive (§3).
type Order struct {
	Action     Action
	Quantity   decimal.Decimal
	OrderType  OrderType
	LimitPrice decimal.Decimal // required, > 0, for OrderTypeLimit
	AuxPrice   decimal.Decimal // required, > 0, for OrderTypeStopLoss
}

// NewMarketOrder constructs a validated market order.
func NewMarketOrder(action Action, quantity decimal.Decimal) (Order, error) {
	o := Order{Action: action, Quantity: quantity, OrderType: OrderTypeMarket}
	return o, o.validate()
}

// NewLimitOrder constructs a validated limit order.
func NewLimitOrder(action Action, quantity, limitPrice decimal.Decimal) (Order, error) {
	o := Order{Action: action, Quantity: quantity, OrderType: OrderTypeLimit, LimitPrice: limitPrice}
	return o, o.validate()
}

// NewStopLossOrder constructs a validated stop-loss order.
func NewStopLossOrder(action Action, quantity, auxPrice decimal.Decimal) (Order, error) {
	o := Order{Action: action, Quantity: quantity, OrderType: OrderTypeStopLoss, AuxPrice: auxPrice}
	return o, o.validate()
}

func (o Order) validate() error {
	if _, err := o.Action.ToBrokerSide(); err != nil {
		return err
	}
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("%w: order quantity must be > 0, got %s", ErrDomainValidation, o.Quantity)
	}
	switch o.OrderType {
	case OrderTypeMarket:
		return nil
	case OrderTypeLimit:
		if !o.LimitPrice.IsPositive() {
			return fmt.Errorf("%w: limit order requires limit_price > 0, got %s", ErrDomainValidation, o.LimitPrice)
		}
		return nil
	case OrderTypeStopLoss:
		if !o.AuxPrice.IsPositive() {
			return fmt.Errorf("%w: stop-loss order requires aux_price > 0, got %s", ErrDomainValidation, o.AuxPrice)
		}
		return nil
	default:
		return fmt.Errorf("%w: unrecognized order_type %q", ErrDomainValidation, o.OrderType)
	}
}

// ActiveOrderStatus is the live-order lifecycle state (§3).
type ActiveOrderStatus string

const (
	PendingSubmit ActiveOrderStatus = "PendingSubmit"
	PendingCancel ActiveOrderStatus = "PendingCancel"
	PreSubmitted  ActiveOrderStatus = "PreSubmitted"
	Submitted     ActiveOrderStatus = "Submitted"
	Cancelled     ActiveOrderStatus = "Cancelled"
	Filled        ActiveOrderStatus = "Filled"
	Inactive      ActiveOrderStatus = "Inactive"
)

// ActiveOrder mirrors a live order tracked by the portfolio server (§3).
type ActiveOrder struct {
	PermID        int64
	ClientID      int64
	OrderID       int64
	Account       string
	Ticker        string
	SecType       SecurityType
	Exchange      Venue
	Action        Action
	OrderType     OrderType
	TotalQty      decimal.Decimal
	CashQty       decimal.Decimal
	LimitPrice    decimal.Decimal
	AuxPrice      decimal.Decimal
	Status        ActiveOrderStatus
	Filled        decimal.Decimal
	Remaining     decimal.Decimal
	AvgFillPrice  decimal.Decimal
	LastFillPrice decimal.Decimal
	ParentID      int64
	WhyHeld       string
	MktCapPrice   decimal.Decimal
}
