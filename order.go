package clob

import (
	"sync"

	"github.com/shopspring/decimal"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = 2
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return "unknown"
}

// OrderKind distinguishes limit orders from market orders. The behavioral
// differences are confined to price validation and matching-price semantics,
// so a tag is enough; there is no order class hierarchy.
type OrderKind string

const (
	Limit  OrderKind = "limit"
	Market OrderKind = "market"
)

// TimeInForce controls what happens to the unfilled remainder of an order.
type TimeInForce string

const (
	GTC TimeInForce = "gtc" // rest until cancelled
	IOC TimeInForce = "ioc" // match what is possible, cancel the rest
	FOK TimeInForce = "fok" // fill completely or reject without trading
)

type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusAccepted        OrderStatus = "accepted"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRejected        OrderStatus = "rejected"
)

// IsTerminal reports whether the status is absorbing.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Order holds the immutable identity of a client order plus its mutable
// execution progress. Identity fields are set at construction and never
// change; progress fields (status, filled quantity) are guarded by a small
// mutex so that observer callbacks and status queries can read them while a
// book mutates the order under its own write lock.
type Order struct {
	id      string
	userID  string
	side    Side
	kind    OrderKind
	symbol  string
	tif     TimeInForce
	arrival int64

	mu       sync.RWMutex
	quantity int64
	price    decimal.Decimal
	status   OrderStatus
	filled   int64

	// Intrusive FIFO links, owned by the queue that holds the order.
	next *Order
	prev *Order
}

// NewLimitOrder builds a limit order in status pending.
func NewLimitOrder(id, userID string, side Side, symbol string, quantity int64, price decimal.Decimal, tif TimeInForce, arrival int64) *Order {
	return &Order{
		id:       id,
		userID:   userID,
		side:     side,
		kind:     Limit,
		symbol:   symbol,
		tif:      tif,
		arrival:  arrival,
		quantity: quantity,
		price:    price,
		status:   StatusPending,
	}
}

// NewMarketOrder builds a market order in status pending. Market orders carry
// price 0; for matching they behave as +inf (buy) or -inf (sell).
func NewMarketOrder(id, userID string, side Side, symbol string, quantity int64, tif TimeInForce, arrival int64) *Order {
	return &Order{
		id:       id,
		userID:   userID,
		side:     side,
		kind:     Market,
		symbol:   symbol,
		tif:      tif,
		arrival:  arrival,
		quantity: quantity,
		price:    decimal.Zero,
		status:   StatusPending,
	}
}

func (o *Order) ID() string               { return o.id }
func (o *Order) UserID() string           { return o.userID }
func (o *Order) Side() Side               { return o.side }
func (o *Order) Kind() OrderKind          { return o.kind }
func (o *Order) Symbol() string           { return o.symbol }
func (o *Order) TimeInForce() TimeInForce { return o.tif }
func (o *Order) ArrivalTime() int64       { return o.arrival }

func (o *Order) Quantity() int64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.quantity
}

func (o *Order) Price() decimal.Decimal {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.price
}

func (o *Order) Status() OrderStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

func (o *Order) FilledQuantity() int64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.filled
}

func (o *Order) RemainingQuantity() int64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.quantity - o.filled
}

// SetQuantity replaces the total quantity. It succeeds only while the order
// is still modifiable and the new quantity is in range.
func (o *Order) SetQuantity(q int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if q < 1 || q > MaxOrderQuantity {
		return false
	}
	if !canModifyStatus(o.status) {
		return false
	}
	o.quantity = q
	return true
}

// SetPrice replaces the limit price. Market orders have no client-controlled
// price, so the call always fails for them.
func (o *Order) SetPrice(p decimal.Decimal) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.kind == Market {
		return false
	}
	if p.LessThan(MinOrderPrice) || p.GreaterThan(MaxOrderPrice) {
		return false
	}
	if !canModifyStatus(o.status) {
		return false
	}
	o.price = p
	return true
}

// Fill records an execution of n units. n must be positive and no larger
// than the remaining quantity; anything else leaves the order untouched.
func (o *Order) Fill(n int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n <= 0 || n > o.quantity-o.filled {
		return
	}
	o.filled += n
	if o.filled == o.quantity {
		o.status = StatusFilled
	} else {
		o.status = StatusPartiallyFilled
	}
}

func canModifyStatus(s OrderStatus) bool {
	return s == StatusPending || s == StatusAccepted
}

// CanModify reports whether quantity/price changes are still permitted.
func (o *Order) CanModify() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return canModifyStatus(o.status)
}

// CanCancel reports whether the order can still be cancelled.
func (o *Order) CanCancel() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status == StatusPending || o.status == StatusAccepted || o.status == StatusPartiallyFilled
}

// IsValid checks identity fields and range rules per kind.
func (o *Order) IsValid() bool {
	if o == nil || o.id == "" || o.userID == "" || o.symbol == "" {
		return false
	}
	if o.side != Buy && o.side != Sell {
		return false
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.quantity < 1 || o.quantity > MaxOrderQuantity {
		return false
	}
	switch o.kind {
	case Market:
		return o.price.IsZero()
	case Limit:
		return !o.price.LessThan(MinOrderPrice) && !o.price.GreaterThan(MaxOrderPrice)
	}
	return false
}

// accept moves the order into the book. Only a pending order can be accepted.
func (o *Order) accept() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status != StatusPending {
		return false
	}
	o.status = StatusAccepted
	return true
}

// reject marks the order rejected. Terminal statuses are sticky.
func (o *Order) reject() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status.IsTerminal() {
		return false
	}
	o.status = StatusRejected
	return true
}

// cancel marks the order cancelled if it is still live.
func (o *Order) cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status != StatusPending && o.status != StatusAccepted && o.status != StatusPartiallyFilled {
		return false
	}
	o.status = StatusCancelled
	return true
}

// clone builds a pending replacement carrying the same identity but a fresh
// arrival stamp. Used by modify: losing time priority is intentional.
func (o *Order) clone(arrival int64) *Order {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return &Order{
		id:       o.id,
		userID:   o.userID,
		side:     o.side,
		kind:     o.kind,
		symbol:   o.symbol,
		tif:      o.tif,
		arrival:  arrival,
		quantity: o.quantity,
		price:    o.price,
		status:   StatusPending,
	}
}
