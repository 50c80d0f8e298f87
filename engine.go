package clob

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine multiplexes order books by symbol, validates client requests, and
// publishes events to subscribers.
//
// The engine lock protects the books, users, allOrders, and observers maps;
// it is always acquired before a book lock and never held across a book
// write call. Handles are copied out under the engine lock, the lock is
// released, and only then does the engine call into the book.
type Engine struct {
	ids   IDGenerator
	clock Clock

	mu        sync.RWMutex
	books     map[string]*OrderBook
	users     map[string]*User
	allOrders map[string]*Order
	observers []EventSink
}

// EngineOption customizes an Engine at construction time.
type EngineOption func(*Engine)

// WithIDGenerator replaces the default xid-backed id generator.
func WithIDGenerator(ids IDGenerator) EngineOption {
	return func(e *Engine) { e.ids = ids }
}

// WithClock replaces the default monotonic clock.
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine creates an engine with no users, books, or observers.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		books:     make(map[string]*OrderBook),
		users:     make(map[string]*User),
		allOrders: make(map[string]*Order),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ids == nil {
		e.ids = NewXIDGenerator()
	}
	if e.clock == nil {
		e.clock = NewMonotonicClock()
	}
	return e
}

// RegisterUser adds a user to the registry.
func (e *Engine) RegisterUser(user *User) error {
	if !user.IsValid() {
		return ErrInvalidParam
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.users[user.ID]; exists {
		return ErrDuplicateUser
	}
	e.users[user.ID] = user
	return nil
}

// GetUser returns the registered user with the given id, or nil.
func (e *Engine) GetUser(userID string) *User {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.users[userID]
}

// Book returns the order book for the symbol, or nil if no order for that
// symbol was ever placed.
func (e *Engine) Book(symbol string) *OrderBook {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.books[symbol]
}

func (e *Engine) getOrCreateBook(symbol string) *OrderBook {
	e.mu.RLock()
	book := e.books[symbol]
	e.mu.RUnlock()
	if book != nil {
		return book
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if book = e.books[symbol]; book == nil {
		book = NewOrderBook(symbol, e.ids, e.clock)
		e.books[symbol] = book
	}
	return book
}

// PlaceOrder validates the request, builds a limit order when price > 0 and
// a market order otherwise, admits it into the symbol's book, runs the
// matching loop, and publishes the resulting events.
//
// On success the order handle is returned; it stays queryable through
// OrderStatus for its whole life, including after it leaves the book. A
// fill-or-kill order that cannot be fully filled is returned with status
// rejected alongside ErrFOKUnfillable.
func (e *Engine) PlaceOrder(userID string, side Side, symbol string, quantity int64, price decimal.Decimal, tif TimeInForce) (*Order, error) {
	if e.GetUser(userID) == nil {
		return nil, ErrUnknownUser
	}
	if symbol == "" {
		return nil, ErrInvalidParam
	}
	if side != Buy && side != Sell {
		return nil, ErrInvalidParam
	}
	if quantity < 1 || quantity > MaxOrderQuantity {
		return nil, ErrInvalidQuantity
	}
	if price.IsNegative() {
		return nil, ErrInvalidPrice
	}
	switch tif {
	case "":
		tif = GTC
	case GTC, IOC, FOK:
	default:
		return nil, ErrInvalidParam
	}

	var order *Order
	if price.IsPositive() {
		if price.LessThan(MinOrderPrice) || price.GreaterThan(MaxOrderPrice) {
			return nil, ErrInvalidPrice
		}
		order = NewLimitOrder(e.ids.NewOrderID(), userID, side, symbol, quantity, price, tif, e.clock.Now())
	} else {
		order = NewMarketOrder(e.ids.NewOrderID(), userID, side, symbol, quantity, tif, e.clock.Now())
	}

	book := e.getOrCreateBook(symbol)

	e.mu.Lock()
	if _, exists := e.allOrders[order.ID()]; exists {
		e.mu.Unlock()
		return nil, ErrDuplicateOrder
	}
	e.allOrders[order.ID()] = order
	e.mu.Unlock()

	trades, err := book.submit(order)
	if err != nil {
		if err == ErrFOKUnfillable {
			logger.Warn("fok order rejected",
				zap.String("order_id", order.ID()),
				zap.String("symbol", symbol),
				zap.Int64("quantity", quantity))
			e.notifyOrderStatusChanged(order)
			return order, err
		}
		e.mu.Lock()
		delete(e.allOrders, order.ID())
		e.mu.Unlock()
		return nil, err
	}

	logger.Debug("order placed",
		zap.String("order_id", order.ID()),
		zap.String("user_id", userID),
		zap.String("symbol", symbol),
		zap.String("side", side.String()),
		zap.Int64("quantity", quantity),
		zap.String("price", price.String()),
		zap.Int("trades", len(trades)))

	e.notifyOrderStatusChanged(order)
	e.publishTrades(trades)
	if order.Status() == StatusCancelled {
		// Market or IOC remainder was cancelled inside the placement.
		e.notifyOrderStatusChanged(order)
	}

	return order, nil
}

// CancelOrder cancels an order owned by the user. A cancel that arrives
// after the order has fully filled fails with ErrOrderState; that is the
// normal outcome of the race, not a bug.
func (e *Engine) CancelOrder(userID, orderID string) error {
	if e.GetUser(userID) == nil {
		return ErrUnknownUser
	}

	e.mu.RLock()
	order := e.allOrders[orderID]
	var book *OrderBook
	if order != nil {
		book = e.books[order.Symbol()]
	}
	e.mu.RUnlock()

	if order == nil || order.UserID() != userID {
		return ErrNotOwner
	}
	if book == nil {
		return ErrNotFound
	}

	if !book.RemoveByID(orderID) {
		return ErrOrderState
	}

	logger.Debug("order cancelled",
		zap.String("order_id", orderID),
		zap.String("user_id", userID),
		zap.String("symbol", order.Symbol()))

	e.notifyOrderStatusChanged(order)
	return nil
}

// ModifyOrder replaces the order's quantity and price. The order keeps its
// id but is re-queued with a fresh arrival stamp, losing time priority. The
// book is re-matched afterwards because the new price may cross.
func (e *Engine) ModifyOrder(userID, orderID string, newQuantity int64, newPrice decimal.Decimal) error {
	if e.GetUser(userID) == nil {
		return ErrUnknownUser
	}
	if newPrice.IsNegative() {
		return ErrInvalidPrice
	}

	e.mu.RLock()
	order := e.allOrders[orderID]
	var book *OrderBook
	if order != nil {
		book = e.books[order.Symbol()]
	}
	e.mu.RUnlock()

	if order == nil || order.UserID() != userID {
		return ErrNotOwner
	}
	if book == nil {
		return ErrNotFound
	}
	if !order.CanModify() {
		return ErrOrderState
	}

	replacement, err := book.Modify(orderID, newQuantity, newPrice)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.allOrders[orderID] = replacement
	e.mu.Unlock()

	logger.Debug("order modified",
		zap.String("order_id", orderID),
		zap.String("user_id", userID),
		zap.Int64("quantity", newQuantity),
		zap.String("price", newPrice.String()))

	e.notifyOrderStatusChanged(replacement)
	e.publishTrades(book.Match())
	return nil
}

// OrderStatus returns the order handle if it is owned by the user.
func (e *Engine) OrderStatus(userID, orderID string) (*Order, error) {
	if e.GetUser(userID) == nil {
		return nil, ErrUnknownUser
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	order := e.allOrders[orderID]
	if order == nil || order.UserID() != userID {
		return nil, ErrNotOwner
	}
	return order, nil
}

// UserOrders returns every order the user ever placed, including terminal
// ones, ordered by arrival.
func (e *Engine) UserOrders(userID string) ([]*Order, error) {
	if e.GetUser(userID) == nil {
		return nil, ErrUnknownUser
	}

	e.mu.RLock()
	orders := make([]*Order, 0)
	for _, o := range e.allOrders {
		if o.UserID() == userID {
			orders = append(orders, o)
		}
	}
	e.mu.RUnlock()

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].ArrivalTime() < orders[j].ArrivalTime()
	})
	return orders, nil
}

// Subscribe adds an event sink to the observer list.
func (e *Engine) Subscribe(sink EventSink) {
	if sink == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, sink)
}

// Unsubscribe removes an event sink from the observer list.
func (e *Engine) Unsubscribe(sink EventSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.observers {
		if s == sink {
			e.observers = append(e.observers[:i], e.observers[i+1:]...)
			return
		}
	}
}

// sinks copies the observer list so callbacks run lock-free.
func (e *Engine) sinks() []EventSink {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]EventSink, len(e.observers))
	copy(out, e.observers)
	return out
}

// publishTrades emits each trade followed by the status changes its fills
// caused on the two matched orders.
func (e *Engine) publishTrades(trades []*Trade) {
	for _, trade := range trades {
		e.notifyTradeExecuted(trade)
		e.notifyStatusByID(trade.BuyOrderID)
		e.notifyStatusByID(trade.SellOrderID)
	}
}

func (e *Engine) notifyStatusByID(orderID string) {
	e.mu.RLock()
	order := e.allOrders[orderID]
	e.mu.RUnlock()
	if order != nil {
		e.notifyOrderStatusChanged(order)
	}
}

func (e *Engine) notifyTradeExecuted(trade *Trade) {
	for _, sink := range e.sinks() {
		func() {
			defer recoverSink("OnTradeExecuted")
			sink.OnTradeExecuted(trade)
		}()
	}
}

func (e *Engine) notifyOrderStatusChanged(order *Order) {
	for _, sink := range e.sinks() {
		func() {
			defer recoverSink("OnOrderStatusChanged")
			sink.OnOrderStatusChanged(order)
		}()
	}
}

// recoverSink swallows a sink panic so one bad subscriber cannot break the
// others or the operation that produced the event.
func recoverSink(callback string) {
	if r := recover(); r != nil {
		logger.Warn("event sink panicked", zap.String("callback", callback), zap.Any("panic", r))
	}
}
