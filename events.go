package clob

import (
	"sync"

	"go.uber.org/zap"
)

// EventSink receives trade executions and order status transitions.
//
// Callbacks run on the goroutine that produced the event, never under an
// engine or book lock. Sinks must not block for long and must not call back
// into mutating engine APIs from inside a callback; the engine may be
// mid-operation on an adjacent book. A panicking sink is recovered and does
// not affect the other sinks.
type EventSink interface {
	OnTradeExecuted(trade *Trade)
	OnOrderStatusChanged(order *Order)
}

// SinkEvent is one recorded callback, used by MemorySink. Trade is nil for
// status events; OrderID/Status capture the order state at publish time.
type SinkEvent struct {
	Trade   *Trade
	OrderID string
	Status  OrderStatus
}

// MemorySink records events in arrival order, useful for testing.
type MemorySink struct {
	mu     sync.RWMutex
	events []SinkEvent
}

// NewMemorySink creates a new MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{events: make([]SinkEvent, 0)}
}

func (m *MemorySink) OnTradeExecuted(trade *Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, SinkEvent{Trade: trade})
}

func (m *MemorySink) OnOrderStatusChanged(order *Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, SinkEvent{OrderID: order.ID(), Status: order.Status()})
}

// Events returns a copy of all recorded events.
func (m *MemorySink) Events() []SinkEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SinkEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Trades returns the recorded trades in execution order.
func (m *MemorySink) Trades() []*Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Trade, 0, len(m.events))
	for _, ev := range m.events {
		if ev.Trade != nil {
			out = append(out, ev.Trade)
		}
	}
	return out
}

// TradeCount returns the number of trade events recorded.
func (m *MemorySink) TradeCount() int {
	return len(m.Trades())
}

// Reset drops all recorded events.
func (m *MemorySink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = m.events[:0]
}

// LogSink writes every event through a zap logger.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates an EventSink backed by the given logger.
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) OnTradeExecuted(trade *Trade) {
	s.log.Info("trade executed",
		zap.String("trade_id", trade.ID),
		zap.String("symbol", trade.Symbol),
		zap.String("buy_order_id", trade.BuyOrderID),
		zap.String("sell_order_id", trade.SellOrderID),
		zap.Int64("quantity", trade.Quantity),
		zap.String("price", trade.Price.String()),
	)
}

func (s *LogSink) OnOrderStatusChanged(order *Order) {
	s.log.Info("order status changed",
		zap.String("order_id", order.ID()),
		zap.String("symbol", order.Symbol()),
		zap.String("status", string(order.Status())),
		zap.Int64("filled", order.FilledQuantity()),
	)
}
