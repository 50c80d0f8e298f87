package clob

import (
	"sync"

	"github.com/shopspring/decimal"
)

// DepthLevel is one aggregated price level of a depth view.
type DepthLevel struct {
	Price  decimal.Decimal `json:"price"`
	Size   int64           `json:"size"`
	Orders int64           `json:"orders"`
}

// Depth is a point-in-time aggregated view of both sides of a book.
type Depth struct {
	Symbol string       `json:"symbol"`
	Bids   []DepthLevel `json:"bids"`
	Asks   []DepthLevel `json:"asks"`
}

// BookStats contains order and level counts for one book.
type BookStats struct {
	BidOrders int64
	AskOrders int64
	BidLevels int64
	AskLevels int64
}

// OrderBook holds the resting orders of one symbol: a bid queue, an ask
// queue, and an id index inside each queue. All mutations run under the
// book's write lock; queries take the read lock. The engine never calls into
// a book while holding its own lock.
type OrderBook struct {
	symbol string
	ids    IDGenerator
	clock  Clock

	mu   sync.RWMutex
	bids *queue
	asks *queue
}

// NewOrderBook creates an empty book for the symbol.
func NewOrderBook(symbol string, ids IDGenerator, clock Clock) *OrderBook {
	if ids == nil {
		ids = NewXIDGenerator()
	}
	if clock == nil {
		clock = NewMonotonicClock()
	}
	return &OrderBook{
		symbol: symbol,
		ids:    ids,
		clock:  clock,
		bids:   newBidQueue(),
		asks:   newAskQueue(),
	}
}

// Symbol returns the symbol this book trades.
func (b *OrderBook) Symbol() string { return b.symbol }

func (b *OrderBook) queueFor(side Side) *queue {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

func (b *OrderBook) getLocked(id string) *Order {
	if o := b.bids.order(id); o != nil {
		return o
	}
	return b.asks.order(id)
}

// Insert admits a pending order into the book and transitions it to
// accepted. It fails on symbol mismatch, invalid order, duplicate id, or an
// order that is not pending; the book is left untouched on failure.
func (b *OrderBook) Insert(o *Order) bool {
	if o == nil || o.symbol != b.symbol || !o.IsValid() {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.getLocked(o.id) != nil {
		return false
	}
	if !o.accept() {
		return false
	}
	b.queueFor(o.side).insert(o)
	return true
}

// RemoveByID cancels a resting order. It fails when the order is not in the
// book or can no longer be cancelled.
func (b *OrderBook) RemoveByID(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	o := b.getLocked(id)
	if o == nil || !o.CanCancel() {
		return false
	}
	b.queueFor(o.side).remove(o)
	o.cancel()
	return true
}

// Modify atomically replaces a resting order with a clone carrying the new
// quantity and price. The clone keeps the order id but gets a fresh arrival
// stamp, so the order loses its place in the time-priority FIFO.
//
// The lookup and range validation run under the shared lock; the swap runs
// under the exclusive lock and re-validates first, because the order may
// have been cancelled or filled in between.
func (b *OrderBook) Modify(id string, newQuantity int64, newPrice decimal.Decimal) (*Order, error) {
	b.mu.RLock()
	o := b.getLocked(id)
	if o == nil {
		b.mu.RUnlock()
		return nil, ErrNotFound
	}
	if !o.CanModify() {
		b.mu.RUnlock()
		return nil, ErrOrderState
	}

	replacement := o.clone(b.clock.Now())
	if !replacement.SetQuantity(newQuantity) {
		b.mu.RUnlock()
		return nil, ErrInvalidQuantity
	}
	if !replacement.SetPrice(newPrice) {
		b.mu.RUnlock()
		return nil, ErrInvalidPrice
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.getLocked(id)
	if current == nil || !current.CanModify() {
		return nil, ErrOrderState
	}
	b.queueFor(current.side).remove(current)
	replacement.accept()
	b.queueFor(replacement.side).insert(replacement)
	return replacement, nil
}

// GetByID returns the resting order with the given id, if any.
func (b *OrderBook) GetByID(id string) (*Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o := b.getLocked(id)
	return o, o != nil
}

// SnapshotBids lists the resting buy orders in priority order.
func (b *OrderBook) SnapshotBids() []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.snapshot()
}

// SnapshotAsks lists the resting sell orders in priority order.
func (b *OrderBook) SnapshotAsks() []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asks.snapshot()
}

// BestBid returns the highest resting buy price, or 0 when the side is empty.
func (b *OrderBook) BestBid() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o := b.bids.peekHead()
	if o == nil {
		return decimal.Zero
	}
	return o.Price()
}

// BestAsk returns the lowest resting sell price, or 0 when the side is empty.
func (b *OrderBook) BestAsk() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o := b.asks.peekHead()
	if o == nil {
		return decimal.Zero
	}
	return o.Price()
}

// Spread returns best ask minus best bid, with 0 sentinels for empty sides.
func (b *OrderBook) Spread() decimal.Decimal {
	return b.BestAsk().Sub(b.BestBid())
}

// Depth returns the aggregated top levels of both sides. limit <= 0 means
// the whole book.
func (b *OrderBook) Depth(limit int) *Depth {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return &Depth{
		Symbol: b.symbol,
		Bids:   b.bids.depth(limit),
		Asks:   b.asks.depth(limit),
	}
}

// Stats returns order and level counts per side.
func (b *OrderBook) Stats() BookStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BookStats{
		BidOrders: b.bids.len(),
		AskOrders: b.asks.len(),
		BidLevels: b.bids.levelCount(),
		AskLevels: b.asks.levelCount(),
	}
}

// Match runs the matching loop and returns the trades in execution order.
func (b *OrderBook) Match() []*Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.matchLocked()
}

// crossed reports whether the two top-of-book orders can trade. A market
// order crosses anything on the other side.
func crossed(bid, ask *Order) bool {
	if bid.kind == Market || ask.kind == Market {
		return true
	}
	bp, ap := bid.Price(), ask.Price()
	return bp.GreaterThan(ap) || priceEqual(bp, ap)
}

// matchLocked is the core loop: while the book is crossed, trade the two
// best orders at the price of the one that arrived first (the maker price;
// a market order never sets the price), fill both sides
// equally, and drop whichever side is exhausted. Each iteration either
// removes an order or strictly shrinks one, so the loop terminates.
func (b *OrderBook) matchLocked() []*Trade {
	var trades []*Trade

	for {
		bid := b.bids.peekHead()
		ask := b.asks.peekHead()
		if bid == nil || ask == nil {
			break
		}
		// Two market orders cannot form a price. This cannot happen in the
		// normal flow because market remainders are cancelled before their
		// placement returns, but the loop must not spin if it ever does.
		if bid.kind == Market && ask.kind == Market {
			break
		}
		if !crossed(bid, ask) {
			break
		}

		quantity := bid.RemainingQuantity()
		if r := ask.RemainingQuantity(); r < quantity {
			quantity = r
		}
		price := ask.Price()
		if ask.kind == Market || (bid.kind == Limit && bid.arrival < ask.arrival) {
			price = bid.Price()
		}

		trades = append(trades, &Trade{
			ID:          b.ids.NewTradeID(),
			BuyOrderID:  bid.id,
			SellOrderID: ask.id,
			Symbol:      b.symbol,
			Quantity:    quantity,
			Price:       price,
			ExecutedAt:  b.clock.Now(),
		})

		bid.Fill(quantity)
		b.bids.reduce(bid, quantity)
		ask.Fill(quantity)
		b.asks.reduce(ask, quantity)

		if bid.RemainingQuantity() == 0 {
			b.bids.remove(bid)
		}
		if ask.RemainingQuantity() == 0 {
			b.asks.remove(ask)
		}
	}

	return trades
}

// canFillLocked pre-scans the opposite side and reports whether the order's
// full remaining quantity is matchable at acceptable prices. Used by FOK
// before any trade is emitted.
func (b *OrderBook) canFillLocked(o *Order) bool {
	opposite := b.asks
	if o.side == Sell {
		opposite = b.bids
	}

	need := o.RemainingQuantity()
	limit := o.Price()

	for el := opposite.levels.Front(); el != nil && need > 0; el = el.Next() {
		level, _ := el.Value.(*priceLevel)
		if o.kind == Limit {
			if o.side == Buy && level.price.Sub(limit).GreaterThan(priceEpsilon) {
				break
			}
			if o.side == Sell && limit.Sub(level.price).GreaterThan(priceEpsilon) {
				break
			}
		}
		need -= level.totalSize
	}

	return need <= 0
}

// submit is the placement path: FOK pre-scan, insert, match, and
// time-in-force cleanup under a single lock acquisition, so the book is
// never observed crossed and a FOK decision cannot be invalidated by a
// concurrent placement.
func (b *OrderBook) submit(o *Order) ([]*Trade, error) {
	if o == nil || !o.IsValid() {
		return nil, ErrInvalidParam
	}
	if o.symbol != b.symbol {
		return nil, ErrSymbolMismatch
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.getLocked(o.id) != nil {
		return nil, ErrDuplicateOrder
	}
	if o.tif == FOK && !b.canFillLocked(o) {
		o.reject()
		return nil, ErrFOKUnfillable
	}
	if !o.accept() {
		return nil, ErrOrderState
	}
	b.queueFor(o.side).insert(o)

	trades := b.matchLocked()

	// Market and IOC remainders never rest.
	if (o.kind == Market || o.tif == IOC) && o.RemainingQuantity() > 0 {
		if b.getLocked(o.id) != nil {
			b.queueFor(o.side).remove(o)
		}
		o.cancel()
	}

	return trades, nil
}
