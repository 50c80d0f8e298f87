package clob

import (
	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"
)

// Sorting keys for market orders. A market buy must outrank every limit bid
// and a market sell every limit ask; the real order price stays 0.
var (
	marketBuyPrice  = MaxOrderPrice.Add(decimal.NewFromInt(1))
	marketSellPrice = decimal.NewFromInt(-1)
)

// effectivePrice is the sorting price of an order: the limit price for limit
// orders, +inf/-inf stand-ins for market orders.
func effectivePrice(o *Order) decimal.Decimal {
	if o.kind == Market {
		if o.side == Buy {
			return marketBuyPrice
		}
		return marketSellPrice
	}
	return o.Price()
}

// priceLevel keeps the FIFO of orders resting at one price, so time priority
// within a level is the arrival order of the FIFO. Levels are keyed by the
// exact price: prices that differ by less than priceEpsilon form separate
// levels and are ordered by price, not by arrival.
type priceLevel struct {
	price     decimal.Decimal
	totalSize int64 // sum of remaining quantities
	count     int64
	head      *Order
	tail      *Order
}

// queue is one side of a book: a skiplist of price levels plus an id index.
// Insert is O(log n) in the number of levels; cancel is O(1) via the index.
type queue struct {
	side        Side
	totalOrders int64
	levels      *skiplist.SkipList
	levelIndex  map[string]*skiplist.Element
	orders      map[string]*Order
}

// newBidQueue creates the buy side, sorted by price descending.
func newBidQueue() *queue {
	return &queue{
		side: Buy,
		levels: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)
			return d2.Cmp(d1)
		})),
		levelIndex: make(map[string]*skiplist.Element),
		orders:     make(map[string]*Order),
	}
}

// newAskQueue creates the sell side, sorted by price ascending.
func newAskQueue() *queue {
	return &queue{
		side: Sell,
		levels: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)
			return d1.Cmp(d2)
		})),
		levelIndex: make(map[string]*skiplist.Element),
		orders:     make(map[string]*Order),
	}
}

// order finds an order by its ID.
func (q *queue) order(id string) *Order {
	return q.orders[id]
}

// insert appends the order to the back of its price level, creating the
// level if needed. Callers insert in arrival order, which is what makes the
// per-level FIFO equal to time priority.
func (q *queue) insert(o *Order) {
	price := effectivePrice(o)
	key := price.String()

	el, ok := q.levelIndex[key]
	if ok {
		level, _ := el.Value.(*priceLevel)
		o.prev = level.tail
		o.next = nil
		if level.tail != nil {
			level.tail.next = o
		}
		level.tail = o
		if level.head == nil {
			level.head = o
		}
		level.totalSize += o.RemainingQuantity()
		level.count++
	} else {
		level := &priceLevel{
			price:     price,
			totalSize: o.RemainingQuantity(),
			count:     1,
			head:      o,
			tail:      o,
		}
		o.next = nil
		o.prev = nil
		q.levelIndex[key] = q.levels.Set(price, level)
	}

	q.orders[o.id] = o
	q.totalOrders++
}

// remove unlinks the order from its level and drops the level when empty.
func (q *queue) remove(o *Order) {
	if _, ok := q.orders[o.id]; !ok {
		return
	}

	price := effectivePrice(o)
	key := price.String()
	el, ok := q.levelIndex[key]
	if !ok {
		return
	}
	level, _ := el.Value.(*priceLevel)

	if o.prev != nil {
		o.prev.next = o.next
	} else {
		level.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		level.tail = o.prev
	}
	o.next = nil
	o.prev = nil

	level.totalSize -= o.RemainingQuantity()
	level.count--
	delete(q.orders, o.id)
	q.totalOrders--

	if level.count == 0 {
		q.levels.RemoveElement(el)
		delete(q.levelIndex, key)
	}
}

// removeByID removes the order with the given id, reporting whether it was
// present.
func (q *queue) removeByID(id string) bool {
	o, ok := q.orders[id]
	if !ok {
		return false
	}
	q.remove(o)
	return true
}

// reduce lowers the level total after a fill of n units against the order.
// The order keeps its slot, so a partial fill preserves time priority.
func (q *queue) reduce(o *Order, n int64) {
	el, ok := q.levelIndex[effectivePrice(o).String()]
	if !ok {
		return
	}
	level, _ := el.Value.(*priceLevel)
	level.totalSize -= n
}

// peekHead returns the order at the best price without removing it.
func (q *queue) peekHead() *Order {
	el := q.levels.Front()
	if el == nil {
		return nil
	}
	level, _ := el.Value.(*priceLevel)
	return level.head
}

// len returns the total number of resting orders.
func (q *queue) len() int64 {
	return q.totalOrders
}

// levelCount returns the number of price levels.
func (q *queue) levelCount() int64 {
	return int64(q.levels.Len())
}

// snapshot lists the resting orders in priority order.
func (q *queue) snapshot() []*Order {
	out := make([]*Order, 0, q.totalOrders)
	for el := q.levels.Front(); el != nil; el = el.Next() {
		level, _ := el.Value.(*priceLevel)
		for o := level.head; o != nil; o = o.next {
			out = append(out, o)
		}
	}
	return out
}

// depth aggregates the best price levels up to limit. limit <= 0 means all.
func (q *queue) depth(limit int) []DepthLevel {
	if limit <= 0 {
		limit = q.levels.Len()
	}
	out := make([]DepthLevel, 0, limit)
	for el := q.levels.Front(); el != nil && len(out) < limit; el = el.Next() {
		level, _ := el.Value.(*priceLevel)
		out = append(out, DepthLevel{
			Price:  level.price,
			Size:   level.totalSize,
			Orders: level.count,
		})
	}
	return out
}
