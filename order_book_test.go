package clob

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seqIDGen hands out deterministic ids so tests can assert on them.
type seqIDGen struct {
	orders atomic.Int64
	trades atomic.Int64
}

func (g *seqIDGen) NewOrderID() string { return fmt.Sprintf("order-%d", g.orders.Add(1)) }
func (g *seqIDGen) NewTradeID() string { return fmt.Sprintf("trade-%d", g.trades.Add(1)) }

func newTestBook(symbol string) *OrderBook {
	return NewOrderBook(symbol, &seqIDGen{}, NewMonotonicClock())
}

func TestOrderBookInsert(t *testing.T) {
	book := newTestBook("WIPRO")

	order := NewLimitOrder("o-1", "u-1", Buy, "WIPRO", 100, decimal.NewFromInt(500), GTC, 1)
	assert.True(t, book.Insert(order))
	assert.Equal(t, StatusAccepted, order.Status())

	t.Run("DuplicateID", func(t *testing.T) {
		dup := NewLimitOrder("o-1", "u-1", Buy, "WIPRO", 100, decimal.NewFromInt(500), GTC, 2)
		assert.False(t, book.Insert(dup))
	})

	t.Run("SymbolMismatch", func(t *testing.T) {
		other := NewLimitOrder("o-2", "u-1", Buy, "INFY", 100, decimal.NewFromInt(500), GTC, 3)
		assert.False(t, book.Insert(other))
	})

	t.Run("InvalidOrder", func(t *testing.T) {
		bad := NewLimitOrder("o-3", "u-1", Buy, "WIPRO", 0, decimal.NewFromInt(500), GTC, 4)
		assert.False(t, book.Insert(bad))
	})

	t.Run("TerminalOrder", func(t *testing.T) {
		done := NewLimitOrder("o-4", "u-1", Buy, "WIPRO", 10, decimal.NewFromInt(500), GTC, 5)
		done.reject()
		assert.False(t, book.Insert(done))
	})

	stats := book.Stats()
	assert.Equal(t, int64(1), stats.BidOrders)
	assert.Equal(t, int64(0), stats.AskOrders)
}

func TestOrderBookTopOfBook(t *testing.T) {
	book := newTestBook("INFY")

	assert.True(t, book.BestBid().IsZero())
	assert.True(t, book.BestAsk().IsZero())

	require.True(t, book.Insert(NewLimitOrder("b-1", "u-1", Buy, "INFY", 10, decimal.NewFromInt(1790), GTC, 1)))
	require.True(t, book.Insert(NewLimitOrder("b-2", "u-1", Buy, "INFY", 10, decimal.NewFromInt(1795), GTC, 2)))
	require.True(t, book.Insert(NewLimitOrder("s-1", "u-2", Sell, "INFY", 10, decimal.NewFromInt(1805), GTC, 3)))
	require.True(t, book.Insert(NewLimitOrder("s-2", "u-2", Sell, "INFY", 10, decimal.NewFromInt(1810), GTC, 4)))

	assert.True(t, decimal.NewFromInt(1795).Equal(book.BestBid()))
	assert.True(t, decimal.NewFromInt(1805).Equal(book.BestAsk()))
	assert.True(t, decimal.NewFromInt(10).Equal(book.Spread()))
}

func TestOrderBookMatch(t *testing.T) {
	t.Run("ExactCross", func(t *testing.T) {
		book := newTestBook("WIPRO")
		buy := NewLimitOrder("b-1", "u-1", Buy, "WIPRO", 100, decimal.NewFromInt(500), GTC, 1)
		sell := NewLimitOrder("s-1", "u-2", Sell, "WIPRO", 100, decimal.NewFromInt(500), GTC, 2)
		require.True(t, book.Insert(buy))
		require.True(t, book.Insert(sell))

		trades := book.Match()
		require.Len(t, trades, 1)
		assert.Equal(t, "b-1", trades[0].BuyOrderID)
		assert.Equal(t, "s-1", trades[0].SellOrderID)
		assert.Equal(t, int64(100), trades[0].Quantity)
		assert.True(t, decimal.NewFromInt(500).Equal(trades[0].Price))

		assert.Equal(t, StatusFilled, buy.Status())
		assert.Equal(t, StatusFilled, sell.Status())

		stats := book.Stats()
		assert.Equal(t, int64(0), stats.BidOrders)
		assert.Equal(t, int64(0), stats.AskOrders)
	})

	t.Run("NoCrossNoTrade", func(t *testing.T) {
		book := newTestBook("WIPRO")
		require.True(t, book.Insert(NewLimitOrder("b-1", "u-1", Buy, "WIPRO", 100, decimal.NewFromInt(490), GTC, 1)))
		require.True(t, book.Insert(NewLimitOrder("s-1", "u-2", Sell, "WIPRO", 100, decimal.NewFromInt(500), GTC, 2)))

		assert.Empty(t, book.Match())
		assert.Equal(t, int64(1), book.Stats().BidOrders)
		assert.Equal(t, int64(1), book.Stats().AskOrders)
	})

	t.Run("MakerPriceWins", func(t *testing.T) {
		// The resting ask sets the trade price even when the bid is higher.
		book := newTestBook("WIPRO")
		require.True(t, book.Insert(NewLimitOrder("s-1", "u-2", Sell, "WIPRO", 100, decimal.NewFromInt(500), GTC, 1)))
		require.True(t, book.Insert(NewLimitOrder("b-1", "u-1", Buy, "WIPRO", 100, decimal.NewFromInt(510), GTC, 2)))

		trades := book.Match()
		require.Len(t, trades, 1)
		assert.True(t, decimal.NewFromInt(500).Equal(trades[0].Price))
	})

	t.Run("PriceTimePriority", func(t *testing.T) {
		book := newTestBook("INFY")
		first := NewLimitOrder("b-1", "u-1", Buy, "INFY", 100, decimal.NewFromInt(1800), GTC, 1)
		second := NewLimitOrder("b-2", "u-1", Buy, "INFY", 100, decimal.NewFromInt(1800), GTC, 2)
		require.True(t, book.Insert(first))
		require.True(t, book.Insert(second))
		require.True(t, book.Insert(NewLimitOrder("s-1", "u-1", Sell, "INFY", 100, decimal.NewFromInt(1800), GTC, 3)))

		trades := book.Match()
		require.Len(t, trades, 1)
		assert.Equal(t, "b-1", trades[0].BuyOrderID)

		assert.Equal(t, StatusFilled, first.Status())
		assert.Equal(t, StatusAccepted, second.Status())
		assert.Equal(t, int64(100), second.RemainingQuantity())
	})

	t.Run("PartialFills", func(t *testing.T) {
		book := newTestBook("TCS")
		buy := NewLimitOrder("b-1", "u-1", Buy, "TCS", 1000, decimal.NewFromInt(600), GTC, 1)
		require.True(t, book.Insert(buy))

		require.True(t, book.Insert(NewLimitOrder("s-1", "u-2", Sell, "TCS", 300, decimal.NewFromInt(600), GTC, 2)))
		trades := book.Match()
		require.Len(t, trades, 1)
		assert.Equal(t, int64(300), trades[0].Quantity)
		assert.Equal(t, StatusPartiallyFilled, buy.Status())

		require.True(t, book.Insert(NewLimitOrder("s-2", "u-2", Sell, "TCS", 400, decimal.NewFromInt(600), GTC, 3)))
		trades = book.Match()
		require.Len(t, trades, 1)
		assert.Equal(t, int64(400), trades[0].Quantity)

		assert.Equal(t, int64(700), buy.FilledQuantity())
		assert.Equal(t, int64(300), buy.RemainingQuantity())
		assert.Equal(t, StatusPartiallyFilled, buy.Status())
	})

	t.Run("SweepsMultipleLevels", func(t *testing.T) {
		book := newTestBook("TCS")
		require.True(t, book.Insert(NewLimitOrder("s-1", "u-2", Sell, "TCS", 100, decimal.NewFromInt(600), GTC, 1)))
		require.True(t, book.Insert(NewLimitOrder("s-2", "u-2", Sell, "TCS", 100, decimal.NewFromInt(610), GTC, 2)))
		require.True(t, book.Insert(NewLimitOrder("b-1", "u-1", Buy, "TCS", 150, decimal.NewFromInt(610), GTC, 3)))

		trades := book.Match()
		require.Len(t, trades, 2)
		assert.Equal(t, int64(100), trades[0].Quantity)
		assert.True(t, decimal.NewFromInt(600).Equal(trades[0].Price))
		assert.Equal(t, int64(50), trades[1].Quantity)
		assert.True(t, decimal.NewFromInt(610).Equal(trades[1].Price))

		// No residual cross once matching stops.
		assert.True(t, book.BestBid().IsZero())
		assert.Equal(t, int64(50), book.SnapshotAsks()[0].RemainingQuantity())
	})
}

func TestOrderBookSubmit(t *testing.T) {
	t.Run("MarketBuyConsumesBestAsks", func(t *testing.T) {
		book := newTestBook("HDFC")
		require.True(t, book.Insert(NewLimitOrder("s-1", "u-2", Sell, "HDFC", 100, decimal.NewFromInt(1500), GTC, 1)))
		require.True(t, book.Insert(NewLimitOrder("s-2", "u-2", Sell, "HDFC", 100, decimal.NewFromInt(1510), GTC, 2)))

		market := NewMarketOrder("m-1", "u-1", Buy, "HDFC", 150, GTC, 3)
		trades, err := book.submit(market)
		require.NoError(t, err)
		require.Len(t, trades, 2)
		assert.True(t, decimal.NewFromInt(1500).Equal(trades[0].Price))
		assert.True(t, decimal.NewFromInt(1510).Equal(trades[1].Price))
		assert.Equal(t, StatusFilled, market.Status())
	})

	t.Run("MarketRemainderIsCancelled", func(t *testing.T) {
		book := newTestBook("HDFC")
		require.True(t, book.Insert(NewLimitOrder("s-1", "u-2", Sell, "HDFC", 100, decimal.NewFromInt(1500), GTC, 1)))

		market := NewMarketOrder("m-1", "u-1", Buy, "HDFC", 150, GTC, 2)
		trades, err := book.submit(market)
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.Equal(t, int64(100), market.FilledQuantity())
		assert.Equal(t, StatusCancelled, market.Status())

		// The remainder must not rest: a later ask at any price would
		// otherwise cross it forever.
		_, found := book.GetByID("m-1")
		assert.False(t, found)
		assert.Equal(t, int64(0), book.Stats().BidOrders)
	})

	t.Run("MarketSellIntoEmptyBook", func(t *testing.T) {
		book := newTestBook("HDFC")
		market := NewMarketOrder("m-1", "u-1", Sell, "HDFC", 50, GTC, 1)
		trades, err := book.submit(market)
		require.NoError(t, err)
		assert.Empty(t, trades)
		assert.Equal(t, StatusCancelled, market.Status())
	})

	t.Run("MarketSellTradesAtBidPrice", func(t *testing.T) {
		book := newTestBook("HDFC")
		require.True(t, book.Insert(NewLimitOrder("b-1", "u-1", Buy, "HDFC", 100, decimal.NewFromInt(1490), GTC, 1)))

		market := NewMarketOrder("m-1", "u-2", Sell, "HDFC", 100, GTC, 2)
		trades, err := book.submit(market)
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.True(t, decimal.NewFromInt(1490).Equal(trades[0].Price))
	})

	t.Run("IOCRemainderIsCancelled", func(t *testing.T) {
		book := newTestBook("SBIN")
		require.True(t, book.Insert(NewLimitOrder("s-1", "u-2", Sell, "SBIN", 60, decimal.NewFromInt(800), GTC, 1)))

		ioc := NewLimitOrder("o-1", "u-1", Buy, "SBIN", 100, decimal.NewFromInt(800), IOC, 2)
		trades, err := book.submit(ioc)
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.Equal(t, int64(60), ioc.FilledQuantity())
		assert.Equal(t, StatusCancelled, ioc.Status())
		assert.Equal(t, int64(0), book.Stats().BidOrders)
	})

	t.Run("IOCNoLiquidity", func(t *testing.T) {
		book := newTestBook("SBIN")
		ioc := NewLimitOrder("o-1", "u-1", Buy, "SBIN", 100, decimal.NewFromInt(800), IOC, 1)
		trades, err := book.submit(ioc)
		require.NoError(t, err)
		assert.Empty(t, trades)
		assert.Equal(t, StatusCancelled, ioc.Status())
	})

	t.Run("GTCRests", func(t *testing.T) {
		book := newTestBook("SBIN")
		gtc := NewLimitOrder("o-1", "u-1", Buy, "SBIN", 100, decimal.NewFromInt(800), GTC, 1)
		trades, err := book.submit(gtc)
		require.NoError(t, err)
		assert.Empty(t, trades)
		assert.Equal(t, StatusAccepted, gtc.Status())
		assert.Equal(t, int64(1), book.Stats().BidOrders)
	})

	t.Run("FOKFullyFillable", func(t *testing.T) {
		book := newTestBook("RELIANCE")
		require.True(t, book.Insert(NewLimitOrder("s-1", "u-2", Sell, "RELIANCE", 60, decimal.NewFromInt(2500), GTC, 1)))
		require.True(t, book.Insert(NewLimitOrder("s-2", "u-2", Sell, "RELIANCE", 60, decimal.NewFromInt(2510), GTC, 2)))

		fok := NewLimitOrder("o-1", "u-1", Buy, "RELIANCE", 100, decimal.NewFromInt(2510), FOK, 3)
		trades, err := book.submit(fok)
		require.NoError(t, err)
		require.Len(t, trades, 2)
		assert.Equal(t, StatusFilled, fok.Status())
	})

	t.Run("FOKInsufficientLiquidity", func(t *testing.T) {
		book := newTestBook("RELIANCE")
		resting := NewLimitOrder("s-1", "u-2", Sell, "RELIANCE", 60, decimal.NewFromInt(2500), GTC, 1)
		require.True(t, book.Insert(resting))

		fok := NewLimitOrder("o-1", "u-1", Buy, "RELIANCE", 100, decimal.NewFromInt(2500), FOK, 2)
		trades, err := book.submit(fok)
		assert.ErrorIs(t, err, ErrFOKUnfillable)
		assert.Empty(t, trades)
		assert.Equal(t, StatusRejected, fok.Status())

		// No trade happened; the resting order is untouched.
		assert.Equal(t, int64(0), resting.FilledQuantity())
		assert.Equal(t, int64(1), book.Stats().AskOrders)
	})

	t.Run("FOKPriceLimitedLiquidity", func(t *testing.T) {
		// Enough total size, but not at acceptable prices.
		book := newTestBook("RELIANCE")
		require.True(t, book.Insert(NewLimitOrder("s-1", "u-2", Sell, "RELIANCE", 60, decimal.NewFromInt(2500), GTC, 1)))
		require.True(t, book.Insert(NewLimitOrder("s-2", "u-2", Sell, "RELIANCE", 60, decimal.NewFromInt(2600), GTC, 2)))

		fok := NewLimitOrder("o-1", "u-1", Buy, "RELIANCE", 100, decimal.NewFromInt(2510), FOK, 3)
		_, err := book.submit(fok)
		assert.ErrorIs(t, err, ErrFOKUnfillable)
		assert.Equal(t, StatusRejected, fok.Status())
	})

	t.Run("FOKMarketSellAgainstBids", func(t *testing.T) {
		book := newTestBook("RELIANCE")
		require.True(t, book.Insert(NewLimitOrder("b-1", "u-1", Buy, "RELIANCE", 100, decimal.NewFromInt(2490), GTC, 1)))

		fok := NewMarketOrder("o-1", "u-2", Sell, "RELIANCE", 100, FOK, 2)
		trades, err := book.submit(fok)
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.Equal(t, StatusFilled, fok.Status())
	})

	t.Run("DuplicateID", func(t *testing.T) {
		book := newTestBook("SBIN")
		first := NewLimitOrder("o-1", "u-1", Buy, "SBIN", 100, decimal.NewFromInt(800), GTC, 1)
		_, err := book.submit(first)
		require.NoError(t, err)

		dup := NewLimitOrder("o-1", "u-1", Buy, "SBIN", 100, decimal.NewFromInt(800), GTC, 2)
		_, err = book.submit(dup)
		assert.ErrorIs(t, err, ErrDuplicateOrder)
	})
}

func TestOrderBookRemoveByID(t *testing.T) {
	book := newTestBook("WIPRO")
	order := NewLimitOrder("o-1", "u-1", Buy, "WIPRO", 50, decimal.NewFromInt(3200), GTC, 1)
	require.True(t, book.Insert(order))

	assert.True(t, book.RemoveByID("o-1"))
	assert.Equal(t, StatusCancelled, order.Status())

	// A second cancel is a normal failure.
	assert.False(t, book.RemoveByID("o-1"))
	assert.False(t, book.RemoveByID("missing"))
	assert.Equal(t, int64(0), book.Stats().BidOrders)
}

func TestOrderBookModify(t *testing.T) {
	t.Run("UpdatesQuantityAndPrice", func(t *testing.T) {
		book := newTestBook("INFY")
		order := NewLimitOrder("o-1", "u-1", Buy, "INFY", 100, decimal.NewFromInt(1500), GTC, 1)
		require.True(t, book.Insert(order))

		replacement, err := book.Modify("o-1", 150, decimal.NewFromInt(1600))
		require.NoError(t, err)
		assert.Equal(t, "o-1", replacement.ID())
		assert.Equal(t, int64(150), replacement.Quantity())
		assert.True(t, decimal.NewFromInt(1600).Equal(replacement.Price()))
		assert.Equal(t, StatusAccepted, replacement.Status())

		got, found := book.GetByID("o-1")
		require.True(t, found)
		assert.Same(t, replacement, got)
	})

	t.Run("RefreshesTimePriority", func(t *testing.T) {
		book := newTestBook("INFY")
		require.True(t, book.Insert(NewLimitOrder("o-1", "u-1", Buy, "INFY", 100, decimal.NewFromInt(1500), GTC, 1)))
		require.True(t, book.Insert(NewLimitOrder("o-2", "u-1", Buy, "INFY", 100, decimal.NewFromInt(1500), GTC, 2)))

		// Same price back in: the modified order goes to the back of the level.
		_, err := book.Modify("o-1", 100, decimal.NewFromInt(1500))
		require.NoError(t, err)

		bids := book.SnapshotBids()
		require.Len(t, bids, 2)
		assert.Equal(t, "o-2", bids[0].ID())
		assert.Equal(t, "o-1", bids[1].ID())
	})

	t.Run("Failures", func(t *testing.T) {
		book := newTestBook("INFY")
		order := NewLimitOrder("o-1", "u-1", Buy, "INFY", 100, decimal.NewFromInt(1500), GTC, 1)
		require.True(t, book.Insert(order))

		_, err := book.Modify("missing", 100, decimal.NewFromInt(1500))
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = book.Modify("o-1", 0, decimal.NewFromInt(1500))
		assert.ErrorIs(t, err, ErrInvalidQuantity)

		_, err = book.Modify("o-1", 100, decimal.NewFromFloat(0.001))
		assert.ErrorIs(t, err, ErrInvalidPrice)

		// A filled order has left the book.
		require.True(t, book.Insert(NewLimitOrder("s-1", "u-2", Sell, "INFY", 100, decimal.NewFromInt(1500), GTC, 2)))
		book.Match()
		_, err = book.Modify("o-1", 150, decimal.NewFromInt(1600))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestOrderBookSnapshots(t *testing.T) {
	book := newTestBook("INFY")
	require.True(t, book.Insert(NewLimitOrder("b-1", "u-1", Buy, "INFY", 10, decimal.NewFromInt(1790), GTC, 1)))
	require.True(t, book.Insert(NewLimitOrder("b-2", "u-1", Buy, "INFY", 10, decimal.NewFromInt(1795), GTC, 2)))
	require.True(t, book.Insert(NewLimitOrder("s-1", "u-2", Sell, "INFY", 10, decimal.NewFromInt(1805), GTC, 3)))

	bids := book.SnapshotBids()
	require.Len(t, bids, 2)
	assert.Equal(t, "b-2", bids[0].ID())
	assert.Equal(t, "b-1", bids[1].ID())

	asks := book.SnapshotAsks()
	require.Len(t, asks, 1)
	assert.Equal(t, "s-1", asks[0].ID())

	depth := book.Depth(5)
	require.Len(t, depth.Bids, 2)
	require.Len(t, depth.Asks, 1)
	assert.True(t, decimal.NewFromInt(1795).Equal(depth.Bids[0].Price))
	assert.Equal(t, int64(10), depth.Bids[0].Size)
}
