package clob

import "github.com/shopspring/decimal"

// Trade is the immutable record of one match between two resting sides.
// Trades reference orders by id only; they never own them.
type Trade struct {
	ID          string          `json:"id"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	Symbol      string          `json:"symbol"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	ExecutedAt  int64           `json:"executed_at"`
}
