package trader

import "github.com/shopspring/decimal"

// quantizePrice 将价格截断（非四舍五入）到交易所价格精度。
func quantizePrice(price decimal.Decimal, tickSize int) decimal.Decimal {
	return price.Truncate(int32(tickSize))
}

// quantizeQuantity 将数量截断到交易所数量精度。
func quantizeQuantity(quantity decimal.Decimal, lotSize int) decimal.Decimal {
	return quantity.Truncate(int32(lotSize))
}
