package exchange

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/ledgerview/internal/models"
)

// BuildPriceChart buckets the filled orders by hour and summarises each
// bucket as an OHLC bar. LastPriceChange compares the two most recent
// trades, with missing trades counting as price zero.
func (e *Exchange) BuildPriceChart(filled []models.Order) (models.PriceChart, []*MalformedOrderError) {
	trades, rejected := e.decorateAll(sortByTimestamp(filled, false))

	lastPrice, secondLastPrice := decimal.Zero, decimal.Zero
	if n := len(trades); n > 0 {
		lastPrice = trades[n-1].TokenPrice
		if n > 1 {
			secondLastPrice = trades[n-2].TokenPrice
		}
	}

	change := models.PriceUp
	if lastPrice.LessThan(secondLastPrice) {
		change = models.PriceDown
	}

	return models.PriceChart{
		LastPrice:       lastPrice,
		LastPriceChange: change,
		Bars:            e.buildBars(trades),
	}, rejected
}

// buildBars expects trades in ascending timestamp order
func (e *Exchange) buildBars(trades []models.DecoratedOrder) []models.Bar {
	bars := []models.Bar{}
	for _, trade := range trades {
		start := e.hourStart(trade.Timestamp)
		price := trade.TokenPrice

		if n := len(bars); n > 0 && bars[n-1].BucketStart == start {
			bar := &bars[n-1]
			bar.High = decimal.Max(bar.High, price)
			bar.Low = decimal.Min(bar.Low, price)
			bar.Close = price
			continue
		}
		bars = append(bars, models.Bar{
			BucketStart: start,
			Open:        price,
			High:        price,
			Low:         price,
			Close:       price,
		})
	}
	return bars
}

// hourStart floors ts to the start of its hour on the configured zone's
// wall clock, which also holds for zones with fractional-hour offsets
func (e *Exchange) hourStart(ts int64) int64 {
	t := time.Unix(ts, 0).In(e.Location)
	offset := time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
	return t.Add(-offset).Unix()
}
