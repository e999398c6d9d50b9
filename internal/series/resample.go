package series

import "time"

// Resample aggregates base-interval candles into buckets of factor bars
// aligned to the coarser boundary. A bucket is emitted only when every
// base bar inside it is closed, so the result never contains a bar that
// is still forming at the finer granularity.
func Resample(base Series, baseInterval time.Duration, factor int) Series {
	if factor <= 1 || len(base) == 0 {
		return base
	}

	bucket := baseInterval * time.Duration(factor)
	var out Series
	var cur *Candle
	var seen int

	for _, c := range base {
		start := c.OpenTime.Truncate(bucket)
		if cur == nil || !cur.OpenTime.Equal(start) {
			// Partial leading bucket is dropped along with any
			// bucket that ends on an unfinished base bar.
			flush(&out, cur, seen, factor)
			cur = &Candle{
				Symbol:   c.Symbol,
				OpenTime: start,
				Open:     c.Open,
				High:     c.High,
				Low:      c.Low,
				Close:    c.Close,
				Volume:   c.Volume,
				Closed:   c.Closed,
			}
			// Buckets must start on the boundary; otherwise the
			// open price would come from mid-bucket.
			if !c.OpenTime.Equal(start) {
				cur = nil
				seen = 0
				continue
			}
			seen = 1
			continue
		}

		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
		cur.Closed = cur.Closed && c.Closed
		seen++
	}
	flush(&out, cur, seen, factor)
	return out
}

func flush(out *Series, cur *Candle, seen, factor int) {
	if cur == nil {
		return
	}
	if seen == factor && cur.Closed {
		*out = append(*out, *cur)
	}
}
