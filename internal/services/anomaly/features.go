package anomaly

import (
	"math"

	"MarketSignal/internal/domain/models"
)

// modelColumns is the input order of the trained detector.
var modelColumns = []string{
	"volume_zscore", "volume_ratio", "price_change_abs", "price_zscore",
	"intraday_range", "range_ratio", "gap_open_abs", "tx_ratio", "vol_price_ratio",
}

// derived holds the bar-versus-baseline features.
type derived struct {
	VolumeZScore  float64
	VolumeRatio   float64
	PriceChange   float64
	PriceZScore   float64
	IntradayRange float64
	RangeRatio    float64
	GapOpen       float64
	TxRatio       float64
	VolPriceRatio float64
}

type baseline struct {
	prevClose, volMA, volStd, priceMA, priceStd, rangeMA, txMA float64
}

// baselineFor fills each baseline the stats record lacks from the bar
// itself or a neutral constant.
func baselineFor(cur models.PriceBar, s models.HistoricalStats) baseline {
	pick := func(f models.StatField, v, def float64) float64 {
		if s.Has(f) {
			return v
		}
		return def
	}
	return baseline{
		prevClose: pick(models.StatPrevClose, s.PrevClose, cur.Close),
		volMA:     pick(models.StatVolumeMA20, s.VolumeMA20, cur.Volume),
		volStd:    pick(models.StatVolumeStd20, s.VolumeStd20, 1),
		priceMA:   pick(models.StatPriceMA20, s.PriceMA20, cur.Close),
		priceStd:  pick(models.StatPriceStd20, s.PriceStd20, 1),
		rangeMA:   pick(models.StatRangeMA10, s.RangeMA10, 0.01),
		txMA:      pick(models.StatTxMA20, s.TxMA20, 1),
	}
}

// ratio is a/b, or def when the baseline b is not positive.
func ratio(a, b, def float64) float64 {
	if b > 0 {
		return a / b
	}
	return def
}

func derive(cur models.PriceBar, s models.HistoricalStats) derived {
	b := baselineFor(cur, s)

	priceChange := ratio(cur.Close-b.prevClose, b.prevClose, 0)
	intraday := ratio(cur.High-cur.Low, cur.Close, 0)
	volRatio := ratio(cur.Volume, b.volMA, 1)

	d := derived{
		VolumeZScore:  ratio(cur.Volume-b.volMA, b.volStd, 0),
		VolumeRatio:   volRatio,
		PriceChange:   priceChange,
		PriceZScore:   ratio(cur.Close-b.priceMA, b.priceStd, 0),
		IntradayRange: intraday,
		RangeRatio:    ratio(intraday, b.rangeMA, 1),
		GapOpen:       ratio(cur.Open-b.prevClose, b.prevClose, 0),
		TxRatio:       ratio(cur.Transactions, b.txMA, 1),
		VolPriceRatio: 1,
	}
	if b.volMA > 0 {
		d.VolPriceRatio = volRatio / (math.Abs(priceChange) + 0.001)
	}
	return d
}

// vector returns the detector input in modelColumns order, non-finite as 0.
func (d derived) vector() []float64 {
	x := []float64{
		d.VolumeZScore, d.VolumeRatio, math.Abs(d.PriceChange), d.PriceZScore,
		d.IntradayRange, d.RangeRatio, math.Abs(d.GapOpen), d.TxRatio, d.VolPriceRatio,
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			x[i] = 0
		}
	}
	return x
}

// report returns the exported feature map rounded to 4 places.
func (d derived) report() map[string]float64 {
	r := func(v float64) float64 { return math.Round(v*1e4) / 1e4 }
	return map[string]float64{
		"volume_zscore":    r(d.VolumeZScore),
		"volume_ratio":     r(d.VolumeRatio),
		"price_change":     r(d.PriceChange),
		"price_change_abs": r(math.Abs(d.PriceChange)),
		"price_zscore":     r(d.PriceZScore),
		"intraday_range":   r(d.IntradayRange),
		"range_ratio":      r(d.RangeRatio),
		"gap_open_abs":     r(math.Abs(d.GapOpen)),
		"tx_ratio":         r(d.TxRatio),
		"vol_price_ratio":  r(d.VolPriceRatio),
	}
}
