package features

// NumFeatures is the fixed width of every feature vector.
const NumFeatures = 51

// columns is the export order expected by the trained regressors.
var columns = []string{
	// returns
	"return_1d", "return_5d", "return_10d", "return_20d",
	// volatility
	"volatility_5d", "volatility_10d", "volatility_20d",
	"realized_vol_5d", "realized_vol_10d",
	// price ratios
	"price_to_sma_5", "price_to_sma_10", "price_to_sma_20", "price_to_sma_50",
	// volume
	"volume_ratio", "volume_change", "obv_ratio",
	// momentum
	"rsi_14", "macd", "macd_signal", "macd_hist", "bb_width", "bb_position",
	// atr & stochastic
	"atr_14", "atr_ratio", "stoch_k", "stoch_d",
	// price patterns
	"intraday_range", "gap_open", "upper_shadow", "lower_shadow",
	// calendar
	"day_of_week", "month", "quarter", "is_month_start", "is_month_end",
	// lagged returns
	"lag_1d_return", "lag_2d_return", "lag_3d_return", "lag_5d_return",
	"lag_10d_return", "lag_20d_return",
	// regime
	"high_vol_regime", "trend_regime", "momentum_strength",
	// interaction
	"vol_times_volatility", "price_momentum_vol",
	// market-wide
	"market_return_1d", "market_return_5d", "market_volatility_5d",
	"market_volatility_20d", "market_volume_ratio",
}

// Columns returns a copy of the feature names in model order.
func Columns() []string {
	return append([]string(nil), columns...)
}
