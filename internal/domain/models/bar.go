package models

import (
	"encoding/json"
	"fmt"
	"time"

	xutil "MarketSignal/pkg/util"
)

// PriceBar is one daily OHLCV record for an instrument.
type PriceBar struct {
	Date         time.Time `json:"date"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
	Transactions float64   `json:"transactions"`
}

// UnmarshalJSON accepts dates as RFC3339, YYYY-MM-DD or unix seconds.
func (b *PriceBar) UnmarshalJSON(data []byte) error {
	type alias PriceBar
	aux := struct {
		Date string `json:"date"`
		*alias
	}{alias: (*alias)(b)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Date == "" {
		return nil
	}
	t, ok := xutil.ParseTime(aux.Date)
	if !ok {
		return fmt.Errorf("invalid bar date %q", aux.Date)
	}
	b.Date = t
	return nil
}

func (b PriceBar) MarshalJSON() ([]byte, error) {
	type alias PriceBar
	return json.Marshal(struct {
		Date string `json:"date"`
		alias
	}{Date: b.Date.Format(xutil.DateLayout), alias: alias(b)})
}
