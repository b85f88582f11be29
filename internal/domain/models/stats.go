package models

import "encoding/json"

// StatField flags one baseline in HistoricalStats.
type StatField uint8

const (
	StatPrevClose StatField = 1 << iota
	StatVolumeMA20
	StatVolumeStd20
	StatPriceMA20
	StatPriceStd20
	StatRangeMA10
	StatTxMA20
)

var statKeys = []struct {
	key  string
	flag StatField
}{
	{"prev_close", StatPrevClose},
	{"volume_ma_20", StatVolumeMA20},
	{"volume_std_20", StatVolumeStd20},
	{"price_ma_20", StatPriceMA20},
	{"price_std_20", StatPriceStd20},
	{"range_ma_10", StatRangeMA10},
	{"tx_ma_20", StatTxMA20},
}

// HistoricalStats summarises a trailing bar window for anomaly detection.
// A zero value (Bars == 0) means there was not enough history. Missing marks
// baselines a caller left out; computed records leave it zero.
type HistoricalStats struct {
	Bars        int       `json:"-"`
	Missing     StatField `json:"-"`
	PrevClose   float64   `json:"prev_close"`
	VolumeMA20  float64   `json:"volume_ma_20"`
	VolumeStd20 float64   `json:"volume_std_20"`
	PriceMA20   float64   `json:"price_ma_20"`
	PriceStd20  float64   `json:"price_std_20"`
	RangeMA10   float64   `json:"range_ma_10"`
	TxMA20      float64   `json:"tx_ma_20"`
}

// Empty reports whether the record carries no statistics.
func (s HistoricalStats) Empty() bool { return s.Bars < 2 }

// Has reports whether the baseline f was supplied.
func (s HistoricalStats) Has(f StatField) bool { return !s.Empty() && s.Missing&f == 0 }

func (s HistoricalStats) MarshalJSON() ([]byte, error) {
	if s.Empty() {
		return []byte("{}"), nil
	}
	type alias HistoricalStats
	if s.Missing == 0 {
		return json.Marshal(alias(s))
	}
	b, err := json.Marshal(alias(s))
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for _, k := range statKeys {
		if s.Missing&k.flag != 0 {
			delete(m, k.key)
		}
	}
	return json.Marshal(m)
}

// UnmarshalJSON treats any supplied field as a populated record and marks
// absent or null baselines as missing.
func (s *HistoricalStats) UnmarshalJSON(data []byte) error {
	type alias HistoricalStats
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = HistoricalStats(a)
	s.Bars, s.Missing = 0, 0

	present := 0
	for _, k := range statKeys {
		if v, ok := raw[k.key]; ok && string(v) != "null" {
			present++
			continue
		}
		s.Missing |= k.flag
	}
	if present > 0 {
		s.Bars = 2
	}
	return nil
}
