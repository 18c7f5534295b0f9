package model

// Instrument represents a tradeable forex/CFD symbol.
type Instrument struct {
	Symbol  string  `json:"symbol"`   // e.g. "EURUSD", "XAUUSD"
	PipSize float64 `json:"pip_size"` // 0.0001 for most FX pairs, 0.01 for JPY, 0.1 for gold
	Digits  int     `json:"digits"`   // quote decimal places
	LotSize float64 `json:"lot_size"` // units per 1.0 lot
}

// Pips converts a price distance into pips for this instrument.
func (i *Instrument) Pips(priceDelta float64) float64 {
	if i.PipSize <= 0 {
		return 0
	}
	return priceDelta / i.PipSize
}

// Price converts a pip distance into a price delta.
func (i *Instrument) Price(pips float64) float64 {
	return pips * i.PipSize
}
