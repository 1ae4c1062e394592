package market

// Source supplies the current mid price for the traded instrument.
// A return of zero or a negative value means "no usable update": the engine
// must never treat it as a real quote.
type Source interface {
	MidPrice() float64
	Close() error
}

type SourceStats struct {
	Reconnects int
	BadFrames  int
	LastError  string
}
