package membership

import "github.com/shopspring/decimal"

// Recorder receives operation outcomes for instrumentation.
type Recorder interface {
	ObserveOperation(operation string, err error)
	ObserveQuotaExhausted()
	ObserveSavings(amount decimal.Decimal)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, error) {}

func (nopRecorder) ObserveQuotaExhausted() {}

func (nopRecorder) ObserveSavings(decimal.Decimal) {}
