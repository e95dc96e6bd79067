// Package statistics turns raw price history into annualized return and
// covariance estimates for portfolio optimization.
package statistics

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/folio/internal/modules/marketdata"
	"github.com/aristath/folio/pkg/formulas"
)

// Estimates holds annualized expected log-returns and the covariance matrix
// for a ticker universe. Tickers is sorted; Returns and Cov are aligned to it.
type Estimates struct {
	Tickers []string    `msgpack:"tickers"`
	Returns []float64   `msgpack:"returns"`
	Cov     [][]float64 `msgpack:"cov"`
	// Observations is the number of daily return rows the estimates are
	// computed over (common window across all tickers).
	Observations int `msgpack:"observations"`

	index map[string]int
}

// NewEstimates assembles estimates from precomputed values. Tickers,
// Returns and Cov must be aligned; Cov must be symmetric.
func NewEstimates(tickers []string, returns []float64, cov [][]float64) *Estimates {
	est := &Estimates{
		Tickers: tickers,
		Returns: returns,
		Cov:     cov,
	}
	est.buildIndex()
	return est
}

// buildIndex populates the ticker lookup map. Called after construction
// and after deserialization.
func (e *Estimates) buildIndex() {
	e.index = make(map[string]int, len(e.Tickers))
	for i, ticker := range e.Tickers {
		e.index[ticker] = i
	}
}

// Return looks up the annualized expected log-return for a ticker.
func (e *Estimates) Return(ticker string) (float64, bool) {
	i, ok := e.index[ticker]
	if !ok {
		return 0, false
	}
	return e.Returns[i], true
}

// Covariance looks up the annualized covariance between two tickers.
func (e *Estimates) Covariance(a, b string) (float64, bool) {
	i, okA := e.index[a]
	j, okB := e.index[b]
	if !okA || !okB {
		return 0, false
	}
	return e.Cov[i][j], true
}

// ReturnsByTicker returns the expected-return vector keyed by ticker.
func (e *Estimates) ReturnsByTicker() map[string]float64 {
	out := make(map[string]float64, len(e.Tickers))
	for i, ticker := range e.Tickers {
		out[ticker] = e.Returns[i]
	}
	return out
}

// Builder computes estimates from a price time series.
//
// Missing-data policy: prices are forward-filled per ticker (a leading gap
// with no prior value stays undefined), the series is log-differenced, and
// any return that is still undefined becomes 0 (neutral fill) so that every
// ticker keeps the same observation count. Covariance therefore uses a
// common window across all tickers, not pairwise-complete observations.
type Builder struct {
	log zerolog.Logger
}

// NewBuilder creates a statistics builder.
func NewBuilder(log zerolog.Logger) *Builder {
	return &Builder{log: log.With().Str("component", "statistics").Logger()}
}

// Build computes annualized return and covariance estimates from daily closes.
// Fails with DataError when no return rows remain after differencing.
func (b *Builder) Build(ts marketdata.TimeSeries) (*Estimates, error) {
	if len(ts.Data) == 0 {
		return nil, marketdata.NewDataError("price table has no ticker columns")
	}
	if len(ts.Dates) < 2 {
		return nil, marketdata.NewDataError("price table has zero usable rows after differencing")
	}

	tickers := ts.Tickers()
	sort.Strings(tickers)

	numObs := len(ts.Dates) - 1
	returnsByTicker := make(map[string][]float64, len(tickers))
	neutralFills := 0

	for _, ticker := range tickers {
		filled := forwardFill(ts.Data[ticker])

		dailyReturns := make([]float64, numObs)
		for i := 1; i < len(filled); i++ {
			if math.IsNaN(filled[i]) || math.IsNaN(filled[i-1]) || filled[i] <= 0 || filled[i-1] <= 0 {
				// Still undefined after fill: neutral fill keeps the frame shape.
				dailyReturns[i-1] = 0
				neutralFills++
				continue
			}
			dailyReturns[i-1] = math.Log(filled[i]) - math.Log(filled[i-1])
		}
		returnsByTicker[ticker] = dailyReturns
	}

	if neutralFills > 0 {
		b.log.Warn().
			Int("neutral_fills", neutralFills).
			Msg("Some returns undefined after forward-fill, treated as zero")
	}

	// Column-major observation matrix for gonum: rows = days, cols = tickers.
	obs := mat.NewDense(numObs, len(tickers), nil)
	for j, ticker := range tickers {
		for i, r := range returnsByTicker[ticker] {
			obs.Set(i, j, r)
		}
	}

	var sym mat.SymDense
	stat.CovarianceMatrix(&sym, obs, nil)

	annualizedReturns := make([]float64, len(tickers))
	for j, ticker := range tickers {
		annualizedReturns[j] = formulas.Mean(returnsByTicker[ticker]) * formulas.TradingDaysPerYear
	}

	cov := make([][]float64, len(tickers))
	for i := range tickers {
		cov[i] = make([]float64, len(tickers))
		for j := range tickers {
			cov[i][j] = sym.At(i, j) * formulas.TradingDaysPerYear
		}
	}

	est := &Estimates{
		Tickers:      tickers,
		Returns:      annualizedReturns,
		Cov:          cov,
		Observations: numObs,
	}
	est.buildIndex()

	b.log.Info().
		Int("num_tickers", len(tickers)).
		Int("observations", numObs).
		Msg("Built return and covariance estimates")

	return est, nil
}

// forwardFill replaces each NaN with the most recent prior value.
// Leading NaNs (no prior value) are left as NaN.
func forwardFill(prices []float64) []float64 {
	filled := make([]float64, len(prices))
	copy(filled, prices)

	var lastValid float64
	hasLastValid := false

	for i := 0; i < len(filled); i++ {
		if math.IsNaN(filled[i]) {
			if hasLastValid {
				filled[i] = lastValid
			}
		} else {
			lastValid = filled[i]
			hasLastValid = true
		}
	}

	return filled
}
