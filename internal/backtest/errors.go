// Package backtest implements the event-driven bar simulator, performance
// metric engine, Monte Carlo resampler, and overfitting detector described
// for the core of the system.
package backtest

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a BacktestError into the taxonomy the core promises
// callers: every failure mode is one of these five kinds, never a bare
// panic and never a silently-swallowed default.
type ErrorCode string

const (
	// ErrInvalidConfig marks a numeric config parameter outside its
	// documented range, or a malformed commission-tier list.
	ErrInvalidConfig ErrorCode = "invalid_config"
	// ErrInvalidBarSeries marks a non-finite field, a broken OHLC
	// invariant, non-monotone timestamps, or too few bars for warm-up.
	ErrInvalidBarSeries ErrorCode = "invalid_bar_series"
	// ErrInvalidStrategyAction marks an action with a non-finite
	// quantity/stop/take, a short when shorting is disallowed, or a
	// quantity exceeding the configured max position.
	ErrInvalidStrategyAction ErrorCode = "invalid_strategy_action"
	// ErrInsufficientData marks too few bars/trades for the requested
	// statistical operation (parametric Monte Carlo, walk-forward slicing).
	ErrInsufficientData ErrorCode = "insufficient_data"
	// ErrCancelled marks cooperative cancellation during a long-running
	// Monte Carlo or walk-forward operation.
	ErrCancelled ErrorCode = "cancelled"
)

// BacktestError is the concrete error type returned by every core
// operation. Callers that need to branch on failure kind should use
// errors.As against *BacktestError and switch on Code.
type BacktestError struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *BacktestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *BacktestError) Unwrap() error { return e.Err }

func newError(code ErrorCode, msg string, cause error) *BacktestError {
	return &BacktestError{Code: code, Msg: msg, Err: cause}
}

func invalidConfigf(format string, args ...any) *BacktestError {
	return newError(ErrInvalidConfig, fmt.Sprintf(format, args...), nil)
}

func invalidBarSeriesf(format string, args ...any) *BacktestError {
	return newError(ErrInvalidBarSeries, fmt.Sprintf(format, args...), nil)
}

func invalidActionf(format string, args ...any) *BacktestError {
	return newError(ErrInvalidStrategyAction, fmt.Sprintf(format, args...), nil)
}

func insufficientDataf(format string, args ...any) *BacktestError {
	return newError(ErrInsufficientData, fmt.Sprintf(format, args...), nil)
}

// codeOf extracts the ErrorCode from err for telemetry labeling, falling
// back to invalid_config for errors that didn't originate as a
// BacktestError (which should not happen for any core-returned error).
func codeOf(err error) ErrorCode {
	var be *BacktestError
	if errors.As(err, &be) {
		return be.Code
	}
	return ErrInvalidConfig
}
