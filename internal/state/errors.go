package state

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every operation failure wraps exactly one of these
// categories so callers can branch with errors.Is without string matching.
var (
	ErrConfiguration = errors.New("lending: invalid configuration")
	ErrState         = errors.New("lending: invalid state")
	ErrCollateral    = errors.New("lending: collateral check failed")
	ErrOracle        = errors.New("lending: price unavailable")
	ErrArithmetic    = errors.New("lending: arithmetic failure")
)

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func stateErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

func oracleErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrOracle, fmt.Sprintf(format, args...))
}

func arithmeticErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrArithmetic, fmt.Sprintf(format, args...))
}
