package calibration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/wonny/macrocal/internal/external/ilostat"
	"github.com/wonny/macrocal/internal/external/wdi"
	"github.com/wonny/macrocal/pkg/httputil"
)

// FailureKind classifies why a stage contributed no keys
type FailureKind string

const (
	// KindSourceUnavailable: network failure or non-200 response
	KindSourceUnavailable FailureKind = "source_unavailable"
	// KindSchemaDrift: expected column or row absent from a parsed response
	KindSchemaDrift FailureKind = "schema_drift"
	// KindEstimation: the regression step failed
	KindEstimation FailureKind = "estimation"
	// KindInternal: the stage panicked or produced an invalid value
	KindInternal FailureKind = "internal"
)

// ErrMissingSeries is the schema-drift cause when a requested column or row is absent
var ErrMissingSeries = errors.New("expected series not found")

// StageError is the typed failure of one stage
type StageError struct {
	Kind   FailureKind
	Stage  string
	Source string
	Keys   []string // keys that will not be updated
	Cause  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage (%s) failed [%s]: %v; not updating %s",
		e.Stage, e.Source, e.Kind, e.Cause, strings.Join(e.Keys, ", "))
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// StageOutcome is the result-style report of one stage
type StageOutcome struct {
	Stage    string        `json:"stage"`
	Source   string        `json:"source"`
	Keys     []string      `json:"keys"` // keys written
	Kind     FailureKind   `json:"kind,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`

	Err *StageError `json:"-"`
}

// OK reports whether the stage finished without failure.
// Error is checked too since Err does not survive a JSON round trip.
func (o StageOutcome) OK() bool {
	return o.Err == nil && o.Error == ""
}

// classify maps a stage cause to its failure kind
func classify(err error) FailureKind {
	var (
		statusErr *httputil.StatusError
		netErr    net.Error
		stageErr  *StageError
	)

	switch {
	case errors.As(err, &stageErr):
		return stageErr.Kind
	case errors.As(err, &statusErr),
		errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindSourceUnavailable
	case errors.Is(err, ErrMissingSeries),
		errors.Is(err, wdi.ErrAPI),
		errors.Is(err, wdi.ErrMalformedResponse),
		errors.Is(err, ilostat.ErrMissingColumn),
		errors.Is(err, ilostat.ErrMalformedResponse):
		return KindSchemaDrift
	case errors.Is(err, ErrSingularDesign),
		errors.Is(err, ErrNonFiniteEstimate),
		errors.Is(err, ErrTooFewObservations):
		return KindEstimation
	case errors.Is(err, ErrShapeMismatch),
		errors.Is(err, ErrNonFinite),
		errors.Is(err, ErrUnknownParam):
		return KindInternal
	default:
		// transport errors that are not net.Error (e.g. unsupported scheme)
		return KindSourceUnavailable
	}
}

// newStageError wraps cause for stage s
func newStageError(s Stage, keys []string, cause error) *StageError {
	var stageErr *StageError
	if errors.As(cause, &stageErr) {
		return stageErr
	}
	return &StageError{
		Kind:   classify(cause),
		Stage:  s.Name(),
		Source: s.Source(),
		Keys:   keys,
		Cause:  cause,
	}
}
