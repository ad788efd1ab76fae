package calibration

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidRequest is returned by NewRequest for malformed input
var ErrInvalidRequest = errors.New("invalid calibration request")

var iso3 = regexp.MustCompile(`^[A-Z]{3}$`)

// Request is one calibration invocation
type Request struct {
	Country string    `json:"country"` // ISO3
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Update  bool      `json:"update"` // false: no network or estimation work
}

// NewRequest validates and returns a Request. country is upper-cased.
func NewRequest(country string, start, end time.Time, update bool) (Request, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if !iso3.MatchString(country) {
		return Request{}, fmt.Errorf("%w: country %q is not an ISO3 code", ErrInvalidRequest, country)
	}
	if start.After(end) {
		return Request{}, fmt.Errorf("%w: start %s after end %s", ErrInvalidRequest,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	return Request{Country: country, Start: start, End: end, Update: update}, nil
}

// StartYear returns the first year of the window
func (r Request) StartYear() int { return r.Start.Year() }

// EndYear returns the last year of the window
func (r Request) EndYear() int { return r.End.Year() }
