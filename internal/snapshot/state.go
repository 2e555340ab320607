package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/fixturegate/fixturegate/internal/calendar"
	"github.com/fixturegate/fixturegate/internal/store"
)

// ErrUnavailable is the only failure a read surfaces: nothing is stored for
// the key and no live fetch could be made.
var ErrUnavailable = errors.New("snapshot unavailable")

// UnavailableError says why a key could not be served.
type UnavailableError struct {
	Key    store.Key
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	msg := fmt.Sprintf("%s unavailable: %s", e.Key, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

func (e *UnavailableError) Unwrap() error { return e.Err }

type State string

const (
	StateFresh        State = "fresh"
	StateStale        State = "stale"
	StateMissing      State = "missing"
	StateErrorBackoff State = "error_backoff"
)

// Classify computes the read-time state of a stored entry. An error entry
// whose retry time has passed counts as stale when it still carries a
// payload and missing otherwise. An entry fetched on an earlier day, in
// now's location, is stale whatever its age.
func Classify(e store.Entry, found bool, now time.Time, ttl time.Duration) State {
	if !found {
		return StateMissing
	}
	if e.Status == store.StatusError {
		if now.Before(e.NextRetryAt) {
			return StateErrorBackoff
		}
		if e.HasPayload() {
			return StateStale
		}
		return StateMissing
	}
	if !e.HasPayload() {
		return StateMissing
	}
	if calendar.DateOf(e.FetchedAt.In(now.Location())).Before(calendar.DateOf(now)) {
		return StateStale
	}
	if now.Sub(e.FetchedAt) < ttl {
		return StateFresh
	}
	return StateStale
}

// Source says where a served payload came from.
type Source string

const (
	SourceCache Source = "cache"
	SourceLive  Source = "live"
)
