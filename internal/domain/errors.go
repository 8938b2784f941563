package domain

import (
	"errors"
	"fmt"
)

// ErrNoRecords is returned when a run fetched nothing at all; publishing an
// empty snapshot would clobber good data, so the run aborts instead.
var ErrNoRecords = errors.New("no crash records fetched")

// ErrNoRecentInjuries is returned when the injury source has no record within
// the recency window, which indicates a broken or stalled upstream feed.
var ErrNoRecentInjuries = errors.New("no injury crash records within the last 30 days")

// ErrCursorUnchanged is returned on scheduled runs when the max report
// timestamp equals the previous run's cursor, i.e. upstream published nothing new.
var ErrCursorUnchanged = errors.New("last record timestamp unchanged since previous run")

// FetchError indicates a source could not be fully read. Fetch failures abort
// the run before any publish.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.Source, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// AuthError indicates the token exchange with the feature-service portal failed.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("arcgis auth: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// SpatialJoinError indicates a boundary layer could not be loaded. The layers
// are static committed files, so this is a deployment defect.
type SpatialJoinError struct {
	Layer string
	Err   error
}

func (e *SpatialJoinError) Error() string {
	return fmt.Sprintf("boundary layer %s: %v", e.Layer, e.Err)
}
func (e *SpatialJoinError) Unwrap() error { return e.Err }

// PublishError indicates a downstream publish side effect failed. The cursor
// written earlier in the run stays in place; re-running recovers.
type PublishError struct {
	Target string
	Err    error
}

func (e *PublishError) Error() string { return fmt.Sprintf("publish to %s: %v", e.Target, e.Err) }
func (e *PublishError) Unwrap() error { return e.Err }
