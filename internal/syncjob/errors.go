package syncjob

import "errors"

// Stage sentinels. Every error returned by Job.Run matches exactly one of
// them with errors.Is.
var (
	ErrSheetRead         = errors.New("reading existing dates from sheet failed")
	ErrSourceUnavailable = errors.New("fetching exchange rates failed")
	ErrSheetWrite        = errors.New("appending rows to sheet failed")
)

// StageError ties a failure to the stage of the run where it happened
type StageError struct {
	Stage error
	Err   error
}

// Error implements the error interface
func (e *StageError) Error() string {
	return e.Stage.Error() + ": " + e.Err.Error()
}

// Unwrap exposes both the stage sentinel and the underlying cause
func (e *StageError) Unwrap() []error {
	return []error{e.Stage, e.Err}
}

func stageError(stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
