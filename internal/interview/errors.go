package interview

import "errors"

var (
	// ErrSessionNotFound is returned when no session exists for the given id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed is returned when an answer or question is submitted
	// to a session that has already ended.
	ErrSessionClosed = errors.New("session already ended")

	// ErrSessionBusy is returned when a transition is already in flight for
	// the session. Concurrent submissions are rejected, not queued.
	ErrSessionBusy = errors.New("session busy")

	// ErrDuplicateSession is returned when creating a session with an id
	// that collides with an existing active session.
	ErrDuplicateSession = errors.New("session already exists")

	// ErrInvalidMode is returned when the interview mode is neither "role"
	// nor "resume".
	ErrInvalidMode = errors.New("invalid interview mode")

	// ErrEvaluationUnavailable wraps evaluation gateway failures. The
	// transition that hit it left the session unchanged and may be retried.
	ErrEvaluationUnavailable = errors.New("evaluation unavailable")

	// ErrTranscription wraps transcription gateway failures, including
	// empty or unintelligible audio.
	ErrTranscription = errors.New("transcription failed")
)
