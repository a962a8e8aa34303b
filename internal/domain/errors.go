package domain

import "errors"

var (
	// ErrChannel reports a signaling transport failure.
	ErrChannel = errors.New("signaling channel error")

	// ErrInvalidState reports a negotiation call on a closed engine.
	ErrInvalidState = errors.New("negotiation engine closed")

	// ErrNoStream rejects a recording request without a media stream.
	ErrNoStream = errors.New("no stream available to record")

	// ErrRecording rejects a recording request while one is active.
	ErrRecording = errors.New("recording already in progress")
)
