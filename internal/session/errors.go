package session

import "errors"

var (
	// ErrNoQuestions is returned by Start when the pack/subject filter
	// resolves to an empty question set. The controller stays in StageStart.
	ErrNoQuestions = errors.New("no questions for the requested pack")
	// ErrSessionActive is returned by Start while another pack's attempt is running.
	ErrSessionActive = errors.New("another session is in progress")
	ErrUnknownOption = errors.New("option does not belong to the current question")
	ErrClosed        = errors.New("session controller is closed")
)
