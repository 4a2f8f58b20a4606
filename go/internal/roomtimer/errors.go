package roomtimer

import "errors"

var (
	// ErrUnknownRoom is returned when a room id is not in the registry
	ErrUnknownRoom = errors.New("unknown room")
	// ErrAlreadyRunning is returned by Start on a running timer
	ErrAlreadyRunning = errors.New("timer already running")
	// ErrNotRunning is returned by Pause and Stop on an idle timer
	ErrNotRunning = errors.New("timer not running")
	// ErrClosed is returned by Start once the registry has been closed
	ErrClosed = errors.New("room registry closed")
)
