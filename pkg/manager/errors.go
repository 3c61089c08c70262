package manager

import "errors"

var (
	ErrNotFound      = errors.New("task not found")
	ErrQueueNotFound = errors.New("queue not found")
	ErrQueueExists   = errors.New("queue already exists")
	ErrDefaultQueue  = errors.New("the default queue cannot be removed")
	ErrEmptyName     = errors.New("name must not be empty")
	ErrActive        = errors.New("task is downloading")
	ErrInvalidWindow = errors.New("schedule minutes must be within 0..1439")
	ErrTargetExists  = errors.New("target file already exists")
	ErrChecksumBusy  = errors.New("checksum verification already running")
	ErrUnknownFormat = errors.New("unknown list format")
)
