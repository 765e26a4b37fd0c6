package model

import "errors"

var (
	// ErrNotFound indicates a link was not found.
	ErrNotFound = errors.New("link not found")

	// ErrEmptyURL indicates no URL was provided.
	ErrEmptyURL = errors.New("please enter a URL")

	// ErrInvalidURL indicates an invalid URL was provided.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrInvalidPatch indicates a patch that would break a link's invariants.
	ErrInvalidPatch = errors.New("invalid link update")

	// ErrInvalidStatus indicates an unknown reading status.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidImport indicates an import payload that is not a JSON array of links.
	ErrInvalidImport = errors.New("invalid import format")

	// ErrNoContent indicates no readable content could be extracted.
	ErrNoContent = errors.New("no readable content")

	// ErrInvalidReminderTime indicates a reminder time that is not HH:mm.
	ErrInvalidReminderTime = errors.New("invalid reminder time")
)
