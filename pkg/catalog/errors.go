package catalog

import "errors"

// Common sentinel errors
var (
	// ErrFileChanged means a path was re-registered with different
	// contents. File identity is content-addressed; a changed file needs
	// a fresh store.
	ErrFileChanged = errors.New("file contents changed since registration")
	// ErrFileNotFound means no file is registered under the given path
	// or id.
	ErrFileNotFound = errors.New("file is not registered")
	// ErrBadPosition means a line/column or offset lies outside the
	// registered file.
	ErrBadPosition = errors.New("position outside file")
	// ErrRunNotFound means no run is registered under the given id.
	ErrRunNotFound = errors.New("run is not registered")
	// ErrCorruptRow means a stored catalog row does not decode.
	ErrCorruptRow = errors.New("catalog row is malformed")
)
