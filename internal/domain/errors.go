package domain

import "errors"

// Standard errors returned by the core. Tool failures are deliberately not
// represented here: a tool that ran and reported an error is recovered into
// a structured error envelope, never propagated as a protocol fault.
var (
	// ErrGroupNotFound means the requested group name is absent from the
	// configuration map fixed at process start.
	ErrGroupNotFound = errors.New("group not found")

	// ErrInvalidRequest means the call was malformed (e.g. empty tool name)
	// and was rejected before any tool ran.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnknownTool means the name resolved in neither the static registry
	// nor the dynamic executor path.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrResourceNotFound means no exposed resource matches the given URI.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrNoContent means a resource loader yielded no content. Treated as a
	// load failure, not as an empty document.
	ErrNoContent = errors.New("resource has no content")
)
