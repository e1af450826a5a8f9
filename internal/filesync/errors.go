package filesync

import "errors"

var (
	ErrPathEscapesRoot   = errors.New("filesync: path escapes root")
	ErrNotRegularFile    = errors.New("filesync: not a regular file")
	ErrNotDirectory      = errors.New("filesync: not a directory")
	ErrInconsistentChunk = errors.New("filesync: inconsistent chunk")
	ErrRetriesExhausted  = errors.New("filesync: retries exhausted")
)
