package migration

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownMigration indicates that a requested migration id is not part of the chain
	ErrUnknownMigration = errors.New("unknown migration")

	// ErrCircularMigration indicates that the chain loops back on itself
	ErrCircularMigration = errors.New("circular migration")

	// ErrPathInvalid indicates that the chain ends before the requested migration is reached
	ErrPathInvalid = errors.New("migration path invalid")

	// ErrMigrationFileMissing indicates that an up or down script of a node is not on disk
	ErrMigrationFileMissing = errors.New("migration file not found")

	// ErrDuplicateMigration indicates that the manifest lists the same id twice
	ErrDuplicateMigration = errors.New("duplicate migration id")

	// ErrInvalidName indicates that a new migration name has no usable characters
	ErrInvalidName = errors.New("invalid migration name")

	// ErrCursorCorrupt indicates that the migren_data table holds an unusable value
	ErrCursorCorrupt = errors.New("migren_data table is corrupted")
)

// PathRequest is the move that was asked for.
type PathRequest struct {
	From uint32
	To   uint32
}

// PathError describes a failed path resolution.
type PathError struct {
	Request  PathRequest
	Endpoint string // "from" or "to" when an endpoint is unknown
	Node     *Node  // node where the walk failed
	Err      error
}

// Error implements the error interface
func (e *PathError) Error() string {
	switch {
	case e.Endpoint != "":
		id := e.Request.From
		if e.Endpoint == "to" {
			id = e.Request.To
		}
		return fmt.Sprintf("resolve path %d -> %d: %s migration %d: %v", e.Request.From, e.Request.To, e.Endpoint, id, e.Err)
	case e.Node != nil:
		return fmt.Sprintf("resolve path %d -> %d: at migration %d (%s): %v", e.Request.From, e.Request.To, e.Node.ID, e.Node.Name, e.Err)
	default:
		return fmt.Sprintf("resolve path %d -> %d: %v", e.Request.From, e.Request.To, e.Err)
	}
}

// Unwrap returns the underlying error
func (e *PathError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches a target error
func (e *PathError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// FileSystemError wraps file system failures tied to a migration node
type FileSystemError struct {
	Node      Node
	Path      string
	Operation string
	Err       error
}

// Error implements the error interface
func (e *FileSystemError) Error() string {
	return fmt.Sprintf("migration %d (%s): %s %s: %v", e.Node.ID, e.Node.Name, e.Operation, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *FileSystemError) Unwrap() error {
	return e.Err
}

// NewFileSystemError creates a new FileSystemError
func NewFileSystemError(node Node, path, operation string, err error) *FileSystemError {
	return &FileSystemError{
		Node:      node,
		Path:      path,
		Operation: operation,
		Err:       err,
	}
}

// DatabaseError wraps driver errors raised while applying migrations
type DatabaseError struct {
	StepID    uint32 // migration whose script failed; 0 outside a chain step
	File      string // script being executed, if any
	Operation string
	Err       error
}

// Error implements the error interface
func (e *DatabaseError) Error() string {
	if e.StepID != 0 {
		return fmt.Sprintf("database error in migration %d (%s) during %s: %v", e.StepID, e.File, e.Operation, e.Err)
	}
	if e.File != "" {
		return fmt.Sprintf("database error in %s during %s: %v", e.File, e.Operation, e.Err)
	}
	return fmt.Sprintf("database error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// NewDatabaseError creates a new DatabaseError
func NewDatabaseError(file, operation string, err error) *DatabaseError {
	return &DatabaseError{
		File:      file,
		Operation: operation,
		Err:       err,
	}
}
