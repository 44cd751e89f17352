package migration

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/crypto/blake2b"
)

// Status places the manifest next to what the database reports.
type Status struct {
	ManifestCounter     uint32
	ManifestStartID     *uint32
	ManifestToolVersion string
	Migrations          int

	Cursor Cursor
	// Current is the node the cursor points at; nil at the initial node or
	// when the manifest does not know the id.
	Current      *Node
	CursorKnown  bool
	UpDigest     string
	DownDigest   string
	Pending      int
	PendingSteps []Step
	// PathErr is set when the chain between cursor and newest migration is
	// broken; Pending is then meaningless.
	PathErr error
}

// Inspect collects the status report. It never writes to the manifest or the
// migration scripts.
func Inspect(ctx context.Context, reader CursorReader, graph *Graph) (Status, error) {
	cursor, err := reader.ReadCursor(ctx)
	if err != nil {
		return Status{}, NewDatabaseError("", "read cursor", err)
	}

	status := Status{
		ManifestCounter:     graph.Counter,
		ManifestStartID:     graph.StartID,
		ManifestToolVersion: graph.ToolVersion,
		Migrations:          graph.Len(),
		Cursor:              cursor,
	}

	node, ok := graph.Lookup(cursor.LastApplied)
	status.CursorKnown = ok
	if !ok {
		return status, nil
	}

	if node.ID != InitialID {
		status.Current = &node
		status.UpDigest = fileDigest(graph.Files(), node.UpFile)
		status.DownDigest = fileDigest(graph.Files(), node.DownFile)
	}

	if cursor.LastApplied < graph.Counter {
		steps, err := graph.ResolvePath(cursor.LastApplied, graph.Counter)
		if err != nil {
			status.PathErr = err
		} else {
			status.PendingSteps = steps
			status.Pending = len(steps)
		}
	}

	return status, nil
}

// FileDigest returns the hex BLAKE2b-256 digest of a migration script.
func FileDigest(files fs.FS, name string) (string, error) {
	if files == nil {
		return "", fmt.Errorf("digest %s: %w", name, ErrMigrationFileMissing)
	}
	content, err := fs.ReadFile(files, scriptPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("digest %s: %w", name, ErrMigrationFileMissing)
		}
		return "", fmt.Errorf("digest %s: %w", name, err)
	}
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}

func fileDigest(files fs.FS, name string) string {
	digest, err := FileDigest(files, name)
	if err != nil {
		return ""
	}
	return digest
}
