package migration

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ManifestFileName is the manifest stored in the migration directory.
const ManifestFileName = ".migren.json"

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// ManifestPath returns the manifest location inside dir.
func ManifestPath(dir string) string {
	return filepath.Join(dir, ManifestFileName)
}

// LoadGraph reads the manifest in dir. A missing manifest is created empty.
func LoadGraph(dir, toolVersion string) (*Graph, error) {
	manifestPath := ManifestPath(dir)

	data, err := os.ReadFile(manifestPath)
	if errors.Is(err, fs.ErrNotExist) {
		graph := NewGraph(toolVersion, os.DirFS(dir))
		graph.dir = dir
		if err := SaveGraph(graph); err != nil {
			return nil, err
		}
		return graph, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", manifestPath, err)
	}

	graph := &Graph{}
	if err := json.Unmarshal(data, graph); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", manifestPath, err)
	}
	if graph.Migrations == nil {
		graph.Migrations = make([]Node, 0)
	}
	if err := graph.reindex(); err != nil {
		return nil, fmt.Errorf("load manifest %s: %w", manifestPath, err)
	}
	graph.dir = dir
	graph.files = os.DirFS(dir)
	return graph, nil
}

// SaveGraph writes the manifest back to the directory the graph belongs to.
func SaveGraph(graph *Graph) error {
	if graph.dir == "" {
		return errors.New("save manifest: graph has no migration directory")
	}

	data, err := json.MarshalIndent(graph, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	manifestPath := ManifestPath(graph.dir)
	tmp := manifestPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, manifestPath); err != nil {
		return fmt.Errorf("replace manifest %s: %w", manifestPath, err)
	}
	return nil
}

// CreateMigration appends a node named after name, writes empty up and down
// scripts for it and saves the manifest.
func CreateMigration(graph *Graph, name string) (Node, error) {
	clean := strings.Trim(unsafeNameChars.ReplaceAllString(strings.TrimSpace(name), "_"), "_")
	if clean == "" {
		return Node{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if graph.dir == "" {
		return Node{}, errors.New("create migration: graph has no migration directory")
	}

	node, err := graph.Append(clean)
	if err != nil {
		return Node{}, err
	}

	stubs := []struct {
		file      string
		direction string
	}{
		{node.UpFile, "up"},
		{node.DownFile, "down"},
	}
	for _, stub := range stubs {
		p := filepath.Join(graph.dir, filepath.FromSlash(stub.file))
		header := fmt.Sprintf("-- migration %d: %s (%s)\n", node.ID, node.Name, stub.direction)
		if err := os.WriteFile(p, []byte(header), 0o644); err != nil {
			return Node{}, NewFileSystemError(node, p, "create", err)
		}
	}

	if err := SaveGraph(graph); err != nil {
		return Node{}, err
	}
	return node, nil
}
