package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
)

// Graph is the chain of migrations described by the manifest.
//
// Nodes keep the order in which they were created; lookups always go through
// the id index, never through the slice position.
type Graph struct {
	Migrations  []Node  `json:"migrations"`
	ToolVersion string  `json:"tool_version"`
	StartID     *uint32 `json:"migrations_start_id"`
	Counter     uint32  `json:"migrations_counter"`

	dir   string
	files fs.FS
	index map[uint32]int
}

// NewGraph returns an empty graph whose scripts are read from files.
func NewGraph(toolVersion string, files fs.FS) *Graph {
	return &Graph{
		Migrations:  make([]Node, 0),
		ToolVersion: toolVersion,
		files:       files,
		index:       make(map[uint32]int),
	}
}

// Dir returns the migration directory the graph was loaded from, if any.
func (g *Graph) Dir() string {
	return g.dir
}

// Files returns the file system holding the migration scripts.
func (g *Graph) Files() fs.FS {
	return g.files
}

// Len returns the number of real migrations.
func (g *Graph) Len() int {
	return len(g.Migrations)
}

func (g *Graph) reindex() error {
	index := make(map[uint32]int, len(g.Migrations))
	for i, node := range g.Migrations {
		if node.ID == InitialID {
			return fmt.Errorf("%w: id %d is reserved", ErrDuplicateMigration, InitialID)
		}
		if _, ok := index[node.ID]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateMigration, node.ID)
		}
		index[node.ID] = i
	}
	g.index = index
	return nil
}

// Lookup returns the node with the given id. Id 0 yields the synthetic initial
// node, linked to the first real migration.
func (g *Graph) Lookup(id uint32) (Node, bool) {
	if id == InitialID {
		initial := Node{ID: InitialID, Name: "initial"}
		if g.StartID != nil {
			initial.NextID = idPtr(*g.StartID)
		}
		return initial, true
	}
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.Migrations[i], true
}

// Append allocates the next id, links the new node after the current tail and
// advances the counter. It does not touch the file system.
func (g *Graph) Append(name string) (Node, error) {
	if g.index == nil {
		if err := g.reindex(); err != nil {
			return Node{}, err
		}
	}

	id := g.Counter + 1
	if _, exists := g.index[id]; exists {
		return Node{}, fmt.Errorf("append migration %q: %w: %d (migrations_counter is behind the chain)", name, ErrDuplicateMigration, id)
	}
	node := Node{
		ID:       id,
		Name:     name,
		UpFile:   fmt.Sprintf("%d_%s_up.sql", id, name),
		DownFile: fmt.Sprintf("%d_%s_down.sql", id, name),
	}

	if g.StartID == nil {
		g.StartID = idPtr(id)
	} else {
		tail, ok := g.index[g.Counter]
		if !ok {
			return Node{}, fmt.Errorf("append migration %q: %w: tail migration %d", name, ErrUnknownMigration, g.Counter)
		}
		if next := g.Migrations[tail].NextID; next != nil {
			return Node{}, fmt.Errorf("append migration %q: %w: tail migration %d already links to %d", name, ErrPathInvalid, g.Counter, *next)
		}
		g.Migrations[tail].NextID = idPtr(id)
		node.PrevID = idPtr(g.Counter)
	}

	g.Migrations = append(g.Migrations, node)
	g.index[id] = len(g.Migrations) - 1
	g.Counter = id
	return node, nil
}

// nextOf returns the id following node in the chain.
func (g *Graph) nextOf(node Node) (uint32, bool) {
	if node.NextID == nil {
		return 0, false
	}
	return *node.NextID, true
}

// prevOf returns the id preceding node in the chain. The first real migration
// precedes onto the initial node.
func (g *Graph) prevOf(node Node) (uint32, bool) {
	if node.PrevID != nil {
		return *node.PrevID, true
	}
	if node.ID != InitialID && g.StartID != nil && *g.StartID == node.ID {
		return InitialID, true
	}
	return 0, false
}

// ResolvePath computes the scripts that move the database from one migration
// to another. Moving forward yields up scripts of every node after from up to
// and including to; moving backward yields down scripts of every node from
// from down to, but excluding, to.
func (g *Graph) ResolvePath(from, to uint32) ([]Step, error) {
	request := PathRequest{From: from, To: to}

	current, ok := g.Lookup(from)
	if !ok {
		return nil, &PathError{Request: request, Endpoint: "from", Err: ErrUnknownMigration}
	}
	if _, ok := g.Lookup(to); !ok {
		return nil, &PathError{Request: request, Endpoint: "to", Err: ErrUnknownMigration}
	}

	steps := make([]Step, 0)
	if from == to {
		return steps, nil
	}

	forward := from < to
	visited := make(map[uint32]struct{})

	for current.ID != to {
		if _, seen := visited[current.ID]; seen {
			node := current
			return nil, &PathError{Request: request, Node: &node, Err: ErrCircularMigration}
		}
		visited[current.ID] = struct{}{}

		if forward {
			next, err := g.neighbor(request, current, g.nextOf)
			if err != nil {
				return nil, err
			}
			current = next
			if current.ID == InitialID {
				continue
			}
			if err := g.checkFiles(current); err != nil {
				return nil, err
			}
			steps = append(steps, Step{ID: current.ID, File: current.UpFile})
			continue
		}

		if current.ID != InitialID {
			if err := g.checkFiles(current); err != nil {
				return nil, err
			}
			steps = append(steps, Step{ID: current.ID, File: current.DownFile})
		}
		prev, err := g.neighbor(request, current, g.prevOf)
		if err != nil {
			return nil, err
		}
		current = prev
	}

	return steps, nil
}

func (g *Graph) neighbor(request PathRequest, node Node, link func(Node) (uint32, bool)) (Node, error) {
	id, ok := link(node)
	if !ok {
		return Node{}, &PathError{Request: request, Node: &node, Err: ErrPathInvalid}
	}
	neighbor, ok := g.Lookup(id)
	if !ok {
		return Node{}, &PathError{
			Request: request,
			Node:    &node,
			Err:     fmt.Errorf("%w: linked migration %d does not exist", ErrPathInvalid, id),
		}
	}
	return neighbor, nil
}

// checkFiles verifies that both scripts of node are present.
func (g *Graph) checkFiles(node Node) error {
	for _, name := range []string{node.UpFile, node.DownFile} {
		p := scriptPath(name)
		if g.files == nil {
			return NewFileSystemError(node, p, "stat", ErrMigrationFileMissing)
		}
		if _, err := fs.Stat(g.files, p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				err = ErrMigrationFileMissing
			}
			return NewFileSystemError(node, p, "stat", err)
		}
	}
	return nil
}

// scriptPath converts a manifest file entry into an fs.FS path.
func scriptPath(name string) string {
	return path.Clean(filepath.ToSlash(name))
}
