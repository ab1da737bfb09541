// Command snapshot-check validates snapshot documents produced by the session
// codec. It decodes each file, verifies the document version and root kind,
// checks that every edge index points at an existing node, that states are
// legal, that cached deletes carry the deleted state and that correlation
// identifiers are well formed and unique. With -states it also prints a
// per-state node count for each document.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"trackable/pkg/track"
)

// supportedVersion matches the codec's current document layout.
const supportedVersion = 1

var exitFunc = os.Exit

// document mirrors the codec's wire form. The checker keeps its own copy so
// it can inspect raw field values before any of the engine's repair logic
// runs.
type document struct {
	Version  int    `json:"version"`
	Kind     string `json:"kind"`
	Tracking bool   `json:"tracking"`
	Roots    []int  `json:"roots"`
	Deleted  []int  `json:"deleted"`
	Nodes    []node `json:"nodes"`
}

type node struct {
	Kind        string                    `json:"kind"`
	State       string                    `json:"state"`
	Modified    []string                  `json:"modified"`
	ID          string                    `json:"id"`
	Payload     json.RawMessage           `json:"payload"`
	Refs        map[string]int            `json:"refs"`
	Collections map[string]nodeCollection `json:"collections"`
}

type nodeCollection struct {
	Tracking bool  `json:"tracking"`
	Items    []int `json:"items"`
	Deleted  []int `json:"deleted"`
}

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("snapshot-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	states := fs.Bool("states", false, "print per-state node counts for each document")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: snapshot-check [-states] <snapshot.json> [...]")
		return 2
	}
	code := 0
	for _, path := range fs.Args() {
		doc, err := loadDocument(path)
		if err == nil {
			err = verifyDocument(doc)
		}
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", path, err)
			code = 1
			continue
		}
		if *states {
			fmt.Fprintf(stdout, "%s: %s\n", path, stateCounts(doc))
		}
		fmt.Fprintf(stdout, "%s: ok\n", path)
	}
	return code
}

func loadDocument(path string) (*document, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("empty path")
	}
	data, err := os.ReadFile(path) // #nosec G304: snapshot paths are operator-supplied arguments
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &doc, nil
}

func verifyDocument(doc *document) error {
	if doc.Version != supportedVersion {
		return fmt.Errorf("unsupported version %d, want %d", doc.Version, supportedVersion)
	}
	if strings.TrimSpace(doc.Kind) == "" {
		return errors.New("document kind is empty")
	}
	seenIDs := make(map[string]int)
	for i, n := range doc.Nodes {
		if err := verifyNode(doc, i, n, seenIDs); err != nil {
			return err
		}
	}
	if err := verifyEdges(doc, doc.Roots, "roots", doc.Kind, false); err != nil {
		return err
	}
	return verifyEdges(doc, doc.Deleted, "deleted", doc.Kind, true)
}

func verifyNode(doc *document, i int, n node, seenIDs map[string]int) error {
	if strings.TrimSpace(n.Kind) == "" {
		return fmt.Errorf("nodes[%d]: kind is empty", i)
	}
	if _, err := track.ParseState(n.State); err != nil {
		return fmt.Errorf("nodes[%d]: %w", i, err)
	}
	for name, j := range n.Refs {
		if j < 0 || j >= len(doc.Nodes) {
			return fmt.Errorf("nodes[%d]: reference %q: node index %d out of range", i, name, j)
		}
	}
	for name, col := range n.Collections {
		label := fmt.Sprintf("nodes[%d]: collection %q", i, name)
		if err := verifyEdges(doc, col.Items, label+" items", "", false); err != nil {
			return err
		}
		if err := verifyEdges(doc, col.Deleted, label+" deleted", "", true); err != nil {
			return err
		}
	}
	if n.ID != "" {
		if _, err := uuid.Parse(n.ID); err != nil {
			return fmt.Errorf("nodes[%d]: correlation id: %w", i, err)
		}
		if prev, ok := seenIDs[n.ID]; ok {
			return fmt.Errorf("nodes[%d]: correlation id %s already used by node %d", i, n.ID, prev)
		}
		seenIDs[n.ID] = i
	}
	return nil
}

// verifyEdges checks one index list. wantKind pins the target kind when the
// document declares it (roots and root deletes); collection edges pass ""
// because the wire form does not carry the collection's element kind.
func verifyEdges(doc *document, indices []int, label, wantKind string, requireDeleted bool) error {
	for k, j := range indices {
		if j < 0 || j >= len(doc.Nodes) {
			return fmt.Errorf("%s[%d]: node index %d out of range", label, k, j)
		}
		n := doc.Nodes[j]
		if wantKind != "" && n.Kind != wantKind {
			return fmt.Errorf("%s[%d]: node %d holds kind %q, want %q", label, k, j, n.Kind, wantKind)
		}
		if requireDeleted && n.State != string(track.StateDeleted) {
			return fmt.Errorf("%s[%d]: cached delete node %d carries state %q, want %q", label, k, j, n.State, track.StateDeleted)
		}
	}
	return nil
}

func stateCounts(doc *document) string {
	counts := make(map[string]int, 4)
	for _, n := range doc.Nodes {
		counts[n.State]++
	}
	parts := []string{fmt.Sprintf("nodes=%d", len(doc.Nodes))}
	for _, st := range []track.State{track.StateUnchanged, track.StateAdded, track.StateModified, track.StateDeleted} {
		parts = append(parts, fmt.Sprintf("%s=%d", st, counts[string(st)]))
	}
	return strings.Join(parts, " ")
}
