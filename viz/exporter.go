package viz

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/motionkit/logging"
	"go.viam.com/motionkit/motionplan"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// FileExporter writes every exported path to a directory: a joint plot as <name>.png and, when RenderTree is
// set and a tree comes along, the planner tree as <name>_tree.svg.
type FileExporter struct {
	Dir        string
	JointNames []string
	RenderTree bool
	MaxNodes   int
	Logger     logging.Logger

	mu      sync.Mutex
	written []string
}

// NewFileExporter creates dir if needed.
func NewFileExporter(dir string, renderTree bool, logger logging.Logger) (*FileExporter, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "create output directory %q", dir)
	}
	return &FileExporter{Dir: dir, RenderTree: renderTree, Logger: logger}, nil
}

// ExportPath writes the files of one path. It is safe to call from several goroutines.
func (e *FileExporter) ExportPath(name string, path *motionplan.Path, tree *motionplan.Tree) error {
	base := unsafeFileChars.ReplaceAllString(name, "_")
	if base == "" {
		base = "path"
	}

	var buf bytes.Buffer
	err := WritePathPNG(&buf, name, e.JointNames, path)
	if err == nil {
		err = e.write(base+".png", buf.Bytes())
	}
	if e.RenderTree && tree != nil && tree.Size() > 0 {
		svg, renderErr := RenderSVG(context.Background(), TreeToDOT(tree, path, e.MaxNodes))
		if renderErr == nil {
			renderErr = e.write(base+"_tree.svg", svg)
		}
		err = multierr.Combine(err, renderErr)
	}
	if err != nil {
		return errors.Wrapf(err, "export %q", name)
	}
	if e.Logger != nil {
		e.Logger.Debugw("exported path", "name", name, "points", path.Len(), "length", path.Length())
	}
	return nil
}

// Written lists the files written so far.
func (e *FileExporter) Written() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.written...)
}

func (e *FileExporter) write(file string, data []byte) error {
	full := filepath.Join(e.Dir, file)
	if err := os.WriteFile(full, data, 0o640); err != nil {
		return err
	}
	e.mu.Lock()
	e.written = append(e.written, full)
	e.mu.Unlock()
	return nil
}
