package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/license-map/internal/model"
)

// JSONFile stores the dataset as one indented JSON document. Saves go to a
// temporary file in the same directory which is synced and renamed over the
// target, so a crash leaves either the old or the new snapshot.
type JSONFile struct {
	path string
}

// NewJSONFile returns a JSON checkpoint at path. Nothing is touched until
// the first Load or Save.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Path returns the checkpoint file location.
func (j *JSONFile) Path() string { return j.path }

// Load reads the checkpoint. A missing file yields ErrNotFound.
func (j *JSONFile) Load(_ context.Context) (*model.Dataset, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(ErrNotFound, "json: %s", j.path)
		}
		return nil, eris.Wrapf(err, "json: read %s", j.path)
	}

	var ds model.Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, eris.Wrapf(err, "json: decode %s", j.path)
	}
	return &ds, nil
}

// Save atomically replaces the checkpoint with ds.
func (j *JSONFile) Save(_ context.Context, ds *model.Dataset) error {
	if ds == nil {
		return eris.New("json: nil dataset")
	}
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return eris.Wrap(err, "json: encode dataset")
	}

	dir := filepath.Dir(j.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(j.path)+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "json: create temp in %s", dir)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		return eris.Wrapf(err, "json: write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		return eris.Wrapf(err, "json: sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "json: close %s", tmpName)
	}
	if err := os.Rename(tmpName, j.path); err != nil {
		return eris.Wrapf(err, "json: rename to %s", j.path)
	}
	committed = true

	return syncDir(dir)
}

// Close implements Store.
func (j *JSONFile) Close() error { return nil }

// syncDir flushes the directory entry so the rename survives a power loss.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return eris.Wrapf(err, "json: open dir %s", dir)
	}
	defer d.Close() //nolint:errcheck
	if err := d.Sync(); err != nil {
		return eris.Wrapf(err, "json: sync dir %s", dir)
	}
	return nil
}
