// Package bundle packs batch conversion outputs into a tar.xz archive.
//
// Archives are deterministic: entries are written in sorted name order with
// a fixed modification time, so packing the same outputs twice produces
// byte-identical archives.
package bundle

import (
	"archive/tar"
	"io"
	"os"
	"sort"
	"time"

	"github.com/ulikunitz/xz"

	rlerrors "github.com/redlinekit/redline/core/errors"
)

// epoch is the fixed modification time for archive entries. The zero
// time.Time is below the USTAR range, so the Unix epoch is used instead.
var epoch = time.Unix(0, 0).UTC()

// Injectable functions for testing error paths.
var (
	osCreate    = os.Create
	xzNewWriter = xz.NewWriter
	xzNewReader = xz.NewReader
)

// Entry is a named file to include in a bundle.
type Entry struct {
	Name string
	Data []byte
}

// Info describes an entry of an existing bundle.
type Info struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Create writes entries to a tar.xz archive at path.
func Create(path string, entries []Entry) error {
	if err := validate(entries); err != nil {
		return err
	}

	f, err := osCreate(path)
	if err != nil {
		return &rlerrors.IOError{Operation: "create", Path: path, Err: err}
	}

	if err := Write(f, entries); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return &rlerrors.IOError{Operation: "close", Path: path, Err: err}
	}
	return nil
}

// Write writes entries as a tar.xz stream. Entries are sorted by name and
// stamped with the fixed modification time so output is deterministic.
func Write(w io.Writer, entries []Entry) error {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	xzw, err := xzNewWriter(w)
	if err != nil {
		return &rlerrors.IOError{Operation: "compress", Err: err}
	}

	tw := tar.NewWriter(xzw)
	for _, e := range sorted {
		header := &tar.Header{
			Name:    e.Name,
			Mode:    0644,
			Size:    int64(len(e.Data)),
			ModTime: epoch,
		}
		if err := tw.WriteHeader(header); err != nil {
			return &rlerrors.IOError{Operation: "write", Path: e.Name, Err: err}
		}
		if _, err := tw.Write(e.Data); err != nil {
			return &rlerrors.IOError{Operation: "write", Path: e.Name, Err: err}
		}
	}

	if err := tw.Close(); err != nil {
		return &rlerrors.IOError{Operation: "write", Err: err}
	}
	if err := xzw.Close(); err != nil {
		return &rlerrors.IOError{Operation: "compress", Err: err}
	}
	return nil
}

// List returns the entries of the tar.xz archive at path.
func List(path string) ([]Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &rlerrors.IOError{Operation: "open", Path: path, Err: err}
	}
	defer f.Close()

	xzr, err := xzNewReader(f)
	if err != nil {
		return nil, &rlerrors.ParseError{Format: "xz", Path: path, Message: "not an xz stream", Err: err}
	}

	tr := tar.NewReader(xzr)
	var infos []Info
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &rlerrors.ParseError{Format: "tar", Path: path, Message: "corrupt archive", Err: err}
		}
		infos = append(infos, Info{Name: header.Name, Size: header.Size})
	}
	return infos, nil
}

func validate(entries []Entry) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return rlerrors.NewValidation("name", "bundle entry name is empty")
		}
		if seen[e.Name] {
			return rlerrors.NewValidation("name", "duplicate bundle entry: "+e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}
