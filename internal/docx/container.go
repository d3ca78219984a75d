// Package docx opens .docx containers and lowers WordprocessingML into the
// annotated document model consumed by core/linearize.
//
// A .docx file is a zip archive. The reader loads four parts:
// word/document.xml (required), and word/styles.xml, word/numbering.xml,
// word/comments.xml (optional; absent parts yield empty resolvers).
package docx

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
	"os"

	rlerrors "github.com/redlinekit/redline/core/errors"
	"github.com/redlinekit/redline/core/xml"
)

// Content part paths inside the container.
const (
	PartDocument  = "word/document.xml"
	PartStyles    = "word/styles.xml"
	PartNumbering = "word/numbering.xml"
	PartComments  = "word/comments.xml"
)

// EntryInfo describes one file in the container.
type EntryInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"` // uncompressed
}

// File is an opened container with its content parts parsed. It holds no
// open handles; all part bytes are read at open time.
type File struct {
	name   string
	logger *slog.Logger

	document  *xml.Document
	styles    *Styles
	numbering *Numbering
	comments  *Comments

	parts   map[string][]byte
	entries []EntryInfo
}

// Options configures opening. A nil Logger uses slog.Default().
type Options struct {
	Logger *slog.Logger
}

// Open opens the .docx file at path.
func Open(path string, opts Options) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, rlerrors.NewIO("open", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, rlerrors.NewIO("stat", path, err)
	}
	return OpenReader(f, info.Size(), path, opts)
}

// OpenBytes opens a container held in memory. name is used in errors and
// logs only.
func OpenBytes(data []byte, name string, opts Options) (*File, error) {
	return OpenReader(bytes.NewReader(data), int64(len(data)), name, opts)
}

// OpenReader opens a container from a random-access reader of the given
// size. name is used in errors and logs only.
func OpenReader(r io.ReaderAt, size int64, name string, opts Options) (*File, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, &rlerrors.ParseError{
			Format:  "zip",
			Path:    name,
			Message: "not a zip container",
			Err:     err,
		}
	}

	f := &File{
		name:   name,
		logger: logger,
		parts:  make(map[string][]byte),
	}

	wanted := map[string]bool{
		PartDocument:  true,
		PartStyles:    true,
		PartNumbering: true,
		PartComments:  true,
	}
	for _, entry := range zr.File {
		f.entries = append(f.entries, EntryInfo{
			Name: entry.Name,
			Size: int64(entry.UncompressedSize64),
		})
		if !wanted[entry.Name] {
			continue
		}
		data, err := readEntry(entry)
		if err != nil {
			return nil, rlerrors.NewIO("read", name+"!"+entry.Name, err)
		}
		f.parts[entry.Name] = data
	}

	docData, ok := f.parts[PartDocument]
	if !ok {
		return nil, rlerrors.NewNotFound("part", PartDocument)
	}
	f.document, err = parsePart(name, PartDocument, docData)
	if err != nil {
		return nil, err
	}

	f.styles = emptyStyles()
	if data, ok := f.parts[PartStyles]; ok {
		part, err := parsePart(name, PartStyles, data)
		if err != nil {
			return nil, err
		}
		f.styles = parseStyles(part, logger)
	}

	f.numbering = emptyNumbering()
	if data, ok := f.parts[PartNumbering]; ok {
		part, err := parsePart(name, PartNumbering, data)
		if err != nil {
			return nil, err
		}
		f.numbering = parseNumbering(part, logger)
	}

	f.comments = emptyComments()
	if data, ok := f.parts[PartComments]; ok {
		part, err := parsePart(name, PartComments, data)
		if err != nil {
			return nil, err
		}
		f.comments = parseComments(part, logger)
	}

	logger.Debug("opened docx container",
		"name", name,
		"entries", len(f.entries),
		"has_styles", f.parts[PartStyles] != nil,
		"has_numbering", f.parts[PartNumbering] != nil,
		"has_comments", f.parts[PartComments] != nil)

	return f, nil
}

func readEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func parsePart(container, part string, data []byte) (*xml.Document, error) {
	d, err := xml.Parse(data)
	if err != nil {
		return nil, &rlerrors.ParseError{
			Format:  "XML",
			Path:    container + "!" + part,
			Message: "malformed part",
			Err:     err,
		}
	}
	return d, nil
}

// Name returns the container name given at open time.
func (f *File) Name() string { return f.name }

// Entries lists every file in the container in archive order.
func (f *File) Entries() []EntryInfo { return f.entries }

// Part returns the raw bytes of a loaded content part.
func (f *File) Part(name string) ([]byte, bool) {
	data, ok := f.parts[name]
	return data, ok
}

// Styles returns the heading-level resolver for this container.
func (f *File) Styles() *Styles { return f.styles }

// Numbering returns the list-marker resolver for this container.
func (f *File) Numbering() *Numbering { return f.numbering }

// Comments returns the comment-definition source for this container.
func (f *File) Comments() *Comments { return f.comments }
