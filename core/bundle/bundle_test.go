package bundle

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ulikunitz/xz"

	rlerrors "github.com/redlinekit/redline/core/errors"
)

func TestCreateAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tar.xz")

	entries := []Entry{
		{Name: "b.md", Data: []byte("# second\n")},
		{Name: "a.md", Data: []byte("# first\n")},
		{Name: "c.md", Data: []byte("# third\n")},
	}

	if err := Create(path, entries); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	infos, err := List(path)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(infos) != 3 {
		t.Fatalf("len(infos) = %d; want 3", len(infos))
	}

	// Entries come back in sorted name order
	wantNames := []string{"a.md", "b.md", "c.md"}
	wantSizes := []int64{9, 10, 9}
	for i, info := range infos {
		if info.Name != wantNames[i] {
			t.Errorf("infos[%d].Name = %s; want %s", i, info.Name, wantNames[i])
		}
		if info.Size != wantSizes[i] {
			t.Errorf("infos[%d].Size = %d; want %d", i, info.Size, wantSizes[i])
		}
	}
}

func TestWriteDeterministic(t *testing.T) {
	entries := []Entry{
		{Name: "z.md", Data: []byte("zzz")},
		{Name: "a.md", Data: []byte("aaa")},
	}

	var first, second bytes.Buffer
	if err := Write(&first, entries); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}

	// Reversed input order must not change the output bytes
	reversed := []Entry{entries[1], entries[0]}
	if err := Write(&second, reversed); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("Write output differs for identical entry sets")
	}
}

func TestCreateRoundTripData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tar.xz")

	want := map[string][]byte{
		"report.md": []byte("# Report\n\nThe budget grew.\n"),
		"notes.md":  []byte("- alpha\n- beta\n"),
	}

	entries := []Entry{
		{Name: "report.md", Data: want["report.md"]},
		{Name: "notes.md", Data: want["notes.md"]},
	}
	if err := Create(path, entries); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Read the archive back with the raw xz and tar readers
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer f.Close()

	xzr, err := xz.NewReader(f)
	if err != nil {
		t.Fatalf("xz.NewReader failed: %v", err)
	}

	tr := tar.NewReader(xzr)
	got := make(map[string][]byte)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar.Next failed: %v", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("failed to read %s: %v", header.Name, err)
		}
		got[header.Name] = data
	}

	if len(got) != len(want) {
		t.Fatalf("archive has %d entries; want %d", len(got), len(want))
	}
	for name, data := range want {
		if !bytes.Equal(got[name], data) {
			t.Errorf("entry %s = %q; want %q", name, got[name], data)
		}
	}
}

func TestCreateEmptyName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tar.xz")

	err := Create(path, []Entry{{Name: "", Data: []byte("x")}})
	if err == nil {
		t.Fatal("Create should fail for empty entry name")
	}
	if !errors.Is(err, rlerrors.ErrInvalidInput) {
		t.Errorf("error = %v; want ErrInvalidInput", err)
	}
}

func TestCreateDuplicateName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tar.xz")

	err := Create(path, []Entry{
		{Name: "a.md", Data: []byte("x")},
		{Name: "a.md", Data: []byte("y")},
	})
	if err == nil {
		t.Fatal("Create should fail for duplicate entry name")
	}

	var verr *rlerrors.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %T; want *ValidationError", err)
	}

	// No file should be left behind
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("archive file should not exist after validation failure")
	}
}

func TestListMissingFile(t *testing.T) {
	_, err := List(filepath.Join(t.TempDir(), "absent.tar.xz"))
	if err == nil {
		t.Fatal("List should fail for missing file")
	}

	var ioErr *rlerrors.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("error = %T; want *IOError", err)
	}
	if ioErr.Operation != "open" {
		t.Errorf("Operation = %s; want open", ioErr.Operation)
	}
}

func TestListNotXZ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.tar.xz")
	if err := os.WriteFile(path, []byte("this is not an xz stream"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	_, err := List(path)
	if err == nil {
		t.Fatal("List should fail for non-xz input")
	}

	var perr *rlerrors.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %T; want *ParseError", err)
	}
	if perr.Format != "xz" {
		t.Errorf("Format = %s; want xz", perr.Format)
	}
}

func TestListCorruptTar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.tar.xz")

	// A valid xz stream whose payload is not a tar archive
	var buf bytes.Buffer
	xzw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz.NewWriter failed: %v", err)
	}
	if _, err := xzw.Write([]byte("payload that is not a tar header")); err != nil {
		t.Fatalf("xz write failed: %v", err)
	}
	if err := xzw.Close(); err != nil {
		t.Fatalf("xz close failed: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	_, err = List(path)
	if err == nil {
		t.Fatal("List should fail for non-tar payload")
	}

	var perr *rlerrors.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %T; want *ParseError", err)
	}
	if perr.Format != "tar" {
		t.Errorf("Format = %s; want tar", perr.Format)
	}
}

func TestCreateUnwritablePath(t *testing.T) {
	err := Create(filepath.Join(t.TempDir(), "missing-dir", "out.tar.xz"), []Entry{
		{Name: "a.md", Data: []byte("x")},
	})
	if err == nil {
		t.Fatal("Create should fail for unwritable path")
	}

	var ioErr *rlerrors.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("error = %T; want *IOError", err)
	}
	if ioErr.Operation != "create" {
		t.Errorf("Operation = %s; want create", ioErr.Operation)
	}
}

func TestWriteEmptySet(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil); err != nil {
		t.Fatalf("Write failed for empty entry set: %v", err)
	}

	// The result is still a readable, empty archive
	xzr, err := xz.NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("xz.NewReader failed: %v", err)
	}
	tr := tar.NewReader(xzr)
	if _, err := tr.Next(); err != io.EOF {
		t.Errorf("tar.Next = %v; want io.EOF", err)
	}
}
