package fs

import (
	"fmt"
	"testing"
	"unsafe"

	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem"
)

// buildArchive assembles a CPIO-newc archive in memory, the same layout
// cmd/mkinitramfs writes and Mount parses.
func buildArchive(entries []struct {
	name  string
	data  string
	isDir bool
}) []byte {
	var out []byte

	appendEntry := func(name string, data string, mode uint32) {
		namesize := len(name) + 1
		header := fmt.Sprintf("070701%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x",
			0, mode, 0, 0, 1, 0, len(data), 0, 0, 0, 0, namesize, 0)
		out = append(out, header...)
		out = append(out, name...)
		out = append(out, 0)
		for len(out)%4 != 0 {
			out = append(out, 0)
		}
		out = append(out, data...)
		for len(out)%4 != 0 {
			out = append(out, 0)
		}
	}

	for _, e := range entries {
		mode := uint32(modeFile | 0644)
		if e.isDir {
			mode = modeDir | 0755
		}
		appendEntry(e.name, e.data, mode)
	}
	appendEntry(trailerName, "", 0)

	return out
}

func mountArchive(t *testing.T, raw []byte) func() {
	t.Helper()
	Mount(uintptr(unsafe.Pointer(&raw[0])), mem.Size(len(raw)))
	return func() {
		entries = nil
		mounted = false
	}
}

func testArchive(t *testing.T) func() {
	return mountArchive(t, buildArchive([]struct {
		name  string
		data  string
		isDir bool
	}{
		{"etc", "", true},
		{"etc/motd", "welcome to arikoto\n", false},
		{"etc/hostname", "arikoto", false},
		{"README", "hello", false},
	}))
}

func TestReadFile(t *testing.T) {
	defer testArchive(t)()

	data, err := Read("etc/motd")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "welcome to arikoto\n" {
		t.Errorf("unexpected file contents: %q", data)
	}
}

func TestReadNormalizesPaths(t *testing.T) {
	defer testArchive(t)()

	for _, path := range []string{"/etc/motd", "./etc/motd", "etc/motd/"} {
		if _, err := Read(path); err != nil {
			t.Errorf("Read(%q) failed: %v", path, err)
		}
	}
}

func TestReadErrors(t *testing.T) {
	defer testArchive(t)()

	if _, err := Read("no/such/file"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := Read("etc"); err != ErrIsDir {
		t.Errorf("expected ErrIsDir for a directory, got %v", err)
	}
}

func TestStat(t *testing.T) {
	defer testArchive(t)()

	size, isDir, err := Stat("README")
	if err != nil || isDir || size != len("hello") {
		t.Errorf("Stat(README) = (%d, %t, %v), want (5, false, nil)", size, isDir, err)
	}

	_, isDir, err = Stat("etc")
	if err != nil || !isDir {
		t.Errorf("expected Stat(etc) to report a directory, got isDir=%t err=%v", isDir, err)
	}
}

func TestListRootAndSubdir(t *testing.T) {
	defer testArchive(t)()

	root, err := List("")
	if err != nil {
		t.Fatalf("List root failed: %v", err)
	}
	if len(root) != 2 { // etc, README; etc/* must not leak into the root listing
		t.Errorf("expected 2 root entries, got %v", root)
	}

	etc, err := List("etc")
	if err != nil {
		t.Fatalf("List(etc) failed: %v", err)
	}
	if len(etc) != 2 {
		t.Errorf("expected 2 entries under etc/, got %v", etc)
	}

	if _, err := List("README"); err != ErrNotDir {
		t.Errorf("expected ErrNotDir when listing a regular file, got %v", err)
	}
	if _, err := List("nope"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound when listing a missing directory, got %v", err)
	}
}

func TestLookupsBeforeMountFail(t *testing.T) {
	entries = nil
	mounted = false

	if _, err := Read("anything"); err != ErrNotMounted {
		t.Errorf("expected ErrNotMounted, got %v", err)
	}
	if _, _, err := Stat("anything"); err != ErrNotMounted {
		t.Errorf("expected ErrNotMounted, got %v", err)
	}
	if _, err := List(""); err != ErrNotMounted {
		t.Errorf("expected ErrNotMounted, got %v", err)
	}
}

func TestMountToleratesTruncatedArchive(t *testing.T) {
	raw := buildArchive([]struct {
		name  string
		data  string
		isDir bool
	}{
		{"a", "1234", false},
		{"b", "5678", false},
	})

	// Chop the archive mid-way through the trailer entry's name, past the
	// end of both file entries.
	defer mountArchive(t, raw[:len(raw)-8])()

	if _, err := Read("a"); err != nil {
		t.Errorf("expected the intact leading entry to survive, got %v", err)
	}
}
