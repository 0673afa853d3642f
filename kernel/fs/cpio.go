// Package fs is the kernel's read-only in-RAM filesystem: a CPIO-newc
// archive handed off by the bootloader as a module is parsed once at boot
// into a flat file table, then served through Read/Stat/List. One mount,
// no delete/create.
package fs

import (
	"strconv"
	"strings"

	"github.com/IAmTheNerdNextDoor/arikoto/kernel/errors"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem"
)

// headerSize is the size, in bytes, of a CPIO-newc entry header (the
// "070701" magic plus thirteen 8-digit hex fields) that precedes each
// entry's file name.
const headerSize = 110

// field offsets within a header, matching the newc layout exactly
// (offset = 6 + fieldIndex*8).
const (
	offMode     = 6 + 1*8
	offFilesize = 6 + 6*8
	offNamesize = 6 + 11*8
)

const (
	modeTypeMask = 0170000
	modeDir      = 0040000
	modeFile     = 0100000
)

// trailerName marks the end of a CPIO-newc archive.
const trailerName = "TRAILER!!!"

var (
	// ErrNotFound is returned by Read/Stat/List when no entry exists at
	// the requested path.
	ErrNotFound = errors.KernelError("fs: not found")
	// ErrNotDir is returned by List when the path names a regular file.
	ErrNotDir = errors.KernelError("fs: not a directory")
	// ErrIsDir is returned by Read when the path names a directory.
	ErrIsDir = errors.KernelError("fs: is a directory")
	// ErrNotMounted is returned by any lookup performed before Mount.
	ErrNotMounted = errors.KernelError("fs: no initramfs mounted")
)

// entry describes one file or directory parsed out of the archive.
type entry struct {
	name  string
	data  []byte
	isDir bool
}

var (
	entries []entry
	mounted bool
)

// normalizePath strips leading "./" and "/" segments and any trailing
// slash so paths like "./etc/motd", "/etc/motd" and "etc/motd" all resolve
// to the same entry.
func normalizePath(p string) string {
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	p = strings.TrimLeft(p, "/")
	p = strings.TrimRight(p, "/")
	return p
}

func hexField(b []byte, off int) uint32 {
	v, _ := strconv.ParseUint(string(b[off:off+8]), 16, 32)
	return uint32(v)
}

// Mount parses the CPIO-newc archive occupying size bytes starting at addr
// (a boot module, already addressable through the HHDM) and replaces any
// previously mounted archive. It never fails on a malformed archive; a
// short or corrupt region simply yields fewer (possibly zero) entries.
func Mount(addr uintptr, size mem.Size) {
	raw := mem.BytesAt(addr, size)
	entries = entries[:0]

	p := 0
	for p+headerSize < len(raw) {
		if string(raw[p:p+6]) != "070701" {
			break
		}

		mode := hexField(raw, p+offMode)
		filesize := int(hexField(raw, p+offFilesize))
		namesize := int(hexField(raw, p+offNamesize))

		nameStart := p + headerSize
		if nameStart+namesize > len(raw) {
			break
		}
		name := strings.TrimRight(string(raw[nameStart:nameStart+namesize]), "\x00")

		dataStart := align4(nameStart + namesize)
		isDir := mode&modeTypeMask == modeDir
		isFile := mode&modeTypeMask == modeFile

		if name == trailerName {
			break
		}

		if isFile || isDir {
			var data []byte
			if isFile {
				if dataStart+filesize > len(raw) {
					break
				}
				data = raw[dataStart : dataStart+filesize]
			}
			entries = append(entries, entry{name: normalizePath(name), data: data, isDir: isDir})
		}

		p = dataStart + align4(filesize)
	}

	mounted = true
}

func align4(n int) int {
	return (n + 3) &^ 3
}

func find(path string) (*entry, bool) {
	norm := normalizePath(path)
	for i := range entries {
		if entries[i].name == norm {
			return &entries[i], true
		}
	}
	return nil, false
}

// Read returns the full contents of the file at path.
func Read(path string) ([]byte, error) {
	if !mounted {
		return nil, ErrNotMounted
	}
	e, ok := find(path)
	if !ok {
		return nil, ErrNotFound
	}
	if e.isDir {
		return nil, ErrIsDir
	}
	return e.data, nil
}

// Stat reports the size and kind of the entry at path.
func Stat(path string) (size int, isDir bool, err error) {
	if !mounted {
		return 0, false, ErrNotMounted
	}
	e, ok := find(path)
	if !ok {
		return 0, false, ErrNotFound
	}
	return len(e.data), e.isDir, nil
}

// List returns the names of the immediate children of dir ("" for the
// archive root), without recursing into subdirectories.
func List(dir string) ([]string, error) {
	if !mounted {
		return nil, ErrNotMounted
	}

	norm := normalizePath(dir)
	if norm != "" {
		e, ok := find(norm)
		if !ok {
			return nil, ErrNotFound
		}
		if !e.isDir {
			return nil, ErrNotDir
		}
	}

	var names []string
	for _, e := range entries {
		rest := e.name
		if norm != "" {
			prefix := norm + "/"
			if !strings.HasPrefix(e.name, prefix) {
				continue
			}
			rest = e.name[len(prefix):]
		}
		if rest == "" || strings.Contains(rest, "/") {
			continue
		}
		names = append(names, rest)
	}
	return names, nil
}
