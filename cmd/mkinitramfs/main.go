// Command mkinitramfs packs a directory tree into the CPIO-newc archive
// kernel/fs expects as a boot module. It writes the archive the same way
// kernel/fs.Mount reads it (070701 magic, thirteen 8-hex-digit fields, name
// and data each padded to a 4-byte boundary, terminated by a TRAILER!!!
// entry) so the two sides of the format agree without a shared spec beyond
// this repository.
//
// After assembly it mmaps the written file with golang.org/x/sys/unix and
// compares the mapped length against the archive size it computed in
// memory, rather than trusting the return value of io.Copy/Write alone:
// a short write to a full disk or a truncated NFS mount returns a count
// that still looks plausible, but the file on disk is wrong. Mapping it
// back and measuring is how the real size gets checked before anything
// hands the archive to a bootloader as a module.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[mkinitramfs] error: %s\n", err.Error())
	os.Exit(1)
}

// newcHeader is the fixed 110-byte CPIO-newc header, every field an 8-digit
// hex string, matching kernel/fs.headerSize and the offsets it reads.
type newcHeader struct {
	ino, mode, uid, gid, nlink, mtime, filesize uint32
	devmajor, devminor, rdevmajor, rdevminor    uint32
	namesize, check                             uint32
}

const (
	modeDir  = 0040000
	modeFile = 0100000
)

func align4(n int) int { return (n + 3) &^ 3 }

func writeHeader(buf *strings.Builder, h newcHeader, name string) {
	fmt.Fprintf(buf, "070701%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x",
		h.ino, h.mode, h.uid, h.gid, h.nlink, h.mtime, h.filesize,
		h.devmajor, h.devminor, h.rdevmajor, h.rdevminor, h.namesize, h.check)
	buf.WriteString(name)
	buf.WriteByte(0)
	// Header plus name is padded to a 4-byte boundary of the archive.
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}

func writeEntry(buf *strings.Builder, name string, data []byte, isDir bool, ino uint32) {
	mode := uint32(modeFile | 0644)
	if isDir {
		mode = modeDir | 0755
	}
	writeHeader(buf, newcHeader{
		ino:      ino,
		mode:     mode,
		nlink:    1,
		filesize: uint32(len(data)),
		namesize: uint32(len(name) + 1),
	}, name)

	buf.Write(data)
	pad := align4(len(data)) - len(data)
	for i := 0; i < pad; i++ {
		buf.WriteByte(0)
	}
}

func writeTrailer(buf *strings.Builder, ino uint32) {
	writeHeader(buf, newcHeader{ino: ino, nlink: 1, namesize: uint32(len("TRAILER!!!") + 1)}, "TRAILER!!!")
}

// buildArchive walks root and returns the assembled CPIO-newc bytes, entry
// names normalized to forward-slash, root-relative paths the way
// kernel/fs.normalizePath expects them.
func buildArchive(root string) ([]byte, error) {
	type found struct {
		name  string
		data  []byte
		isDir bool
	}
	var entries []found

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			entries = append(entries, found{name: rel, isDir: true})
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		entries = append(entries, found{name: rel, data: data})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	var buf strings.Builder
	for i, e := range entries {
		writeEntry(&buf, e.name, e.data, e.isDir, uint32(i+1))
	}
	writeTrailer(&buf, uint32(len(entries)+1))

	return []byte(buf.String()), nil
}

// verifyWritten mmaps path and confirms the mapped region is exactly
// wantSize bytes, catching a short or truncated write before the archive is
// handed off as a boot module.
func verifyWritten(path string, wantSize int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.Size() != int64(wantSize) {
		return fmt.Errorf("%s: wrote %d bytes but stat reports %d", path, wantSize, st.Size())
	}

	mapped, err := unix.Mmap(int(f.Fd()), 0, wantSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("%s: mmap verification failed: %w", path, err)
	}
	defer unix.Munmap(mapped)

	if len(mapped) != wantSize {
		return fmt.Errorf("%s: mapped %d bytes, expected %d", path, len(mapped), wantSize)
	}
	if mapped[0] != '0' || mapped[1] != '7' {
		return fmt.Errorf("%s: mapped region does not start with a 070701 newc header", path)
	}

	return nil
}

func run() error {
	root := flag.String("root", "", "directory tree to archive")
	out := flag.String("out", "initramfs.cpio", "output archive path")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "mkinitramfs: pack a directory into a CPIO-newc initramfs module\n\n")
		fmt.Fprint(os.Stderr, "Usage: mkinitramfs -root dir -out initramfs.cpio\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *root == "" {
		return errors.New("missing -root")
	}

	archive, err := buildArchive(*root)
	if err != nil {
		return err
	}

	if err := os.WriteFile(*out, archive, 0644); err != nil {
		return err
	}

	if err := verifyWritten(*out, len(archive)); err != nil {
		return err
	}

	fmt.Printf("wrote %s (%d bytes)\n", *out, len(archive))
	return nil
}

func main() {
	if err := run(); err != nil {
		exit(err)
	}
}
