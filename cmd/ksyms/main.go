// Command ksyms turns a bare "rip=0x..." line from a kernel panic dump into
// something readable: given the built kernel ELF and a file offset (or a
// virtual address, which it translates via the program headers), it decodes
// the one x86-64 instruction living there with golang.org/x/arch/x86/x86asm
// and prints it alongside the nearest preceding ELF symbol.
//
// This is the host-side half of the kernel's panic path: kernel.Panic
// prints a bare RIP value (it cannot disassemble itself; there is no
// disassembler linked into the freestanding binary, and decoding machine
// code is squarely a hosted-tool job), and ksyms is what a developer runs
// afterwards against the crash log and the kernel ELF to see what
// instruction actually faulted.
package main

import (
	"debug/elf"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"golang.org/x/arch/x86/x86asm"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[ksyms] error: %s\n", err.Error())
	os.Exit(1)
}

// symtab is the subset of an ELF symbol table ksyms cares about: defined
// function symbols, sorted by address so nearestSymbol can binary-search it.
type symtab []elf.Symbol

func (s symtab) Len() int           { return len(s) }
func (s symtab) Less(i, j int) bool { return s[i].Value < s[j].Value }
func (s symtab) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

func loadSymbols(f *elf.File) (symtab, error) {
	syms, err := f.Symbols()
	if err != nil {
		return nil, err
	}

	var out symtab
	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Value == 0 {
			continue
		}
		out = append(out, sym)
	}
	sort.Sort(out)
	return out, nil
}

// nearestSymbol returns the last symbol whose address does not exceed addr,
// and the byte offset of addr into it.
func nearestSymbol(syms symtab, addr uint64) (elf.Symbol, uint64, bool) {
	i := sort.Search(len(syms), func(i int) bool { return syms[i].Value > addr })
	if i == 0 {
		return elf.Symbol{}, 0, false
	}
	sym := syms[i-1]
	return sym, addr - sym.Value, true
}

// fileOffsetToVMA maps a raw file offset into the virtual address the
// program headers say it loads at, so "ksyms -offset" and "ksyms -vma" agree
// on which symbol they report.
func fileOffsetToVMA(f *elf.File, off uint64) (uint64, error) {
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if off >= prog.Off && off < prog.Off+prog.Filesz {
			return prog.Vaddr + (off - prog.Off), nil
		}
	}
	return 0, fmt.Errorf("file offset 0x%x is not covered by any PT_LOAD segment", off)
}

// vmaToFileOffset is the inverse of fileOffsetToVMA, used to locate the
// bytes backing a faulting instruction pointer.
func vmaToFileOffset(f *elf.File, vma uint64) (uint64, error) {
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if vma >= prog.Vaddr && vma < prog.Vaddr+prog.Filesz {
			return prog.Off + (vma - prog.Vaddr), nil
		}
	}
	return 0, fmt.Errorf("virtual address 0x%x is not covered by any PT_LOAD segment", vma)
}

func run() error {
	img := flag.String("img", "", "path to the built kernel ELF image")
	vma := flag.Uint64("vma", 0, "virtual address of the instruction to decode (e.g. a panic dump's rip=)")
	off := flag.Uint64("offset", 0, "file offset of the instruction to decode, instead of -vma")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "ksyms: disassemble one instruction from a kernel image and name its symbol\n\n")
		fmt.Fprint(os.Stderr, "Usage: ksyms -img kernel.elf (-vma 0xADDR | -offset 0xOFF)\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *img == "" {
		return errors.New("missing -img")
	}
	if *vma == 0 && *off == 0 {
		return errors.New("one of -vma or -offset is required")
	}

	f, err := elf.Open(*img)
	if err != nil {
		return err
	}
	defer f.Close()

	if f.Machine != elf.EM_X86_64 {
		return fmt.Errorf("%s: not an x86-64 image (machine=%s)", *img, f.Machine)
	}

	var fileOff, addr uint64
	if *vma != 0 {
		addr = *vma
		fileOff, err = vmaToFileOffset(f, addr)
	} else {
		fileOff = *off
		addr, err = fileOffsetToVMA(f, fileOff)
	}
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(*img)
	if err != nil {
		return err
	}
	if fileOff >= uint64(len(raw)) {
		return fmt.Errorf("file offset 0x%x past end of image", fileOff)
	}

	// maxInstLen (15 bytes, the longest legal x86 instruction) bounds how
	// far a single instruction can reach; a short tail at EOF is fine,
	// Decode just sees fewer candidate bytes.
	const maxInstLen = 15
	end := fileOff + maxInstLen
	if end > uint64(len(raw)) {
		end = uint64(len(raw))
	}

	inst, err := x86asm.Decode(raw[fileOff:end], 64)
	if err != nil {
		return fmt.Errorf("decode at 0x%x (file offset 0x%x): %w", addr, fileOff, err)
	}

	syms, err := loadSymbols(f)
	if err != nil {
		return err
	}

	fmt.Printf("0x%016x: %s\n", addr, x86asm.GNUSyntax(inst, addr, nil))
	if sym, delta, ok := nearestSymbol(syms, addr); ok {
		fmt.Printf("  in %s+0x%x\n", sym.Name, delta)
	} else {
		fmt.Print("  (no preceding symbol)\n")
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		exit(err)
	}
}
