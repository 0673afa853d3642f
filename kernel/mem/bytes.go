package mem

import (
	"reflect"
	"unsafe"
)

// BytesAt views the size bytes starting at addr as a []byte, the same
// reflect.SliceHeader trick Memcopy/Memset use to hand raw memory regions
// to code that wants slice semantics. The caller is responsible for addr
// being valid (mapped, readable) for the full length; this is typically a
// boot-module region the bootloader has already placed in the HHDM.
func BytesAt(addr uintptr, size Size) []byte {
	if size == 0 {
		return nil
	}

	return *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: addr,
	}))
}
