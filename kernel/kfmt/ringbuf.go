package kfmt

import "io"

// ringBufferSize is the size of the buffer that captures Printf output
// before a sink has been attached via SetOutputSink. Sized to hold the
// contents of a console a few screens deep; must be a power of 2.
const ringBufferSize = 4096

// ringBuffer is a fixed-capacity circular byte buffer. Writes never block
// and never fail; once full, the oldest unread bytes are silently
// overwritten. For pre-console diagnostic output, losing the oldest lines
// beats blocking the boot path.
type ringBuffer struct {
	buf            [ringBufferSize]byte
	rIndex, wIndex int
}

// Write implements io.Writer.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buf[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (ringBufferSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		}
	}

	return len(p), nil
}

// Read implements io.Reader, draining whatever has not yet been read.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	switch {
	case rb.rIndex < rb.wIndex:
		n := rb.wIndex - rb.rIndex
		if pLen := len(p); pLen < n {
			n = pLen
		}
		copy(p, rb.buf[rb.rIndex:rb.rIndex+n])
		rb.rIndex += n
		return n, nil
	case rb.rIndex > rb.wIndex:
		n := len(rb.buf) - rb.rIndex
		if pLen := len(p); pLen < n {
			n = pLen
		}
		copy(p, rb.buf[rb.rIndex:rb.rIndex+n])
		rb.rIndex += n
		if rb.rIndex == len(rb.buf) {
			rb.rIndex = 0
		}
		return n, nil
	default:
		return 0, io.EOF
	}
}
