package core

// MemBuffer is a plain in-memory Buffer, standing in for the plasma
// store's shared-memory segment in tests, the demo CLI, and any backend
// that actually needs to read bytes out of a buffer it holds. It
// implements the ioworkers.Readable capability so a reference
// IOWorkerPool can fuse it into a spill write.
type MemBuffer struct {
	data     []byte
	released bool
}

func NewMemBuffer(data []byte) *MemBuffer {
	return &MemBuffer{data: data}
}

func (b *MemBuffer) Size() int64 { return int64(len(b.data)) }

func (b *MemBuffer) Release() { b.released = true }

func (b *MemBuffer) Released() bool { return b.released }

// Bytes satisfies ioworkers.Readable.
func (b *MemBuffer) Bytes() []byte { return b.data }
