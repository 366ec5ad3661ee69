package process

// Chunks is a lazy sequence of byte chunks. Next advances to the following
// chunk and reports whether there is one; Err reports why the sequence ended
// once Next has returned false.
type Chunks interface {
	Next() bool
	Chunk() []byte
	Err() error
}

// SliceChunks replays a fixed set of chunks.
type SliceChunks struct {
	chunks [][]byte
	pos    int
}

func NewSliceChunks(chunks ...[]byte) *SliceChunks {
	return &SliceChunks{chunks: chunks, pos: -1}
}

// StringChunks is a convenience for tests and small inputs.
func StringChunks(chunks ...string) *SliceChunks {
	bs := make([][]byte, len(chunks))
	for i, c := range chunks {
		bs[i] = []byte(c)
	}
	return NewSliceChunks(bs...)
}

func (s *SliceChunks) Next() bool {
	if s.pos+1 >= len(s.chunks) {
		s.pos = len(s.chunks)
		return false
	}
	s.pos++
	return true
}

func (s *SliceChunks) Chunk() []byte {
	if s.pos < 0 || s.pos >= len(s.chunks) {
		return nil
	}
	return s.chunks[s.pos]
}

func (s *SliceChunks) Err() error { return nil }

// ReadAll drains a sequence into memory.
func ReadAll(c Chunks) ([][]byte, error) {
	var out [][]byte
	for c.Next() {
		b := append([]byte(nil), c.Chunk()...)
		out = append(out, b)
	}
	return out, c.Err()
}
