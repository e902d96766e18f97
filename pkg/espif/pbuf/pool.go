package pbuf

// Allocator allocates packet buffers.
type Allocator interface {
	Alloc(size int) (*Buffer, error)
}

// DefaultSegmentSize matches a typical pool buffer of an embedded IP stack.
const DefaultSegmentSize = 512

// Pool is a bounded allocator of fixed size segments. A buffer larger than
// a segment is built from a chain of segments.
type Pool struct {
	segSize int
	free    chan []byte
}

// NewPool creates a Pool holding count segments of segSize bytes.
func NewPool(count, segSize int) *Pool {
	if segSize <= 0 {
		segSize = DefaultSegmentSize
	}
	p := &Pool{segSize: segSize, free: make(chan []byte, count)}
	for i := 0; i < count; i++ {
		p.free <- make([]byte, segSize)
	}
	return p
}

// SegmentSize returns the size of a single segment.
func (p *Pool) SegmentSize() int {
	return p.segSize
}

// Available returns the number of free segments.
func (p *Pool) Available() int {
	return len(p.free)
}

// Alloc implements Allocator. It never blocks: if not enough segments are
// free, it fails with ErrNoMem.
func (p *Pool) Alloc(size int) (*Buffer, error) {
	n := (size + p.segSize - 1) / p.segSize
	segs := make([][]byte, 0, n)
	for remains := size; remains > 0; remains -= p.segSize {
		select {
		case seg := <-p.free:
			if remains < p.segSize {
				seg = seg[:remains]
			}
			segs = append(segs, seg)
		default:
			p.put(segs)
			return nil, ErrNoMem
		}
	}
	return &Buffer{segs: segs, pool: p}, nil
}

// FromBytes allocates a buffer from alloc and copies p into it.
func FromBytes(alloc Allocator, p []byte) (*Buffer, error) {
	b, err := alloc.Alloc(len(p))
	if err != nil {
		return nil, err
	}
	for _, seg := range b.Segments() {
		p = p[copy(seg, p):]
	}
	return b, nil
}

func (p *Pool) put(segs [][]byte) {
	for _, seg := range segs {
		p.free <- seg[:p.segSize]
	}
}
