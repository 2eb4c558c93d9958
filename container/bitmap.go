package container

// Bitmap is a fixed-size bit set laid over a byte slice. Bit k lives in
// byte k/8 at position k%8 (least significant bit first), which is also
// how it travels on the wire.
type Bitmap []byte

// NewBitmap returns a zeroed bitmap able to hold size bits.
func NewBitmap(size int) Bitmap {
	return make(Bitmap, (size+7)/8)
}

// Len returns the number of addressable bits.
func (m Bitmap) Len() int {
	return len(m) * 8
}

func (m Bitmap) Set(index int) {
	m[index>>3] |= 1 << uint(index&7)
}

func (m Bitmap) Get(index int) bool {
	return m[index>>3]&(1<<uint(index&7)) != 0
}

func (m Bitmap) Clear() {
	for i := range m {
		m[i] = 0
	}
}

// Count returns the number of set bits.
func (m Bitmap) Count() int {
	n := 0
	for _, b := range m {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

// ForEach calls fn for every set bit in ascending order. Iteration stops
// early when fn returns false.
func (m Bitmap) ForEach(fn func(index int) bool) {
	for i, b := range m {
		if b == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) == 0 {
				continue
			}
			if !fn(i*8 + bit) {
				return
			}
		}
	}
}
