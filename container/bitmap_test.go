package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmap_Set(t *testing.T) {
	b := NewBitmap(16)

	b.Set(0)
	b.Set(9)
	b.Set(15)

	assert.Equal(t, byte(0x01), b[0])
	assert.Equal(t, byte(0x82), b[1])
}

func TestBitmap_Get(t *testing.T) {
	b := NewBitmap(3)
	b.Set(0)
	b.Set(2)

	assert.True(t, b.Get(0))
	assert.False(t, b.Get(1))
	assert.True(t, b.Get(2))
}

func TestBitmap_LenRoundsUp(t *testing.T) {
	assert.Equal(t, 8, NewBitmap(3).Len())
	assert.Equal(t, 256, NewBitmap(256).Len())
	assert.Len(t, NewBitmap(256), 32)
}

func TestBitmap_ForEach(t *testing.T) {
	b := NewBitmap(256)
	for _, i := range []int{3, 8, 100, 255} {
		b.Set(i)
	}

	var seen []int
	b.ForEach(func(index int) bool {
		seen = append(seen, index)
		return true
	})
	assert.Equal(t, []int{3, 8, 100, 255}, seen)
	assert.Equal(t, 4, b.Count())

	seen = seen[:0]
	b.ForEach(func(index int) bool {
		seen = append(seen, index)
		return index < 8
	})
	assert.Equal(t, []int{3, 8}, seen)
}

func TestBitmap_Clear(t *testing.T) {
	b := NewBitmap(32)
	b.Set(1)
	b.Set(31)
	b.Clear()
	assert.Equal(t, 0, b.Count())
}
