package knotepool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type pooled struct {
	ID int
}

func TestPoolGetPutDrain(t *testing.T) {
	p := New(func(v *pooled) { v.ID = 0 })
	v := p.Get()
	require.NotNil(t, v)
	v.ID = 1

	p.Put(v)
	require.Equal(t, 1, v.ID, "value is unchanged until Drain reclaims it")

	p.Drain()
	require.Zero(t, v.ID)
}

func TestPoolRecyclesAcrossBlocks(t *testing.T) {
	p := New[pooled](nil)
	var got []*pooled
	// Enough values to span several blockSize allocations.
	for i := 0; i < 500; i++ {
		v := p.Get()
		v.ID = i
		got = append(got, v)
	}
	for _, v := range got {
		p.Put(v)
	}
	p.Drain()
	for _, v := range got {
		require.Zero(t, v.ID)
	}
}
