package solver

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

func TestPoolCutInAdmissionOrder(t *testing.T) {
	p := NewPool()
	for _, id := range []uint64{3, 1, 2} {
		require.NoError(t, p.Push(mkOrder(id, tokX, "1", tokY, "1"), batchTime))
	}
	assert.Equal(t, 3, p.Len())

	b := p.Cut(batchTime, 2)
	require.Len(t, b.Orders, 2)
	assert.Equal(t, uint64(3), b.Orders[0].ID)
	assert.Equal(t, uint64(1), b.Orders[1].ID)
	assert.Equal(t, batchTime, b.Timestamp)
	assert.Equal(t, 1, p.Len())

	rest := p.Cut(batchTime, 0)
	require.Len(t, rest.Orders, 1)
	assert.Equal(t, 0, p.Len())
}

func TestPoolRejectsInvalidOrders(t *testing.T) {
	p := NewPool()
	bad := mkOrder(1, tokX, "0", tokY, "1")
	err := p.Push(bad, batchTime)
	assert.True(t, errors.Is(err, model.ErrInvalidOrder))
	assert.Equal(t, 0, p.Len())
}

func TestPoolDropsExpiredOnCut(t *testing.T) {
	p := NewPool()
	short := mkOrder(1, tokX, "1", tokY, "1")
	short.Expiration = batchTime.Add(time.Second)
	require.NoError(t, p.Push(short, batchTime))
	require.NoError(t, p.Push(mkOrder(2, tokX, "1", tokY, "1"), batchTime))

	b := p.Cut(batchTime.Add(time.Minute), 0)
	require.Len(t, b.Orders, 1)
	assert.Equal(t, uint64(2), b.Orders[0].ID)
	assert.Empty(t, p.Snapshot())
}
