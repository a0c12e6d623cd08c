package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cbam-tracker/internal/common"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
)

func TestStore_Lifecycle(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	s := NewStore(time.Hour, nil).WithClock(func() time.Time { return now })

	sess := s.Create("kim", "KIM")
	require.NotEmpty(t, sess.Token)

	got, err := s.Get(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "KIM", got.Company)
	assert.Nil(t, got.Batch)

	b1, err := s.ReplaceBatch(sess.Token, []entity.LineItem{{ItemName: "a"}})
	require.NoError(t, err)
	b2, err := s.ReplaceBatch(sess.Token, []entity.LineItem{{ItemName: "b"}, {ItemName: "c"}})
	require.NoError(t, err)
	assert.NotEqual(t, b1.ID, b2.ID)

	got, _ = s.Get(sess.Token)
	require.NotNil(t, got.Batch)
	assert.Equal(t, b2.ID, got.Batch.ID, "a new upload replaces the batch")
	assert.Len(t, got.Batch.Items, 2)

	got.Batch.Items[0].ItemName = "mutated"
	again, _ := s.Get(sess.Token)
	assert.Equal(t, "b", again.Batch.Items[0].ItemName, "callers get copies")

	require.NoError(t, s.ClearBatch(sess.Token))
	got, _ = s.Get(sess.Token)
	assert.Nil(t, got.Batch)

	s.Delete(sess.Token)
	_, err = s.Get(sess.Token)
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestStore_UpdateItem(t *testing.T) {
	s := NewStore(time.Hour, nil)
	sess := s.Create("kim", "KIM")

	_, err := s.UpdateItem(sess.Token, 0, func(li entity.LineItem) entity.LineItem { return li })
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, _ = s.ReplaceBatch(sess.Token, []entity.LineItem{{ItemName: "a", WeightKg: 1}})
	li, err := s.UpdateItem(sess.Token, 0, func(li entity.LineItem) entity.LineItem {
		li.WeightKg = 42
		return li
	})
	require.NoError(t, err)
	assert.Equal(t, 42.0, li.WeightKg)

	got, _ := s.Get(sess.Token)
	assert.Equal(t, 42.0, got.Batch.Items[0].WeightKg)

	_, err = s.UpdateItem(sess.Token, 1, func(li entity.LineItem) entity.LineItem { return li })
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestStore_IdleExpiry(t *testing.T) {
	now := time.Unix(0, 0)
	s := NewStore(10*time.Minute, nil).WithClock(func() time.Time { return now })
	a := s.Create("a", "A")
	b := s.Create("b", "B")

	now = now.Add(9 * time.Minute)
	_, err := s.Get(a.Token)
	require.NoError(t, err)

	now = now.Add(9 * time.Minute)
	_, err = s.Get(a.Token)
	assert.NoError(t, err, "touch keeps it alive")
	assert.Equal(t, 1, s.Sweep(), "b was idle for 18 minutes")
	assert.Equal(t, 1, s.Len())

	_, err = s.Get(b.Token)
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}
