package mystore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type record struct {
	UID  string
	Name string
}

func TestInMemoryStore(t *testing.T) {
	c := context.TODO()

	t.Run("Put and get", func(t *testing.T) {
		store, cleanup, err := NewInMemoryStore[record](c)
		assert.NoError(t, err)
		defer cleanup()

		err = store.Put(c, "1", record{UID: "1", Name: "first"})
		assert.NoError(t, err)

		got, exists, err := store.Get(c, "1")
		assert.NoError(t, err)
		assert.True(t, exists)
		assert.Equal(t, "first", got.Name)
	})

	t.Run("Get non-existing", func(t *testing.T) {
		store, cleanup, _ := NewInMemoryStore[record](c)
		defer cleanup()

		_, exists, err := store.Get(c, "unknown")
		assert.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Delete", func(t *testing.T) {
		store, cleanup, _ := NewInMemoryStore[record](c)
		defer cleanup()

		store.Put(c, "1", record{UID: "1", Name: "first"})

		err := store.Delete(c, "1")
		assert.NoError(t, err)

		_, exists, _ := store.Get(c, "1")
		assert.False(t, exists)

		// deleting what is gone is not an error
		err = store.Delete(c, "1")
		assert.NoError(t, err)
	})

	t.Run("List", func(t *testing.T) {
		store, cleanup, _ := NewInMemoryStore[record](c)
		defer cleanup()

		store.Put(c, "1", record{UID: "1", Name: "first"})
		store.Put(c, "2", record{UID: "2", Name: "second"})

		all, err := store.List(c)
		assert.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("Transaction commits", func(t *testing.T) {
		store, cleanup, _ := NewInMemoryStore[record](c)
		defer cleanup()

		err := store.RunInTransaction(c, func(c context.Context) error {
			return store.Put(c, "1", record{UID: "1", Name: "first"})
		})
		assert.NoError(t, err)

		_, exists, _ := store.Get(c, "1")
		assert.True(t, exists)
	})

	t.Run("Transaction propagates error", func(t *testing.T) {
		store, cleanup, _ := NewInMemoryStore[record](c)
		defer cleanup()

		err := store.RunInTransaction(c, func(c context.Context) error {
			return fmt.Errorf("boom")
		})
		assert.Error(t, err)
	})
}
