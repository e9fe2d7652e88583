// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package storage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_PutGet(t *testing.T) {
	backend := NewMemory()
	defer backend.Close()

	err := backend.Put("sessions/abc", []byte("payload"), nil)
	require.NoError(t, err)

	value, err := backend.Get("sessions/abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), value)
}

func TestMemoryBackend_GetNotFound(t *testing.T) {
	backend := NewMemory()
	defer backend.Close()

	_, err := backend.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackend_GetReturnsCopy(t *testing.T) {
	backend := NewMemory()
	defer backend.Close()

	require.NoError(t, backend.Put("key", []byte("original"), nil))

	value, err := backend.Get("key")
	require.NoError(t, err)

	// Mutating the returned slice must not affect stored data
	value[0] = 'X'

	again, err := backend.Get("key")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func TestMemoryBackend_PutOverwrites(t *testing.T) {
	backend := NewMemory()
	defer backend.Close()

	require.NoError(t, backend.Put("key", []byte("one"), nil))
	require.NoError(t, backend.Put("key", []byte("two"), nil))

	value, err := backend.Get("key")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), value)
}

func TestMemoryBackend_Delete(t *testing.T) {
	backend := NewMemory()
	defer backend.Close()

	require.NoError(t, backend.Put("key", []byte("value"), nil))
	require.NoError(t, backend.Delete("key"))

	_, err := backend.Get("key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackend_DeleteNotFound(t *testing.T) {
	backend := NewMemory()
	defer backend.Close()

	err := backend.Delete("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackend_ListByPrefix(t *testing.T) {
	backend := NewMemory()
	defer backend.Close()

	require.NoError(t, backend.Put("sessions/a", []byte("1"), nil))
	require.NoError(t, backend.Put("sessions/b", []byte("2"), nil))
	require.NoError(t, backend.Put("credentials/c", []byte("3"), nil))

	keys, err := backend.List("sessions/")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, "sessions/a")
	assert.Contains(t, keys, "sessions/b")

	all, err := backend.List("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryBackend_Exists(t *testing.T) {
	backend := NewMemory()
	defer backend.Close()

	require.NoError(t, backend.Put("key", []byte("value"), nil))

	exists, err := backend.Exists("key")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = backend.Exists("missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryBackend_Closed(t *testing.T) {
	backend := NewMemory()
	require.NoError(t, backend.Close())

	_, err := backend.Get("key")
	assert.ErrorIs(t, err, ErrClosed)

	err = backend.Put("key", []byte("value"), nil)
	assert.ErrorIs(t, err, ErrClosed)

	err = backend.Delete("key")
	assert.ErrorIs(t, err, ErrClosed)

	_, err = backend.List("")
	assert.ErrorIs(t, err, ErrClosed)

	_, err = backend.Exists("key")
	assert.ErrorIs(t, err, ErrClosed)

	// Closing twice is a no-op
	assert.NoError(t, backend.Close())
}

func TestMemoryBackend_ConcurrentAccess(t *testing.T) {
	backend := NewMemory()
	defer backend.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("sessions/%d", n)
			assert.NoError(t, backend.Put(key, []byte("v"), nil))
			_, err := backend.Get(key)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	keys, err := backend.List("sessions/")
	require.NoError(t, err)
	assert.Len(t, keys, 50)
}
