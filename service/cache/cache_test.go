package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSig = "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"

func newTestCache(t *testing.T) *FileCache {
	t.Helper()
	c, err := NewFileCache(filepath.Join(t.TempDir(), "sigs"))
	require.NoError(t, err)
	return c
}

func TestFileCache_WriteThenRead(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	doc := json.RawMessage(`{"blockTime":1636966900,"meta":{"err":null,"preBalances":[100,0],"postBalances":[80,20]},"slot":5}`)
	require.NoError(t, c.Write(ctx, testSig, doc))

	got, err := c.Read(ctx, testSig)
	require.NoError(t, err)
	assert.JSONEq(t, string(doc), string(got))

	// Stored pretty-printed, one file per signature.
	raw, err := os.ReadFile(filepath.Join(c.Dir(), testSig+".json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n    \"blockTime\"")
	assert.Equal(t, string(raw), string(got))
}

func TestFileCache_Exists(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	exists, err := c.Exists(ctx, testSig)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Write(ctx, testSig, json.RawMessage(`{}`)))

	exists, err = c.Exists(ctx, testSig)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFileCache_ReadMissing(t *testing.T) {
	c := newTestCache(t)

	_, err := c.Read(context.Background(), testSig)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, testSig, nf.Signature)
}

func TestFileCache_Overwrite(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.Write(ctx, testSig, json.RawMessage(`{"v":1}`)))
	require.NoError(t, c.Write(ctx, testSig, json.RawMessage(`{"v":2}`)))

	got, err := c.Read(ctx, testSig)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got))

	// No temp files left behind.
	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileCache_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	for _, sig := range []string{"", "../escape", "a/b", ".hidden"} {
		t.Run(fmt.Sprintf("signature %q", sig), func(t *testing.T) {
			assert.Error(t, c.Write(ctx, sig, json.RawMessage(`{}`)))
			_, err := c.Exists(ctx, sig)
			assert.Error(t, err)
		})
	}

	assert.Error(t, c.Write(ctx, testSig, json.RawMessage(`{"truncated":`)))
	exists, err := c.Exists(ctx, testSig)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileCache_ConcurrentWritersAndReaders(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	require.NoError(t, c.Write(ctx, testSig, json.RawMessage(`{"writer":-1}`)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, c.Write(ctx, testSig, json.RawMessage(fmt.Sprintf(`{"writer":%d}`, i))))
		}(i)
		go func() {
			defer wg.Done()
			got, err := c.Read(ctx, testSig)
			if assert.NoError(t, err) {
				assert.True(t, json.Valid(got), "reader observed a partial document: %q", got)
			}
		}()
	}
	wg.Wait()

	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNewFileCache_RequiresFolder(t *testing.T) {
	_, err := NewFileCache("")
	assert.Error(t, err)
}

func TestNewFileCache_CreatesFolderOnFirstWrite(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "mint_txn_sigs")
	c, err := NewFileCache(dir)
	require.NoError(t, err)

	exists, err := c.Exists(ctx, testSig)
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = os.Stat(dir)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, c.Write(ctx, testSig, json.RawMessage(`{}`)))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
