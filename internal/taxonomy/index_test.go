package taxonomy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Search(t *testing.T) {
	idx := Default()
	ctx := context.Background()

	got, err := idx.Search(ctx, "Laptop computers 14 inch", 3)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "43211503", got[0].Code)
	assert.LessOrEqual(t, len(got), 3)
}

func TestSearch_ByCode(t *testing.T) {
	idx := Default()

	got, err := idx.Search(context.Background(), "56112102", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Office chairs", got[0].Title)
	assert.Equal(t, 1.0, got[0].Score)

	got, err = idx.Search(context.Background(), "99999999", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_NoMatch(t *testing.T) {
	got, err := Default().Search(context.Background(), "zzz qqq", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
entries:
  - code: "10101501"
    title: Cats
    keywords: [kitten]
`), 0o644))

	idx, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, idx.Entries(), 1)

	got, err := idx.Search(context.Background(), "kitten", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "10101501", got[0].Code)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"office", "chairs", "x2"}, Tokenize("Office chairs, a x2!"))
	assert.True(t, IsCode(" 43211503 "))
	assert.False(t, IsCode("4321150"))
	assert.False(t, IsCode("4321150a"))
}
