package persist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chatsync/internal/model"
)

func TestFile_LoadMissing(t *testing.T) {
	f := &File{Path: filepath.Join(t.TempDir(), "nested", "session.toml")}

	s, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, &Session{}, s)
}

func TestFile_SaveLoad(t *testing.T) {
	f := &File{Path: filepath.Join(t.TempDir(), "nested", "session.toml")}
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	in := &Session{
		Token:       "tok",
		CurrentChat: "c1",
		User:        &model.User{ID: 3, Username: "anna", Email: "anna@example.com", CreatedAt: created, UpdatedAt: created},
	}
	require.NoError(t, f.Save(in))

	info, err := os.Stat(f.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, in.Token, out.Token)
	assert.Equal(t, in.CurrentChat, out.CurrentChat)
	require.NotNil(t, out.User)
	assert.Equal(t, int64(3), out.User.ID)
	assert.True(t, created.Equal(out.User.CreatedAt))

	require.NoError(t, f.Update(func(s *Session) { s.CurrentChat = "c2" }))
	out, err = f.Load()
	require.NoError(t, err)
	assert.Equal(t, "c2", out.CurrentChat)
	assert.Equal(t, "tok", out.Token)

	require.NoError(t, f.Clear())
	require.NoError(t, f.Clear())
	out, err = f.Load()
	require.NoError(t, err)
	assert.Empty(t, out.Token)
}

func TestFile_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	require.NoError(t, os.WriteFile(path, []byte("token = [unterminated"), 0o600))

	_, err := (&File{Path: path}).Load()
	assert.Error(t, err)
}
