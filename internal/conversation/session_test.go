package conversation

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionHistoryIsACopy(t *testing.T) {
	s := NewSession("")
	require.NotEmpty(t, s.ID)

	s.Append(User("hi"), Assistant("hello"))
	h := s.History()
	require.Len(t, h, 2)
	h[0].Content = "mutated"
	assert.Equal(t, "hi", s.History()[0].Content)
}

func TestRecentlySaid(t *testing.T) {
	s := NewSession("x")
	s.Append(User("one"), Assistant("ok"), User("two"), User("three"), User("four"))

	assert.True(t, s.RecentlySaid("  four ", 3))
	assert.True(t, s.RecentlySaid("two", 3))
	assert.False(t, s.RecentlySaid("one", 3))
	assert.False(t, s.RecentlySaid("", 3))
}

func TestStorePersistsSessions(t *testing.T) {
	dir := t.TempDir()
	st, err := NewStore(dir, testLogger())
	require.NoError(t, err)

	s := st.Get("abc")
	s.Append(User("remember me"))
	require.NoError(t, st.Save(s))

	st2, err := NewStore(dir, testLogger())
	require.NoError(t, err)
	loaded, ok := st2.Lookup("abc")
	require.True(t, ok)
	require.Len(t, loaded.History(), 1)
	assert.Equal(t, "remember me", loaded.History()[0].Content)

	_, ok = st2.Lookup("missing")
	assert.False(t, ok)
}

func TestStoreRejectsPathLikeIDs(t *testing.T) {
	st, err := NewStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	_, ok := st.Lookup("../etc/passwd")
	assert.False(t, ok)
}

func TestStoreInMemory(t *testing.T) {
	st, err := NewStore("", testLogger())
	require.NoError(t, err)
	a := st.Get("")
	b := st.Get(a.ID)
	assert.Same(t, a, b)
	assert.NoError(t, st.Save(a))
}
