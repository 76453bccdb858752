package archive

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neoalexandria/backend/internal/data/repos/testutil"
	"github.com/neoalexandria/backend/internal/platform/apierr"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv("ARCHIVE_DIR", t.TempDir())
	s, err := New(testutil.Logger(t))
	require.NoError(t, err)
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newStore(t)
	id := uuid.New()
	raw := []byte("<html><body>archived page</body></html>")

	digest, err := s.Put(id, raw)
	require.NoError(t, err)
	assert.NotEmpty(t, digest)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	// Re-archiving the same content is stable.
	again, err := s.Put(id, raw)
	require.NoError(t, err)
	assert.Equal(t, digest, again)
}

func TestSharedBlobSurvivesDelete(t *testing.T) {
	s := newStore(t)
	raw := []byte("identical payload")
	a, b := uuid.New(), uuid.New()

	digestA, err := s.Put(a, raw)
	require.NoError(t, err)
	digestB, err := s.Put(b, raw)
	require.NoError(t, err)
	assert.Equal(t, digestA, digestB)

	require.NoError(t, s.Delete(a))

	_, err = s.Get(a)
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))

	got, err := s.Get(b)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestGetUnknownResource(t *testing.T) {
	s := newStore(t)
	_, err := s.Get(uuid.New())
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
}
