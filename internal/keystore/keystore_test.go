package keystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/testutil"
)

func TestNewKey_SignAndVerify(t *testing.T) {
	ks, err := Open("")
	require.NoError(t, err)

	commitment, err := ks.NewKey(testutil.NewSeededReader(1))
	require.NoError(t, err)
	require.True(t, ks.Has(commitment))

	msg := []byte("transaction id")
	pub, sig, err := ks.Sign(commitment, msg)
	require.NoError(t, err)

	assert.Equal(t, commitment, ledger.AuthCommitmentFromPublicKey(pub))
	assert.NoError(t, Verify(commitment, pub, msg, sig))
	assert.Error(t, Verify(commitment, pub, []byte("other"), sig))

	other, err := ks.NewKey(testutil.NewSeededReader(2))
	require.NoError(t, err)
	assert.Error(t, Verify(other, pub, msg, sig), "key must match the commitment")
}

func TestSign_UnknownCommitment(t *testing.T) {
	ks, err := Open("")
	require.NoError(t, err)

	_, _, err = ks.Sign(ledger.Digest{1}, []byte("x"))
	assert.True(t, ledger.IsCode(err, ledger.ErrCodeAccountNotFound))
}

func TestOpen_PersistsKeys(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")

	ks, err := Open(dir)
	require.NoError(t, err)
	commitment, err := ks.NewKey(testutil.NewSeededReader(3))
	require.NoError(t, err)

	again, err := ks.AddKey(mustKey(t, ks, commitment))
	require.NoError(t, err)
	assert.Equal(t, commitment, again)

	info, err := os.Stat(filepath.Join(dir, fileStem(commitment)+keySuffix))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Len())
	assert.True(t, reopened.Has(commitment))
}

func TestOpen_RejectsMismatchedFile(t *testing.T) {
	dir := t.TempDir()
	ks, err := Open(dir)
	require.NoError(t, err)
	commitment, err := ks.NewKey(testutil.NewSeededReader(4))
	require.NoError(t, err)

	src := filepath.Join(dir, fileStem(commitment)+keySuffix)
	require.NoError(t, os.Rename(src, filepath.Join(dir, fileStem(ledger.Digest{9})+keySuffix)))

	_, err = Open(dir)
	assert.True(t, ledger.IsCode(err, ledger.ErrCodeInitialization))
}

func TestAddKey_InvalidLength(t *testing.T) {
	ks, err := Open("")
	require.NoError(t, err)
	_, err = ks.AddKey([]byte{1, 2, 3})
	assert.Error(t, err)
}

func mustKey(t *testing.T, s *Store, c ledger.Digest) []byte {
	t.Helper()
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[c]
	require.True(t, ok)
	return key
}
