package digest_test

import (
	"strings"
	"testing"

	"github.com/nixlite/nixd/internal/digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumDefaultsToSHA256(t *testing.T) {
	got, err := digest.Sum("", []byte("hello"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "sha256:"))
}

func TestSumIsDeterministic(t *testing.T) {
	a, err := digest.Sum(digest.AlgoBLAKE3, []byte("payload"))
	require.NoError(t, err)

	b, err := digest.Sum(digest.AlgoBLAKE3, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSumDiffersAcrossAlgorithms(t *testing.T) {
	sha, err := digest.Sum(digest.AlgoSHA256, []byte("payload"))
	require.NoError(t, err)

	blake, err := digest.Sum(digest.AlgoBLAKE2b, []byte("payload"))
	require.NoError(t, err)
	assert.NotEqual(t, sha, blake)
}

func TestSumRejectsUnknownAlgorithm(t *testing.T) {
	_, err := digest.Sum("rot13", []byte("payload"))
	assert.Error(t, err)
}

func TestContentAddressIsDeterministicAndNamesAlgorithm(t *testing.T) {
	a, err := digest.ContentAddress(digest.AlgoSHA256, []byte("payload"))
	require.NoError(t, err)
	assert.Contains(t, a, "sha256")

	b, err := digest.ContentAddress(digest.AlgoSHA256, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
