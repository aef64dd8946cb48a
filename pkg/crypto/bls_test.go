package crypto

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

func seed(b byte) []byte { return bytes.Repeat([]byte{b}, 32) }

func TestAttestAndVerify(t *testing.T) {
	a, err := NewAttestor(seed(7))
	require.NoError(t, err)
	pk, err := a.PublicKeyBytes()
	require.NoError(t, err)

	hash := common.HexToHash("0x01")
	sig := a.Attest(hash, model.Base)

	assert.True(t, VerifyAttestation(pk, hash, model.Base, sig))
	assert.False(t, VerifyAttestation(pk, hash, model.Polygon, sig), "target is signed")
	assert.False(t, VerifyAttestation(pk, common.HexToHash("0x02"), model.Base, sig))

	other, err := NewAttestor(seed(8))
	require.NoError(t, err)
	otherPK, err := other.PublicKeyBytes()
	require.NoError(t, err)
	assert.False(t, VerifyAttestation(otherPK, hash, model.Base, sig))
	assert.False(t, VerifyAttestation([]byte{1, 2, 3}, hash, model.Base, sig))
}

func TestAttestorIsDeterministic(t *testing.T) {
	a, err := NewAttestor(seed(9))
	require.NoError(t, err)
	b, err := NewAttestor(seed(9))
	require.NoError(t, err)
	pa, err := a.PublicKeyBytes()
	require.NoError(t, err)
	pb, err := b.PublicKeyBytes()
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestAttestorRejectsShortSeed(t *testing.T) {
	_, err := NewAttestor([]byte("short"))
	assert.Error(t, err)
}
