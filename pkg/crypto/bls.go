// Package crypto signs settlements on behalf of the solver.
package crypto

import (
	"encoding/binary"

	bls "github.com/cloudflare/circl/sign/bls"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

type scheme = bls.KeyG1SigG2

type BLSPubKey = bls.PublicKey[scheme]

// Attestor signs (settlement hash, target chain) pairs so the receiving side
// of a bridge can check which solver produced a settlement.
type Attestor struct {
	sk *bls.PrivateKey[scheme]
	pk *BLSPubKey
}

// NewAttestor derives a key pair from seed, which must hold at least 32 bytes.
func NewAttestor(seed []byte) (*Attestor, error) {
	sk, err := bls.KeyGen[scheme](seed, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "bls keygen")
	}
	return &Attestor{sk: sk, pk: sk.PublicKey()}, nil
}

// PublicKeyBytes returns the compressed public key.
func (a *Attestor) PublicKeyBytes() ([]byte, error) {
	return a.pk.MarshalBinary()
}

func (a *Attestor) Attest(hash common.Hash, target model.ChainID) []byte {
	return bls.Sign(a.sk, attestationMessage(hash, target))
}

// VerifyAttestation checks sig against a marshalled public key.
func VerifyAttestation(pubkey []byte, hash common.Hash, target model.ChainID, sig []byte) bool {
	pk := new(BLSPubKey)
	if err := pk.UnmarshalBinary(pubkey); err != nil {
		return false
	}
	return bls.Verify(pk, attestationMessage(hash, target), bls.Signature(sig))
}

// attestationMessage is keccak256("cowsolver/attest" || hash || target).
func attestationMessage(hash common.Hash, target model.ChainID) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("cowsolver/attest"))
	h.Write(hash[:])
	h.Write(binary.BigEndian.AppendUint64(nil, uint64(target)))
	return h.Sum(nil)
}
