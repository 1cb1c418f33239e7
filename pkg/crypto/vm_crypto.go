package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Blake2b256 hashes data with BLAKE2b-256, used by the VM's Blake2b
// instruction.
func Blake2b256(data []byte) types.Hash {
	h := blake2b.Sum256(data)
	return types.Hash(h)
}

// Keccak256 hashes data with Keccak-256 (the VM's Keccak256 instruction).
func Keccak256(data []byte) types.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out types.Hash
	h.Sum(out[:0])
	return out
}

// Sha256 hashes data with SHA-256 (the VM's Sha256 instruction).
func Sha256(data []byte) types.Hash {
	return sha256.Sum256(data)
}

// Sha3 hashes data with SHA3-256 (the VM's Sha3 instruction).
func Sha3(data []byte) types.Hash {
	h := sha3.Sum256(data)
	return types.Hash(h)
}

// VerifyED25519 checks an Ed25519 signature over 32 bytes of data, as used
// by the VM's VerifyED25519 instruction.
func VerifyED25519(data, signature, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), data, signature)
}

// VerifyECDSASecP256K1 checks a DER-encoded ECDSA secp256k1 signature over
// a 32-byte hash, as used by the VM's VerifySecP256K1 instruction (distinct
// from the Schnorr signatures used for witness/tx signing).
func VerifyECDSASecP256K1(hash, signature, publicKey []byte) bool {
	pubKey, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(hash, pubKey)
}
