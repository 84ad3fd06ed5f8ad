package xhash

import "golang.org/x/crypto/blake2b"

// Blake2b is an alternate Hasher backend, selectable via Config, mirroring
// the teacher's multi-backend CryptoProvider split (crypto/provider.go,
// crypto/devstd.go) between a stable interface and swappable
// implementations. It shares golang.org/x/crypto with the teacher's own
// devstd provider rather than introducing a new module dependency.
type Blake2b struct{}

var _ Hasher = Blake2b{}

func (Blake2b) Hash(d Digest) Digest {
	return blake2b.Sum256(d[:])
}

func (Blake2b) HashPair(a, b Digest) Digest {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return blake2b.Sum256(buf[:])
}

func (Blake2b) EncodeIndex(i uint64) Digest {
	return encodeIndex(i)
}

func (h Blake2b) SampleIndexNotPowerOfTwo(d Digest, modulus uint64) uint64 {
	return sampleIndexNotPowerOfTwo(h.Hash, d, modulus)
}
