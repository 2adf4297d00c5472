package ddsi

import (
	"bytes"
	"crypto/md5"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"github.com/cespare/xxhash/v2"
	"time"
)

// --------------------------------------------------------------------------
// Key values
// --------------------------------------------------------------------------

// KeyHashSize is the size of a DDS key hash
const KeyHashSize = 16

// KeyHash is the 16 byte instance identity used by subscribers.
type KeyHash [KeyHashSize]byte

// IsZero reports whether the hash is all zeros (key-less types)
func (h KeyHash) IsZero() bool {
	return h == KeyHash{}
}

func (h KeyHash) String() string {
	return hex.EncodeToString(h[:])
}

// KeyValue is the extracted instance key of a Serdata: the big-endian CDR
// encoding of the key fields and the key hash derived from it.
// A KeyValue is immutable.
type KeyValue struct {
	raw  []byte
	hash KeyHash
}

// newKeyValue computes the key hash for the raw key bytes.
// maxKeySize is the bounded maximum key size of the type (0 = unbounded).
func newKeyValue(raw []byte, maxKeySize int) KeyValue {
	kv := KeyValue{raw: raw}
	if len(raw) == 0 {
		return kv
	}
	if maxKeySize > 0 && maxKeySize <= KeyHashSize && len(raw) <= KeyHashSize {
		copy(kv.hash[:], raw)
	} else {
		kv.hash = md5.Sum(raw)
	}
	return kv
}

// Bytes returns a copy of the serialized key
func (k KeyValue) Bytes() []byte {
	out := make([]byte, len(k.raw))
	copy(out, k.raw)
	return out
}

// Len returns the size of the serialized key
func (k KeyValue) Len() int {
	return len(k.raw)
}

// Hash returns the key hash
func (k KeyValue) Hash() KeyHash {
	return k.hash
}

// Equal compares the serialized keys
func (k KeyValue) Equal(other KeyValue) bool {
	return bytes.Equal(k.raw, other.raw)
}

// Compare orders key values by their serialized bytes
func (k KeyValue) Compare(other KeyValue) int {
	return bytes.Compare(k.raw, other.raw)
}

func (k KeyValue) String() string {
	return hex.EncodeToString(k.raw)
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// generateSeed creates a random seed for the instance hash
func generateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// fall back to the current time if the system random source fails
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// instanceHash derives the 32 bit instance hash from the type hash and the key.
// Key-less types hash to the type hash mixed with the seed.
func instanceHash(seed uint64, typeHash uint32, key []byte) uint32 {
	var prefix [12]byte
	binary.LittleEndian.PutUint64(prefix[0:8], seed)
	binary.LittleEndian.PutUint32(prefix[8:12], typeHash)

	d := xxhash.New()
	_, _ = d.Write(prefix[:])
	_, _ = d.Write(key)
	h := d.Sum64()
	return uint32(h>>32) ^ uint32(h)
}

// typeHash derives the 32 bit type hash from the type identity
func typeHash(name string, version uint32) uint32 {
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], version)

	d := xxhash.New()
	_, _ = d.WriteString(name)
	_, _ = d.Write(v[:])
	h := d.Sum64()
	return uint32(h>>32) ^ uint32(h)
}
