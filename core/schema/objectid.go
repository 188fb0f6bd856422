package schema

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// ObjectID is a 12-byte document identifier: a 4-byte big-endian timestamp,
// 5 process-unique bytes and a 3-byte counter.
type ObjectID [12]byte

// NilObjectID is the zero ObjectID.
var NilObjectID ObjectID

var (
	objectIDCounter = randomUint32()
	processUnique   = randomProcessUnique()
)

// NewObjectID generates a new ObjectID for the current time.
func NewObjectID() ObjectID {
	var id ObjectID
	binary.BigEndian.PutUint32(id[0:4], uint32(time.Now().Unix()))
	copy(id[4:9], processUnique[:])
	c := atomic.AddUint32(&objectIDCounter, 1)
	id[9] = byte(c >> 16)
	id[10] = byte(c >> 8)
	id[11] = byte(c)
	return id
}

// ObjectIDFromHex parses a 24-character hexadecimal string.
func ObjectIDFromHex(s string) (ObjectID, error) {
	var id ObjectID
	if len(s) != 24 {
		return NilObjectID, fmt.Errorf("invalid ObjectID %q: expected 24 hex characters", s)
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return NilObjectID, fmt.Errorf("invalid ObjectID %q: %w", s, err)
	}
	return id, nil
}

// IsObjectIDHex reports whether s is a valid ObjectID hex string.
func IsObjectIDHex(s string) bool {
	_, err := ObjectIDFromHex(s)
	return err == nil
}

// Hex returns the 24-character hexadecimal form.
func (id ObjectID) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id ObjectID) String() string {
	return fmt.Sprintf("ObjectID(%q)", id.Hex())
}

// IsZero reports whether id is NilObjectID.
func (id ObjectID) IsZero() bool {
	return id == NilObjectID
}

// Timestamp returns the creation time encoded in the identifier.
func (id ObjectID) Timestamp() time.Time {
	return time.Unix(int64(binary.BigEndian.Uint32(id[0:4])), 0).UTC()
}

// MarshalJSON writes the extended form {"$oid": "<hex>"} understood by ParseJSON.
func (id ObjectID) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"$oid": id.Hex()})
}

func randomUint32() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Errorf("cannot initialize ObjectID counter: %w", err))
	}
	return binary.BigEndian.Uint32(b[:])
}

func randomProcessUnique() [5]byte {
	var b [5]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Errorf("cannot initialize ObjectID process bytes: %w", err))
	}
	return b
}
