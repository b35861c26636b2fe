package imagecache

import "github.com/google/uuid"

// Identity is the lock holder token of one View. Minted once at construction.
type Identity string

// NewIdentity returns a process-unique identity.
func NewIdentity() Identity {
	return Identity(uuid.NewString())
}

func (id Identity) String() string { return string(id) }
