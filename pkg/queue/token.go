package queue

import "github.com/google/uuid"

// TokenGenerator produces lease tokens. Tokens must be unguessable and unique
// across all live leases of a queue.
type TokenGenerator func() (string, error)

// NewLeaseToken returns a random (version 4) UUID without dashes: 122 bits
// drawn from crypto/rand.
func NewLeaseToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	b := id.String()
	return b[0:8] + b[9:13] + b[14:18] + b[19:23] + b[24:], nil
}
