package p2p

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"lukechampine.com/blake3"
)

// seenSet remembers recently handled gossip frames by digest so broadcast
// echoes do not loop through the network forever.
type seenSet struct {
	lru *lru.Cache[[32]byte, struct{}]
}

func newSeenSet(size int) (*seenSet, error) {
	l, err := lru.New[[32]byte, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &seenSet{lru: l}, nil
}

// markSeen records the frame and reports whether this was its first
// sighting.
func (s *seenSet) markSeen(frame []byte) bool {
	digest := blake3.Sum256(frame)
	if _, ok := s.lru.Get(digest); ok {
		return false
	}
	s.lru.Add(digest, struct{}{})
	return true
}
