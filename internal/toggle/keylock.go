package toggle

import (
	"hash/fnv"
	"sync"
)

// keyLock serializes toggles per (user, channel) key with a fixed set of
// striped mutexes. Two simultaneous clicks on the same key would otherwise
// both observe "no receipt yet" and deliver the gift twice.
type keyLock struct {
	shards [64]sync.Mutex
}

func (l *keyLock) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &l.shards[h.Sum32()%uint32(len(l.shards))]
	m.Lock()
	return m
}
