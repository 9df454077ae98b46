// Package session holds the in-memory session key and the device
// identifier for the lifetime of an unlocked session.
package session

import (
	"sync"
	"time"
)

// Keeper is the guarded cell holding the session key. Reads return copies so
// callers can never alias the stored key.
type Keeper struct {
	mu         sync.RWMutex
	key        []byte
	deviceID   string
	unlockedAt time.Time
	ttl        time.Duration
	now        func() time.Time
}

// NewKeeper returns an empty keeper. A positive ttl makes the key expire that
// long after it was set; zero disables expiry.
func NewKeeper(ttl time.Duration) *Keeper {
	return &Keeper{ttl: ttl, now: time.Now}
}

// WithClock replaces the keeper's clock, for tests.
func (k *Keeper) WithClock(now func() time.Time) *Keeper {
	k.mu.Lock()
	k.now = now
	k.mu.Unlock()
	return k
}

// Key returns a copy of the session key, or false when there is none or it
// has expired. An expired key is wiped on the way out.
func (k *Keeper) Key() ([]byte, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.key == nil {
		return nil, false
	}
	if k.ttl > 0 && k.now().Sub(k.unlockedAt) > k.ttl {
		k.clearLocked()
		return nil, false
	}

	out := make([]byte, len(k.key))
	copy(out, k.key)
	return out, true
}

// Unlocked reports whether a live key is held.
func (k *Keeper) Unlocked() bool {
	key, ok := k.Key()
	wipe(key)
	return ok
}

// SetKey stores a copy of key, wiping any previous key.
func (k *Keeper) SetKey(key []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.clearLocked()
	k.key = make([]byte, len(key))
	copy(k.key, key)
	k.unlockedAt = k.now()
}

// Clear wipes and drops the key.
func (k *Keeper) Clear() {
	k.mu.Lock()
	k.clearLocked()
	k.mu.Unlock()
}

func (k *Keeper) clearLocked() {
	wipe(k.key)
	k.key = nil
	k.unlockedAt = time.Time{}
}

// DeviceID returns the device identifier.
func (k *Keeper) DeviceID() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.deviceID
}

// SetDeviceID stores the device identifier.
func (k *Keeper) SetDeviceID(id string) {
	k.mu.Lock()
	k.deviceID = id
	k.mu.Unlock()
}

// wipe mirrors vault.Zeroize so that session imports no other internal package.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
