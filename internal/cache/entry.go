package cache

import (
	"encoding/binary"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("cache: not found")
	ErrCorrupt  = errors.New("cache: corrupt record")
)

// Entry is one cached value together with its TTL anchor.
type Entry struct {
	Value    []byte
	StoredAt time.Time
	TTL      time.Duration
}

// FreshAt reports whether the entry is still fresh at now, i.e. whether
// now lies in [StoredAt, StoredAt+TTL).
func (e Entry) FreshAt(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.StoredAt) < e.TTL
}

// Layout: 8 bytes big endian storedAt (unix nanos) || 8 bytes ttl (nanos) || raw value
const recordHeaderLen = 16

func encodeRecord(e Entry) []byte {
	buf := make([]byte, recordHeaderLen+len(e.Value))
	binary.BigEndian.PutUint64(buf[:8], uint64(e.StoredAt.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:16], uint64(e.TTL))
	copy(buf[recordHeaderLen:], e.Value)
	return buf
}

func decodeRecord(raw []byte) (Entry, error) {
	if len(raw) < recordHeaderLen {
		return Entry{}, ErrCorrupt
	}
	storedAt := int64(binary.BigEndian.Uint64(raw[:8]))
	ttl := int64(binary.BigEndian.Uint64(raw[8:16]))
	if storedAt <= 0 || ttl < 0 {
		return Entry{}, ErrCorrupt
	}
	return Entry{
		Value:    append([]byte(nil), raw[recordHeaderLen:]...),
		StoredAt: time.Unix(0, storedAt),
		TTL:      time.Duration(ttl),
	}, nil
}
