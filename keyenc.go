package keva

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Backend keyspace layout. Every backend key starts with a one-byte tag:
//
//	'm' + store name          -> StoreInfo JSON (registry record)
//	's'                       -> last allocated store ID, uint32 big-endian
//	'd' + ID(4 BE) + payload  -> store data
//
// The data payload depends on the store's StoreConfig:
//
//	sequential, unique:   key
//	prefixed,   unique:   hash(key)(8 BE) + key
//	sequential, dup:      esc(key) + sep + value
//	prefixed,   dup:      hash(key)(8 BE) + esc(key) + sep + value
//
// esc escapes 0x00 as 0x00 0xFF and sep is 0x00 0x01, so composite keys stay
// unambiguous and order-preserving: all values of a key sort together, right
// after any shorter key sharing its prefix.
const (
	metaKeyTag byte = 'm'
	seqKeyTag  byte = 's'
	dataKeyTag byte = 'd'
)

const fingerprintLen = 8

var (
	metaPrefix   = []byte{metaKeyTag}
	seqKey       = []byte{seqKeyTag}
	pairSep      = []byte{0x00, 0x01}
	escapedZero  = []byte{0x00, 0xFF}
	dataKeySpace = []byte{dataKeyTag}
)

func metaKey(name string) []byte {
	k := make([]byte, 0, 1+len(name))
	k = append(k, metaKeyTag)
	return append(k, name...)
}

func dataKeyPrefix(id uint32) []byte {
	k := make([]byte, 5)
	k[0] = dataKeyTag
	binary.BigEndian.PutUint32(k[1:], id)
	return k
}

func fingerprint(key []byte) []byte {
	fp := make([]byte, fingerprintLen)
	binary.BigEndian.PutUint64(fp, xxhash.Sum64(key))
	return fp
}

// escapeComponent appends key to dst with 0x00 escaped as 0x00 0xFF.
func escapeComponent(dst, key []byte) []byte {
	for _, b := range key {
		if b == 0x00 {
			dst = append(dst, escapedZero...)
			continue
		}
		dst = append(dst, b)
	}
	return dst
}

// splitPair decodes an escaped key + sep + value payload of a duplicate store.
func splitPair(payload []byte) (key, value []byte, err error) {
	key = make([]byte, 0, len(payload))
	for i := 0; i < len(payload); i++ {
		b := payload[i]
		if b != 0x00 {
			key = append(key, b)
			continue
		}
		if i+1 >= len(payload) {
			return nil, nil, fmt.Errorf("truncated escape sequence in composite key")
		}
		switch payload[i+1] {
		case 0xFF:
			key = append(key, 0x00)
			i++
		case 0x01:
			return key, payload[i+2:], nil
		default:
			return nil, nil, fmt.Errorf("invalid escape byte 0x%02x in composite key", payload[i+1])
		}
	}
	return nil, nil, fmt.Errorf("composite key missing separator")
}

// encodeKey builds the backend key addressing a single-value (unique) entry.
func (s *Store) encodeKey(key []byte) []byte {
	bk := dataKeyPrefix(s.info.ID)
	if s.info.Config.KeyAccess == RandomAccess {
		bk = append(bk, fingerprint(key)...)
	}
	return append(bk, key...)
}

// encodePair builds the backend key of one (key, value) pair of a duplicate store.
func (s *Store) encodePair(key, value []byte) []byte {
	bk := s.pairPrefix(key)
	return append(bk, value...)
}

// pairPrefix is the backend prefix under which all values of key live in a
// duplicate store: data prefix + optional fingerprint + esc(key) + sep.
func (s *Store) pairPrefix(key []byte) []byte {
	bk := dataKeyPrefix(s.info.ID)
	if s.info.Config.KeyAccess == RandomAccess {
		bk = append(bk, fingerprint(key)...)
	}
	bk = escapeComponent(bk, key)
	return append(bk, pairSep...)
}

// decodeEntry recovers the user key and value from a backend iterator entry of
// this store. backendValue is only consulted for unique stores; duplicate
// stores carry the value inside the backend key.
func (s *Store) decodeEntry(backendKey, backendValue []byte) (key, value []byte, err error) {
	payload := backendKey[len(dataKeySpace)+4:]
	if s.info.Config.KeyAccess == RandomAccess {
		if len(payload) < fingerprintLen {
			return nil, nil, fmt.Errorf("backend key shorter than fingerprint")
		}
		payload = payload[fingerprintLen:]
	}
	if !s.info.Config.AllowDuplicates {
		return payload, backendValue, nil
	}
	return splitPair(payload)
}

// seekTarget builds the backend key to Seek a cursor at the first entry >= key.
func (s *Store) seekTarget(key []byte) []byte {
	if s.info.Config.AllowDuplicates {
		bk := dataKeyPrefix(s.info.ID)
		if s.info.Config.KeyAccess == RandomAccess {
			bk = append(bk, fingerprint(key)...)
		}
		return escapeComponent(bk, key)
	}
	return s.encodeKey(key)
}

// hasDataPrefix guards decodeEntry against keys outside the store's keyspace.
func (s *Store) hasDataPrefix(backendKey []byte) bool {
	return bytes.HasPrefix(backendKey, dataKeyPrefix(s.info.ID))
}
