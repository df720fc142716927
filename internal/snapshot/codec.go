package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

func Encode(w io.Writer, snap *Snapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.ID, err)
	}
	return enc.Close()
}

func Decode(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := yaml.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	id, err := uuid.Parse(snap.RawID)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot id %q: %w", snap.RawID, err)
	}
	snap.ID = id
	return &snap, nil
}

func Marshal(snap *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Unmarshal(data []byte) (*Snapshot, error) {
	return Decode(bytes.NewReader(data))
}

// Checksum is the BLAKE2b-256 digest stored next to a persisted payload.
func Checksum(payload []byte) []byte {
	sum := blake2b.Sum256(payload)
	return sum[:]
}

// Fingerprint hashes the structure of a snapshot: which components each
// entity has, in order, and their values. Entity IDs and entity order do not
// contribute, so a snapshot and a capture of its restore match.
func Fingerprint(snap *Snapshot) (uint64, error) {
	digests := make([]uint64, 0, len(snap.Entities))
	for _, e := range snap.Entities {
		h := xxhash.New()
		for _, c := range e.Components {
			data, err := yaml.Marshal(&c.Data)
			if err != nil {
				return 0, fmt.Errorf("fingerprint %s on %s: %w", c.Name, e.ID, err)
			}
			_, _ = h.WriteString(c.Name)
			_, _ = h.Write([]byte{0})
			_, _ = h.Write(data)
			_, _ = h.Write([]byte{0})
		}
		digests = append(digests, h.Sum64())
	}
	slices.Sort(digests)

	h := xxhash.New()
	var b [8]byte
	for _, d := range digests {
		binary.BigEndian.PutUint64(b[:], d)
		_, _ = h.Write(b[:])
	}
	return h.Sum64(), nil
}
