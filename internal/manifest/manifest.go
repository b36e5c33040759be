// Package manifest defines the JSON wire format a gsync client and server
// exchange to describe a file's blocks (SPEC_FULL.md [SUPPLEMENT] item 4).
package manifest

import (
	"encoding/hex"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/deltasync/gsync/internal/block"
)

// Block is one manifest entry on the wire: the weak checksum plus the
// strong hash hex-encoded, so the document stays printable JSON.
type Block struct {
	Weak   uint32
	Strong string
}

// Manifest is the full wire document describing a file's block layout.
type Manifest struct {
	FileSize  int64   `json:"fileSize"`
	BlockSize int64   `json:"blockSize"`
	Blocks    []Block `json:"blocks"`
}

// MarshalJSON encodes a Block as the compact pair [weak, strongHex]
// rather than a verbose object, keeping large manifests reasonably sized.
func (b Block) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{b.Weak, b.Strong})
}

// UnmarshalJSON decodes the [weak, strongHex] pair form.
func (b *Block) UnmarshalJSON(data []byte) error {
	var pair [2]interface{}
	if err := json.Unmarshal(data, &pair); err != nil {
		return errors.Wrap(err, "gsync: malformed manifest block")
	}
	weak, ok := pair[0].(float64)
	if !ok {
		return errors.New("gsync: manifest block weak checksum must be numeric")
	}
	strongHex, ok := pair[1].(string)
	if !ok {
		return errors.New("gsync: manifest block strong hash must be a string")
	}
	b.Weak = uint32(weak)
	b.Strong = strongHex
	return nil
}

// FromBlockManifest converts the in-memory hashing result into the wire
// format.
func FromBlockManifest(fileSize, blockSize int64, m block.Manifest) Manifest {
	out := Manifest{FileSize: fileSize, BlockSize: blockSize, Blocks: make([]Block, len(m))}
	for i, h := range m {
		out.Blocks[i] = Block{Weak: h.Weak, Strong: hex.EncodeToString(h.Strong)}
	}
	return out
}

// ToBlockManifest converts the wire format back into the in-memory form
// the resolver operates on.
func (m Manifest) ToBlockManifest() (block.Manifest, error) {
	out := make(block.Manifest, len(m.Blocks))
	for i, b := range m.Blocks {
		strong, err := hex.DecodeString(b.Strong)
		if err != nil {
			return nil, errors.Wrapf(err, "gsync: manifest block %d has invalid strong hash encoding", i)
		}
		out[i] = block.Hash{Weak: b.Weak, Strong: strong}
	}
	return out, nil
}

// Encode writes m to w as JSON.
func Encode(w io.Writer, m Manifest) error {
	return errors.Wrap(json.NewEncoder(w).Encode(m), "gsync: failed to encode manifest")
}

// Decode reads a Manifest document from r.
func Decode(r io.Reader) (Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return Manifest{}, errors.Wrap(err, "gsync: failed to decode manifest")
	}
	return m, nil
}
