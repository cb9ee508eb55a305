// pkg/store/format.go

package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// formatKey is where the volume description lives inside the store.
const formatKey = "meta/format.json"

// Format describes a formatted volume: where the chunks live and how
// they are checksummed.
type Format struct {
	Name        string
	UUID        string
	Storage     string
	Bucket      string
	AccessKey   string
	SecretKey   string `json:",omitempty"`
	ChunkSize   int
	Checksum    string
	Verify      bool
	Compression string
	Shards      int
	EncryptKey  string `json:",omitempty"`
}

func (f *Format) RemoveSecret() {
	if f.SecretKey != "" {
		f.SecretKey = "removed"
	}
	if f.EncryptKey != "" {
		f.EncryptKey = "removed"
	}
}

// LoadFormat reads the volume description from a store. An
// unformatted store reports an error satisfying
// errors.Is(err, os.ErrNotExist).
func LoadFormat(st ObjectStore) (*Format, error) {
	r, err := st.Get(formatKey, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("load format: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var f Format
	if err = json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse format: %s", err)
	}
	return &f, nil
}

// Save writes the volume description. Unless force is set, saving
// over a different volume is refused.
func (f *Format) Save(st ObjectStore, force bool) error {
	if !force {
		if old, err := LoadFormat(st); err == nil && old.UUID != f.UUID {
			return fmt.Errorf("already formatted as volume %s, use --force to overwrite", old.Name)
		}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return st.Put(formatKey, bytes.NewReader(data))
}
