package blob

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// JSON forms:
//
//	inline:      {"as_file": false, "size": N, "blob": "<base64>"}
//	file-backed: {"as_file": true, "path": "<path>", "offset": N}
//
// File-backed blobs serialize by reference; the receiver maps the file.

type jsonInline struct {
	AsFile bool   `json:"as_file"`
	Size   int    `json:"size"`
	Data   string `json:"blob"`
}

type jsonFile struct {
	AsFile bool   `json:"as_file"`
	Path   string `json:"path"`
	Offset uint64 `json:"offset"`
}

func (b Blob) MarshalJSON() ([]byte, error) {
	if path := b.MappedFile(); path != "" {
		return json.Marshal(jsonFile{AsFile: true, Path: path, Offset: b.FileOffset()})
	}
	return json.Marshal(jsonInline{
		AsFile: false,
		Size:   b.Size(),
		Data:   base64.StdEncoding.EncodeToString(b.Bytes()),
	})
}

func (b *Blob) UnmarshalJSON(data []byte) error {
	var probe struct {
		AsFile bool `json:"as_file"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("failed to decode blob: %w", err)
	}
	if probe.AsFile {
		var jf jsonFile
		if err := json.Unmarshal(data, &jf); err != nil {
			return fmt.Errorf("failed to decode blob: %w", err)
		}
		reader, err := OpenFileReader(jf.Path, jf.Offset, -1)
		if err != nil {
			return err
		}
		*b = reader.Blob()
		return nil
	}
	var ji jsonInline
	if err := json.Unmarshal(data, &ji); err != nil {
		return fmt.Errorf("failed to decode blob: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(ji.Data)
	if err != nil {
		return fmt.Errorf("failed to decode blob payload: %w", err)
	}
	if ji.Size != len(raw) {
		return fmt.Errorf("blob size mismatch: header says %d, payload has %d", ji.Size, len(raw))
	}
	*b = FromBytes(raw)
	return nil
}
