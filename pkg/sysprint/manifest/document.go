package manifest

import (
	"encoding/json"
	"fmt"
)

// document is the JSON shape stored as manifest.json.
type document struct {
	Metadata    *Header            `json:"metadata"`
	Files       map[string]fileDoc `json:"files"`
	Directories map[string]dirDoc  `json:"directories"`
	Errors      []ScanError        `json:"errors"`
}

type fileDoc struct {
	Metadata Metadata `json:"metadata"`
	Hash     *string  `json:"hash"`
	Archived bool     `json:"archived"`
}

type dirDoc struct {
	Metadata Metadata `json:"metadata"`
}

// MarshalJSON encodes the manifest document. Symlinks are listed under
// files with is_symlink set and a null hash.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	header := m.Header
	doc := document{
		Metadata:    &header,
		Files:       make(map[string]fileDoc),
		Directories: make(map[string]dirDoc),
		Errors:      m.errors,
	}
	if doc.Errors == nil {
		doc.Errors = []ScanError{}
	}

	for _, p := range m.paths {
		e := m.entries[p]
		if e.Kind == KindDirectory {
			doc.Directories[p] = dirDoc{Metadata: e.Metadata}
			continue
		}
		fd := fileDoc{Metadata: e.Metadata, Archived: e.Archived}
		if e.Digest != "" {
			digest := e.Digest
			fd.Hash = &digest
		}
		doc.Files[p] = fd
	}

	return json.Marshal(doc)
}

// UnmarshalJSON decodes a manifest document. Structural problems are
// reported; version checks are left to Validate.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Metadata == nil {
		return ErrMissingHeader
	}

	b := NewBuilder(*doc.Metadata)
	for p, dd := range doc.Directories {
		if err := b.Add(FileEntry{Path: p, Kind: KindDirectory, Metadata: dd.Metadata}); err != nil {
			return err
		}
	}
	for p, fd := range doc.Files {
		e := FileEntry{Path: p, Kind: KindRegular, Metadata: fd.Metadata, Archived: fd.Archived}
		if fd.Metadata.IsSymlink {
			e.Kind = KindSymlink
		}
		if fd.Hash != nil {
			e.Digest = *fd.Hash
		}
		if err := b.Add(e); err != nil {
			return fmt.Errorf("files: %w", err)
		}
	}
	for _, se := range doc.Errors {
		b.AddError(se.Path, se.Message)
	}

	*m = *b.Build()
	return nil
}
