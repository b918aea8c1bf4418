package textdiff

import (
	"bytes"
	"io"

	"github.com/aclements/go-rabin/rabin"

	"github.com/jamesainslie/sysprint/pkg/sysprint/hasher"
)

// Content-defined chunking parameters. They are small because archived
// files are usually configuration-sized.
const (
	minChunkSize = 256
	avgChunkSize = 1024
	maxChunkSize = 8 * 1024

	windowSize = 64
)

// rabinTable is a pre-computed table for the Rabin chunker.
var rabinTable = rabin.NewTable(rabin.Poly64, windowSize)

// ChunkStats compares two contents at the chunk level.
type ChunkStats struct {
	SourceSize   int64 `json:"source_size"`
	TargetSize   int64 `json:"target_size"`
	SourceChunks int   `json:"source_chunks"`
	TargetChunks int   `json:"target_chunks"`
	// SharedChunks counts target chunks whose bytes also occur as a
	// chunk of the source.
	SharedChunks int   `json:"shared_chunks"`
	SharedBytes  int64 `json:"shared_bytes"`
	// Similarity is SharedBytes over the larger of the two sizes.
	Similarity float64 `json:"similarity"`
}

// ChunkSummary reports how much of b is made of content-defined chunks
// that also appear in a. It works on any bytes, text or not.
func ChunkSummary(a, b []byte) (ChunkStats, error) {
	h, err := hasher.New()
	if err != nil {
		return ChunkStats{}, err
	}

	ca, err := chunk(a)
	if err != nil {
		return ChunkStats{}, err
	}
	cb, err := chunk(b)
	if err != nil {
		return ChunkStats{}, err
	}

	seen := make(map[string]struct{}, len(ca))
	for _, c := range ca {
		seen[h.DigestBytes(c)] = struct{}{}
	}

	s := ChunkStats{
		SourceSize:   int64(len(a)),
		TargetSize:   int64(len(b)),
		SourceChunks: len(ca),
		TargetChunks: len(cb),
	}
	for _, c := range cb {
		if _, ok := seen[h.DigestBytes(c)]; ok {
			s.SharedChunks++
			s.SharedBytes += int64(len(c))
		}
	}

	larger := max(s.SourceSize, s.TargetSize)
	if larger == 0 {
		s.Similarity = 1
	} else {
		s.Similarity = float64(s.SharedBytes) / float64(larger)
	}
	return s, nil
}

// chunk splits data into content-defined chunks. Data shorter than one
// chunk is returned whole.
func chunk(data []byte) ([][]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	chunker := rabin.NewChunker(rabinTable, bytes.NewReader(data), minChunkSize, avgChunkSize, maxChunkSize)
	var out [][]byte
	var offset int
	for {
		n, err := chunker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, data[offset:offset+n])
		offset += n
	}
	if offset < len(data) {
		out = append(out, data[offset:])
	}
	return out, nil
}
