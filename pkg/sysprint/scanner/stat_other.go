//go:build !unix

package scanner

import (
	"os"

	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
)

// metadataOf converts stat output to manifest metadata. Ownership is not
// available on this platform and is recorded as zero.
func metadataOf(info os.FileInfo) manifest.Metadata {
	md := manifest.Metadata{
		Size:    info.Size(),
		Mode:    modeBits(info.Mode()),
		ModTime: info.ModTime().UTC(),
	}
	if info.IsDir() {
		md.Size = 0
	}
	return md
}
