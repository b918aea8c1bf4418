//go:build unix

package scanner

import (
	"os"
	"syscall"

	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
)

// metadataOf converts lstat output to manifest metadata, keeping the raw
// st_mode bits and numeric owner.
func metadataOf(info os.FileInfo) manifest.Metadata {
	md := manifest.Metadata{
		Size:    info.Size(),
		Mode:    modeBits(info.Mode()),
		ModTime: info.ModTime().UTC(),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		md.Mode = manifest.Mode(stat.Mode)
		md.UID = stat.Uid
		md.GID = stat.Gid
	}
	if info.IsDir() {
		md.Size = 0
	}
	return md
}
