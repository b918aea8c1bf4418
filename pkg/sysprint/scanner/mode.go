package scanner

import (
	"io/fs"

	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
)

// modeBits maps an fs.FileMode to unix st_mode bits.
func modeBits(m fs.FileMode) manifest.Mode {
	bits := manifest.Mode(m.Perm())
	if m&fs.ModeSetuid != 0 {
		bits |= 0o4000
	}
	if m&fs.ModeSetgid != 0 {
		bits |= 0o2000
	}
	if m&fs.ModeSticky != 0 {
		bits |= 0o1000
	}
	switch {
	case m.IsDir():
		bits |= manifest.ModeDir
	case m&fs.ModeSymlink != 0:
		bits |= manifest.ModeSymlink
	case m.IsRegular():
		bits |= manifest.ModeRegular
	}
	return bits
}
