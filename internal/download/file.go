package download

import (
	"fmt"
	"path"
	"strings"
)

// File describes one download target. Size 0 means unknown; SHA1 empty
// means no checksum verification.
type File struct {
	URL  string `json:"url"`
	Path string `json:"path"`
	Size int64  `json:"size,omitempty"`
	SHA1 string `json:"sha1,omitempty"`
}

// DisplayName builds the identifier a file is tracked under in progress maps
// and failure reports: its position plus the file's base name.
func (f File) DisplayName(index int) string {
	p := f.Path
	if p == "" {
		p = f.URL
	}
	name := path.Base(strings.ReplaceAll(p, "\\", "/"))
	return fmt.Sprintf("task_%d_%s", index, name)
}

const (
	smallFileLimit  = 1 << 20  // 1MiB
	mediumFileLimit = 10 << 20 // 10MiB

	smallChunk   = 8 << 10   // 8KiB
	defaultChunk = 64 << 10  // 64KiB
	largeChunk   = 512 << 10 // 512KiB
)

// chunkSizeFor picks a read-buffer size from the total file size. Unknown
// sizes stream with the default chunk.
func chunkSizeFor(total int64) int {
	switch {
	case total <= 0:
		return defaultChunk
	case total < smallFileLimit:
		if total < smallChunk {
			return int(total)
		}
		return smallChunk
	case total < mediumFileLimit:
		return defaultChunk
	default:
		return largeChunk
	}
}
