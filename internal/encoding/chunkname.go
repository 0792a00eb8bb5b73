package encoding

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ChunkFileName builds the canonical chunk file name
// <startEpochSeconds>_<endEpochSeconds>.<ext> so timestamps can be
// recovered from the name alone if the database record is rebuilt.
func ChunkFileName(start, end time.Time, ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "mp4"
	}
	return fmt.Sprintf("%d_%d.%s", start.Unix(), end.Unix(), ext)
}

// ParseChunkFileName recovers the start/end timestamps from a chunk file
// name or path produced by ChunkFileName.
func ParseChunkFileName(name string) (start, end time.Time, err error) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.SplitN(stem, "_", 2)
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("chunk file name %q: missing timestamp separator", base)
	}
	startSec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("chunk file name %q: bad start timestamp", base)
	}
	endSec, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("chunk file name %q: bad end timestamp", base)
	}
	return time.Unix(startSec, 0).UTC(), time.Unix(endSec, 0).UTC(), nil
}
