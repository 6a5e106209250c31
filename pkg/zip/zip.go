package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"time"
)

// Entry is one file inside an archive.
type Entry struct {
	Filename string
	Data     []byte
}

// ArchiveEntries builds an in-memory zip holding entries in order. modified
// stamps every entry so the same input yields the same bytes.
func ArchiveEntries(entries []Entry, modified time.Time) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, entry := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     entry.Filename,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("zip: create %s: %w", entry.Filename, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", entry.Filename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close: %w", err)
	}
	return buf.Bytes(), nil
}
