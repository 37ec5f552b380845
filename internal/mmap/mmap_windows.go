//go:build windows

package mmap

import (
	"io"
	"os"
)

// x/sys/unix is unavailable on Windows; fall back to reading the file
// into memory. Fragment files are small, so this is acceptable.
func mapFile(f *os.File, size int) ([]byte, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, err
	}
	return data, nil
}

func unmapFile([]byte) error {
	return nil
}
