//go:build !unix

package mmap

import (
	"io"
	"os"
)

// osMap falls back to reading the whole file into memory on platforms
// without a usable mmap. Callers get the same zero-copy slice semantics;
// only the backing differs.
func osMap(f *os.File, size int) ([]byte, func([]byte) error, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, nil, err
	}
	return data, nil, nil
}

func osAdvise(_ []byte, _ AccessPattern) error {
	return nil
}
