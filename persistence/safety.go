// Verified unsafe operations with runtime safety checks.
package persistence

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"
)

var (
	// ErrUnsupportedArchitecture is returned when running on unsupported CPU architecture
	ErrUnsupportedArchitecture = errors.New("unsupported architecture: only amd64 and arm64 are supported")

	// ErrBigEndian is returned when running on big-endian systems
	ErrBigEndian = errors.New("big-endian systems are not supported")

	// ErrUnalignedAccess is returned when attempting unaligned memory access
	ErrUnalignedAccess = errors.New("unaligned memory access detected")
)

// init performs startup validation of platform requirements
func init() {
	if err := validatePlatform(); err != nil {
		panic(fmt.Sprintf("cannon/persistence: %v", err))
	}
}

// validatePlatform checks if the current platform supports unsafe operations
func validatePlatform() error {
	arch := runtime.GOARCH
	if arch != "amd64" && arch != "arm64" {
		return fmt.Errorf("%w: %s", ErrUnsupportedArchitecture, arch)
	}

	// Snapshot payloads are little-endian on disk and reinterpreted in place.
	if !isLittleEndian() {
		return ErrBigEndian
	}

	return nil
}

// isLittleEndian checks if the system is little-endian
func isLittleEndian() bool {
	var test uint16 = 0x0001
	firstByte := *(*byte)(unsafe.Pointer(&test))
	return firstByte == 1
}

// validateFloat64SliceAlignment checks if a float64 slice is properly aligned
func validateFloat64SliceAlignment(vals []float64) error {
	if len(vals) == 0 {
		return nil
	}

	ptr := uintptr(unsafe.Pointer(&vals[0]))
	if ptr%8 != 0 {
		return fmt.Errorf("%w: float64 slice at address 0x%x", ErrUnalignedAccess, ptr)
	}

	return nil
}

// validateByteOffsetAlignment checks that a byte offset can host float64 views.
func validateByteOffsetAlignment(data []byte, off int) error {
	if off < 0 || off >= len(data) {
		return nil
	}

	ptr := uintptr(unsafe.Pointer(&data[off]))
	if ptr%8 != 0 {
		return fmt.Errorf("%w: mapped section at address 0x%x", ErrUnalignedAccess, ptr)
	}

	return nil
}
