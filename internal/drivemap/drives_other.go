//go:build !windows

package drivemap

import "errors"

// ErrUnsupported is returned on platforms without a drive-letter namespace.
var ErrUnsupported = errors.New("drive mapping is only supported on windows")

type unsupportedBackend struct{}

// NewBackend returns the drive backend for this platform.
func NewBackend() Backend {
	return unsupportedBackend{}
}

func (unsupportedBackend) CurrentDrives() ([]DriveState, error) { return nil, ErrUnsupported }
func (unsupportedBackend) Create(Mapping) error                 { return ErrUnsupported }
func (unsupportedBackend) Remove(string) error                  { return ErrUnsupported }
func (unsupportedBackend) MarkPersistent() error                { return ErrUnsupported }
