//go:build !linux

package plugin

import (
	"context"
	"errors"
)

// ErrFirecrackerUnsupported is returned on platforms without KVM support.
var ErrFirecrackerUnsupported = errors.New("plugin: firecracker isolation is only available on linux")

// FirecrackerIsolator is unavailable outside linux; constructing one always
// fails at Invoke time rather than at startup, so a config referencing it
// surfaces the error in the same place a real failure would.
type FirecrackerIsolator struct{}

// NewFirecrackerIsolator returns a stub isolator that always errors.
func NewFirecrackerIsolator(kernelImagePath, rootFSImagePath, socketDir string) *FirecrackerIsolator {
	return &FirecrackerIsolator{}
}

// Invoke always fails on non-linux platforms.
func (f *FirecrackerIsolator) Invoke(ctx context.Context, m Manifest, export string, input []byte) ([]byte, error) {
	return nil, ErrFirecrackerUnsupported
}
