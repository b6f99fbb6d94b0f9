//go:build linux

package plugin

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	firecracker "github.com/firecracker-microvm/firecracker-go-sdk"
	"github.com/google/uuid"
)

// FirecrackerIsolator boots a fresh, minimal Firecracker microVM for every
// call and tears it down afterward. It is the strongest isolation level
// available to the host: a plugin call here cannot share kernel state,
// memory, or a process table with any other call, past or future.
//
// Deliberately out of scope: VM pooling and snapshot restore. Both are
// legitimate optimizations but change the failure model (a pooled VM can
// carry state forward between calls), which the fresh-instance-per-call
// invariant forbids introducing without re-examining that invariant.
type FirecrackerIsolator struct {
	KernelImagePath string
	RootFSImagePath string
	SocketDir       string
	VCPUCount       int64
	MemSizeMB       int64
	BootTimeout     time.Duration
}

// NewFirecrackerIsolator builds a FirecrackerIsolator with the given kernel
// and rootfs images. socketDir holds per-call API sockets and is created if
// missing.
func NewFirecrackerIsolator(kernelImagePath, rootFSImagePath, socketDir string) *FirecrackerIsolator {
	return &FirecrackerIsolator{
		KernelImagePath: kernelImagePath,
		RootFSImagePath: rootFSImagePath,
		SocketDir:       socketDir,
		VCPUCount:       1,
		MemSizeMB:       128,
		BootTimeout:     5 * time.Second,
	}
}

// Invoke boots a fresh microVM, sends the call envelope over its vsock
// device, reads the response, then tears the VM down unconditionally.
func (f *FirecrackerIsolator) Invoke(ctx context.Context, m Manifest, export string, input []byte) ([]byte, error) {
	envelope, err := encodeCall(export, input)
	if err != nil {
		return nil, fmt.Errorf("plugin: encode call envelope: %w", err)
	}

	if err := os.MkdirAll(f.SocketDir, 0o700); err != nil {
		return nil, fmt.Errorf("plugin: firecracker socket dir: %w", err)
	}
	socketPath := filepath.Join(f.SocketDir, uuid.NewString()+".sock")
	vsockPath := filepath.Join(f.SocketDir, uuid.NewString()+".vsock")
	defer os.Remove(socketPath)
	defer os.Remove(vsockPath)

	cfg := firecracker.Config{
		SocketPath:      socketPath,
		KernelImagePath: f.KernelImagePath,
		KernelArgs:      "console=ttyS0 reboot=k panic=1 pci=off",
		Drives: []firecracker.Drive{{
			DriveID:      firecracker.String("rootfs"),
			PathOnHost:   firecracker.String(f.RootFSImagePath),
			IsRootDevice: firecracker.Bool(true),
			IsReadOnly:   firecracker.Bool(true),
		}},
		VsockDevices: []firecracker.VsockDevice{{
			Path: vsockPath,
			CID:  3,
		}},
		MachineCfg: firecracker.MachineConfiguration{
			VcpuCount:  firecracker.Int64(f.VCPUCount),
			MemSizeMib: firecracker.Int64(f.MemSizeMB),
		},
	}

	machine, err := firecracker.NewMachine(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("plugin: create microVM for %s: %w", m.Name, err)
	}

	bootCtx, cancel := context.WithTimeout(ctx, f.BootTimeout)
	defer cancel()
	if err := machine.Start(bootCtx); err != nil {
		return nil, fmt.Errorf("plugin: start microVM for %s: %w", m.Name, err)
	}
	defer func() { _ = machine.StopVMM() }()

	out, err := callOverVsock(ctx, vsockPath, envelope)
	if err != nil {
		return nil, fmt.Errorf("plugin: microVM call to %s failed: %w", m.Name, err)
	}
	return out, nil
}

// callOverVsock writes envelope to the guest's listening vsock port and
// reads back its response. The guest-side agent is expected to be baked
// into the rootfs image and listen on a fixed vsock port.
func callOverVsock(ctx context.Context, vsockUDSPath string, envelope []byte) ([]byte, error) {
	const guestPort = 52 // arbitrary fixed port the in-guest agent listens on

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "unix", vsockUDSPath)
	if err != nil {
		return nil, fmt.Errorf("dial vsock: %w", err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "CONNECT %d\n", guestPort); err != nil {
		return nil, fmt.Errorf("vsock handshake: %w", err)
	}
	if _, err := conn.Write(envelope); err != nil {
		return nil, fmt.Errorf("write call envelope: %w", err)
	}
	if closer, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = closer.CloseWrite()
	}
	return io.ReadAll(conn)
}
