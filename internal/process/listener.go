package process

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// CreateListenSocket opens a nonblocking, address-reusable, listening TCP
// socket with the configured backlog. It is opened by the master before any
// worker is spawned so the returned file can be inherited by every child
// through exec.Cmd.ExtraFiles — the Go analogue of fork() inheriting an
// already-open descriptor.
func CreateListenSocket(ip string, port, backlog int) (*os.File, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set reuseaddr: %w", err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set nonblocking: %w", err)
	}

	addr, err := parseIPv4(ip)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	sa := &unix.SockaddrInet4{Port: port, Addr: addr}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	return os.NewFile(uintptr(fd), "forkserve-listener"), nil
}

func parseIPv4(ip string) ([4]byte, error) {
	var out [4]byte
	if ip == "" || ip == "0.0.0.0" {
		return out, nil
	}
	parts := [4]int{}
	n, err := fmt.Sscanf(ip, "%d.%d.%d.%d", &parts[0], &parts[1], &parts[2], &parts[3])
	if err != nil || n != 4 {
		return out, fmt.Errorf("invalid IPv4 address %q", ip)
	}
	for i, p := range parts {
		if p < 0 || p > 255 {
			return out, fmt.Errorf("invalid IPv4 address %q", ip)
		}
		out[i] = byte(p)
	}
	return out, nil
}
