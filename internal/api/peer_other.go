//go:build !linux && !darwin

package api

import "net"

func peerUID(*net.UnixConn) (int, error) {
	return -1, errPeerCredUnsupported
}
