//go:build !unix

package transport

import "net"

func setSendBuffer(c *net.TCPConn, n int) (int, error) {
	return n, c.SetWriteBuffer(n)
}
