// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

// LineClient is a line-protocol test client.
type LineClient struct {
	conn   net.Conn
	reader *bufio.Reader
	t      *testing.T
}

// NewLineClient dials addr and returns a test client closed at test cleanup.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected LineClient or fails the test.
func NewLineClient(t *testing.T, addr string) *LineClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}
	t.Cleanup(func() { conn.Close() })

	t.Logf("line client connected to %s [%s]", addr, time.Since(start))
	return &LineClient{conn: conn, reader: bufio.NewReader(conn), t: t}
}

// Send writes text followed by "\n".
//
// Precondition: text should not contain newline characters.
func (c *LineClient) Send(text string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write([]byte(text + "\n")); err != nil {
		c.t.Fatalf("sending %q: %v", text, err)
	}
}

// ReadLine returns the next reply line without its terminator, failing the
// test if none arrives within timeout.
func (c *LineClient) ReadLine(timeout time.Duration) string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		c.t.Fatalf("reading reply: got %q, error: %v", line, err)
	}
	return strings.TrimSuffix(line, "\n")
}

// Request sends text and returns the reply line.
func (c *LineClient) Request(text string) string {
	c.t.Helper()
	c.Send(text)
	return c.ReadLine(5 * time.Second)
}

// ExpectClosed fails the test unless the server closes the connection
// within timeout without sending anything.
func (c *LineClient) ExpectClosed(timeout time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := c.reader.ReadString('\n')
	var ne net.Error
	if err == nil || line != "" || (errors.As(err, &ne) && ne.Timeout()) {
		c.t.Fatalf("expected closed connection, got %q (err %v)", line, err)
	}
}

// Close closes the underlying connection.
func (c *LineClient) Close() {
	c.conn.Close()
}
