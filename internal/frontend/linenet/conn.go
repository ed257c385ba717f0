package linenet

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"sync"
	"time"
)

// MaxLineLength bounds a single input line. Longer lines end the session.
const MaxLineLength = 4096

// ErrLineTooLong is returned by ReadLine when a line exceeds MaxLineLength.
var ErrLineTooLong = errors.New("line too long")

// Conn wraps a TCP connection with newline-framed reads and writes.
//
// Reads are bounded by a short deadline so the session loop can interleave
// idle checks; bytes of a partially received line survive a timed-out read.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader
	mu     sync.Mutex

	// pending holds the bytes of the line being assembled. Only the reading
	// goroutine touches it.
	pending bytes.Buffer

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConn wraps a raw TCP connection.
//
// Precondition: raw must be a valid, open network connection.
// Postcondition: Returns a Conn ready for reading and writing.
func NewConn(raw net.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{
		raw:          raw,
		reader:       bufio.NewReaderSize(raw, 4096),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// ReadLine returns the next complete line without its terminator. "\n" and
// "\r\n" both end a line. Control characters other than tab are dropped.
//
// When the read deadline passes first, ReadLine returns a timeout error
// (see IsTimeout) and keeps what it has read for the next call.
func (c *Conn) ReadLine() (string, error) {
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}

	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '\n' {
			line := c.pending.String()
			c.pending.Reset()
			return line, nil
		}
		if b < 32 && b != '\t' {
			continue
		}
		if c.pending.Len() >= MaxLineLength {
			c.pending.Reset()
			return "", ErrLineTooLong
		}
		c.pending.WriteByte(b)
	}
}

// WriteLine sends text followed by "\n".
//
// Precondition: text should not contain newline characters.
func (c *Conn) WriteLine(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	buf := make([]byte, 0, len(text)+1)
	buf = append(buf, text...)
	buf = append(buf, '\n')
	_, err := c.raw.Write(buf)
	return err
}

// Close shuts the connection down in both directions and releases it.
//
// Postcondition: The connection is closed and no longer usable.
func (c *Conn) Close() error {
	if tcp, ok := c.raw.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
		_ = tcp.CloseRead()
	}
	return c.raw.Close()
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// IsTimeout reports whether err is a read or write deadline expiry.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
