package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// ErrTransportClosed is returned when a job.updated push or a late response
// targets a connection that has already gone away.
var ErrTransportClosed = errors.New("transport closed")

// Transport is one client connection. Messages are single JSON lines in
// both directions. Responses come from the read loop while job.updated
// notifications come from queue workers, so writes are serialized.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer

	mu     sync.Mutex
	closed bool
}

func NewTransport(r io.Reader, w io.Writer) *Transport {
	return &Transport{
		reader: bufio.NewReader(r),
		writer: w,
	}
}

// ReadRequest returns the next request together with its raw line, which
// the server needs to tell notifications from calls with a null id.
func (t *Transport) ReadRequest() (*Request, []byte, error) {
	line, err := t.reader.ReadBytes('\n')
	if err != nil {
		return nil, nil, err
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &req, line, nil
}

func (t *Transport) WriteResponse(resp *Response) error {
	return t.send(resp)
}

func (t *Transport) WriteNotification(notif *Notification) error {
	return t.send(notif)
}

// Close marks the connection gone. The underlying stream belongs to the
// caller and stays open.
func (t *Transport) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *Transport) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	_, err = t.writer.Write(data)
	return err
}

// TCPListener serves one Transport per accepted connection.
type TCPListener struct {
	listener net.Listener
	server   *Server

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func NewTCPListener(addr string, server *Server) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return &TCPListener{listener: ln, server: server, conns: make(map[net.Conn]struct{})}, nil
}

func (tl *TCPListener) Addr() net.Addr {
	return tl.listener.Addr()
}

// Serve accepts connections until ctx is canceled or the listener fails.
// On cancellation it drops every open connection, waits for their
// handlers and returns nil.
func (tl *TCPListener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		tl.listener.Close() //nolint:errcheck
	})
	defer stop()

	for {
		conn, err := tl.listener.Accept()
		if err != nil {
			tl.dropAll()
			tl.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		tl.track(conn)
		tl.wg.Add(1)
		go func() {
			defer tl.wg.Done()
			defer tl.untrack(conn)
			transport := NewTransport(conn, conn)
			defer transport.Close()
			tl.server.ServeTransport(ctx, transport)
		}()
	}
}

// Close stops accepting connections. Serve then drops the open ones and
// returns the accept error.
func (tl *TCPListener) Close() error {
	return tl.listener.Close()
}

func (tl *TCPListener) track(c net.Conn) {
	tl.mu.Lock()
	tl.conns[c] = struct{}{}
	tl.mu.Unlock()
}

func (tl *TCPListener) untrack(c net.Conn) {
	tl.mu.Lock()
	delete(tl.conns, c)
	tl.mu.Unlock()
	c.Close() //nolint:errcheck
}

func (tl *TCPListener) dropAll() {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	for c := range tl.conns {
		c.Close() //nolint:errcheck
	}
}
