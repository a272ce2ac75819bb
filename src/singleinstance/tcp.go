package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"region-ocr/src/sink"
)

const (
	residentHost = "127.0.0.1"
	pingRequest  = "PING\n"
	pongResponse = "PONG\n"
	runPrefix    = "RUN "
	statusOK     = "SUCCESS\n"
	statusErr    = "ERROR\n"
)

type tcpServer struct {
	log      *slog.Logger
	lis      net.Listener
	incoming chan *tcpConn
	done     chan struct{}
	once     sync.Once
	port     int
}

func NewServer(logger *slog.Logger) Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &tcpServer{log: logger, incoming: make(chan *tcpConn, 8), done: make(chan struct{})}
}

func (s *tcpServer) Start(ctx context.Context) error {
	if s.lis != nil {
		return nil
	}
	start, _ := portRange()
	addr := net.JoinHostPort(residentHost, strconv.Itoa(start))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("singleinstance: bind %s: %w", addr, err)
	}
	s.lis, s.port = lis, start
	s.log.Info("singleinstance: listening", "addr", addr)
	go s.acceptLoop(ctx)
	return nil
}

func (s *tcpServer) Port() int { return s.port }

func (s *tcpServer) acceptLoop(ctx context.Context) {
	for {
		c, err := s.lis.Accept()
		if err != nil {
			return
		}
		_ = c.SetDeadline(time.Now().Add(3 * time.Second))
		br := bufio.NewReader(c)
		bw := bufio.NewWriter(c)
		line, _ := br.ReadString('\n')
		if line == pingRequest {
			_, _ = bw.WriteString(pongResponse)
			_ = bw.Flush()
			_ = c.Close()
			continue
		}
		if !strings.HasPrefix(line, runPrefix) {
			s.log.Warn("singleinstance: unknown request", "remote", c.RemoteAddr().String())
			_ = c.Close()
			continue
		}
		format, err := sink.ParseFormat(strings.TrimSpace(strings.TrimPrefix(line, runPrefix)))
		if err != nil {
			_, _ = bw.WriteString(statusErr + err.Error())
			_ = bw.Flush()
			_ = c.Close()
			continue
		}
		// Runs wait on user selection, so no deadline past the handshake.
		_ = c.SetDeadline(time.Time{})
		s.log.Info("singleinstance: run requested", "remote", c.RemoteAddr().String(), "format", format)
		select {
		case s.incoming <- &tcpConn{c: c, r: Request{Format: format}, w: bw}:
		case <-s.done:
			_ = c.Close()
			return
		case <-ctx.Done():
			_ = c.Close()
			return
		}
	}
}

func (s *tcpServer) Next(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, net.ErrClosed
	case tc := <-s.incoming:
		return tc, nil
	}
}

func (s *tcpServer) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.lis != nil {
			err = s.lis.Close()
		}
	})
	return err
}

type tcpConn struct {
	c net.Conn
	r Request
	w *bufio.Writer
}

func (tc *tcpConn) Request() Request { return tc.r }

func (tc *tcpConn) RespondSuccess(text string) error {
	if _, err := tc.w.WriteString(statusOK + text); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) RespondError(msg string) error {
	if _, err := tc.w.WriteString(statusErr + msg); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) Close() error { return tc.c.Close() }

type tcpClient struct{}

func NewClient() Client { return tcpClient{} }

func (tcpClient) TryRun(ctx context.Context, format sink.Format) (bool, string, error) {
	port, ok := DetectResidentPort(ctx)
	if !ok {
		return false, "", nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(residentHost, strconv.Itoa(port)))
	if err != nil {
		return false, "", nil
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if _, err := io.WriteString(conn, runPrefix+string(format)+"\n"); err != nil {
		return true, "", err
	}
	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return true, "", fmt.Errorf("singleinstance: read status: %w", err)
	}
	body, _ := io.ReadAll(br)
	switch status {
	case statusOK:
		return true, string(body), nil
	case statusErr:
		return true, "", errors.New(string(body))
	default:
		return true, "", fmt.Errorf("singleinstance: unexpected status %q", strings.TrimSpace(status))
	}
}

// DetectResidentPort scans the port range for a resident answering PING.
func DetectResidentPort(ctx context.Context) (int, bool) {
	timeout := 300 * time.Millisecond
	start, end := portRange()
	for port := start; port <= end; port++ {
		if ctx.Err() != nil {
			return 0, false
		}
		if ping(net.JoinHostPort(residentHost, strconv.Itoa(port)), timeout) {
			return port, true
		}
	}
	return 0, false
}

func ping(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if _, err := io.WriteString(conn, pingRequest); err != nil {
		return false
	}
	resp, err := bufio.NewReader(conn).ReadString('\n')
	return err == nil && resp == pongResponse
}
