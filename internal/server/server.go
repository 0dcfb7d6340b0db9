package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/n0es/Transit/internal/db"
	"github.com/n0es/Transit/internal/protocol"
)

// Server owns the two listener tasks of the central authority: the TCP
// command protocol and the connectionless UDP beacon ingest. Both run
// under one errgroup and stop when the context is cancelled.
type Server struct {
	TCPAddr    string
	UDPAddr    string
	ConnTTL    time.Duration // per-read deadline on command connections, 0 = none
	Dispatcher *protocol.Dispatcher
	Store      db.Store
}

// Run serves until ctx is cancelled or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.serveTCP(ctx) })
	g.Go(func() error { return s.serveUDP(ctx) })
	return g.Wait()
}

func (s *Server) serveTCP(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.TCPAddr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	log.WithField("addr", s.TCPAddr).Info("TCP server listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Error("Accept failed")
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn serves one command connection. A transport fault terminates
// only this connection.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log.WithField("remote", conn.RemoteAddr()).Info("Client connected")

	scanner := bufio.NewScanner(conn)
	for {
		if s.ConnTTL > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.ConnTTL))
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
				log.WithError(err).WithField("remote", conn.RemoteAddr()).Warn("Read failed")
			}
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		response := s.Dispatcher.Dispatch(ctx, line)
		if _, err := conn.Write([]byte(response + "\n")); err != nil {
			log.WithError(err).WithField("remote", conn.RemoteAddr()).Warn("Write failed")
			break
		}
	}
	log.WithField("remote", conn.RemoteAddr()).Info("Client disconnected")
}

func (s *Server) serveUDP(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", s.UDPAddr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	log.WithField("addr", s.UDPAddr).Info("UDP beacon listener started")

	buf := make([]byte, 1024)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Error("Beacon read failed")
			continue
		}
		if err := s.applyBeacon(ctx, string(buf[:n])); err != nil {
			// Malformed or unprocessable beacons are logged and dropped;
			// there is no acknowledgment channel.
			log.WithError(err).WithField("remote", addr).Warn("Dropped beacon")
		}
	}
}
