package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"holdem-engine/engine"
	"holdem-engine/internal/auth"
	"holdem-engine/models"
)

const maxLine = 64 * 1024

// TCPServer speaks newline-delimited JSON: one models.Command per line in,
// one models.Response per line out.
type TCPServer struct {
	address        string
	listener       net.Listener
	handler        *CommandHandler
	log            zerolog.Logger
	requestTimeout time.Duration

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
	done  chan struct{}
}

func NewTCPServer(address string, tableManager *engine.TableManager, authService *auth.Service, log zerolog.Logger) *TCPServer {
	return &TCPServer{
		address:        address,
		handler:        NewCommandHandler(tableManager, authService),
		log:            log,
		requestTimeout: 5 * time.Second,
		conns:          make(map[net.Conn]struct{}),
		done:           make(chan struct{}),
	}
}

// Listen binds the address. It is split from Serve so callers learn the
// bound port before accepting.
func (s *TCPServer) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	return nil
}

func (s *TCPServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until Stop. It returns nil after a clean stop.
func (s *TCPServer) Serve() error {
	s.log.Info().Str("addr", s.listener.Addr().String()).Msg("line protocol listening")
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *TCPServer) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

func (s *TCPServer) handleConnection(conn net.Conn) {
	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	log.Debug().Msg("client connected")
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.wg.Done()
		log.Debug().Msg("client disconnected")
	}()

	sess := &Session{}
	writer := bufio.NewWriter(conn)
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLine)

	for scanner.Scan() {
		var cmd models.Command
		var resp models.Response
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			resp = models.Response{Error: fmt.Sprintf("invalid JSON: %v", err)}
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
			resp = s.handler.Handle(ctx, sess, cmd)
			cancel()
		}
		if err := s.sendResponse(writer, resp); err != nil {
			log.Debug().Err(err).Msg("write failed")
			return
		}
	}

	if err := scanner.Err(); err != nil {
		log.Debug().Err(err).Msg("read failed")
	}
}

func (s *TCPServer) sendResponse(w *bufio.Writer, response models.Response) error {
	data, err := json.Marshal(response)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal response")
		data, _ = json.Marshal(models.Response{RequestID: response.RequestID, Error: "internal error"})
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Flush()
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines to exit.
func (s *TCPServer) Stop() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
