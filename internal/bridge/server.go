package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxelstream/internal/config"
	"voxelstream/internal/world"
)

const (
	defaultWriteTimeout = 5 * time.Second
	handshakeTimeout    = 5 * time.Second
	maxInboundMessage   = 64 * 1024
)

type Options struct {
	ChunkWidth   int
	ChunkHeight  int
	ViewDistance int
	AtlasBlocks  int
	WriteTimeout time.Duration
	Compress     bool
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ChunkWidth:   cfg.Chunk.Width,
		ChunkHeight:  cfg.Chunk.Height,
		ViewDistance: cfg.Stream.ViewDistance,
		AtlasBlocks:  cfg.Atlas.Blocks,
		WriteTimeout: cfg.Bridge.WriteTimeout.Duration(),
		Compress:     cfg.Bridge.Compression != config.CompressionNone,
	}
}

// Server bridges the streaming manager to websocket renderers. It
// implements world.Sink and never blocks the caller: each renderer keeps the
// latest unsent state per chunk and a dedicated goroutine writes it.
type Server struct {
	opts     Options
	logger   *log.Logger
	upgrader websocket.Upgrader
	codec    *Codec
	seq      atomic.Uint64

	mu        sync.Mutex
	clients   map[string]*client
	conns     map[*websocket.Conn]struct{}
	meshes    map[world.Key][]byte
	visible   map[world.Key]bool
	viewer    mgl64.Vec3
	hasViewer bool

	handlers sync.WaitGroup
}

func NewServer(opts Options, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "bridge ", log.LstdFlags|log.Lmicroseconds)
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	codec, err := NewCodec(opts.Compress)
	if err != nil {
		return nil, err
	}
	return &Server{
		opts:   opts,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		codec:   codec,
		clients: make(map[string]*client),
		conns:   make(map[*websocket.Conn]struct{}),
		meshes:  make(map[world.Key][]byte),
		visible: make(map[world.Key]bool),
	}, nil
}

// Viewer returns the most recent viewer position reported by any renderer.
func (s *Server) Viewer() (mgl64.Vec3, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewer, s.hasViewer
}

func (s *Server) SetViewer(pos mgl64.Vec3) {
	s.mu.Lock()
	s.viewer = pos
	s.hasViewer = true
	s.mu.Unlock()
}

// Clients reports the number of connected renderers.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) MeshReady(h world.Handoff) {
	data, err := s.codec.EncodeMesh(h)
	if err != nil {
		s.logger.Printf("encode mesh: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meshes[h.Key] = data
	for _, c := range s.clients {
		c.pushMesh(h.Key, data)
	}
}

func (s *Server) VisibilityChanged(key world.Key, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible[key] = visible
	for _, c := range s.clients {
		c.pushVisibility(key, visible)
	}
}

func (s *Server) Evicted(key world.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.meshes, key)
	delete(s.visible, key)
	for _, c := range s.clients {
		c.pushEvict(key)
	}
}

func visibilityPayload(key world.Key, visible bool) Visibility {
	return Visibility{ChunkX: key.Coord.X, ChunkZ: key.Coord.Z, Variant: key.Variant.String(), Visible: visible}
}

func (s *Server) message(msgType MessageType, payload any) ([]byte, error) {
	env, err := NewEnvelope(msgType, s.seq.Add(1), payload)
	if err != nil {
		return nil, err
	}
	return Encode(env)
}

// writeEntry sends the pending state of one chunk: eviction first, then the
// mesh, then visibility.
func (s *Server) writeEntry(conn *websocket.Conn, e pendingEntry) error {
	if e.evicted {
		data, err := s.message(MessageEvict, Evict{ChunkX: e.key.Coord.X, ChunkZ: e.key.Coord.Z, Variant: e.key.Variant.String()})
		if err != nil {
			return err
		}
		if err := s.write(conn, websocket.TextMessage, data); err != nil {
			return err
		}
	}
	if e.mesh != nil {
		if err := s.write(conn, websocket.BinaryMessage, e.mesh); err != nil {
			return err
		}
	}
	if e.hasVisible {
		data, err := s.message(MessageVisibility, visibilityPayload(e.key, e.visible))
		if err != nil {
			return err
		}
		if err := s.write(conn, websocket.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) write(conn *websocket.Conn, kind int, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	return conn.WriteMessage(kind, data)
}

// attach registers a renderer and marks the current scene pending so it
// starts in sync with the manager.
func (s *Server) attach(id string) *client {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := newClient(id)
	for key, data := range s.meshes {
		c.pushMesh(key, data)
	}
	for key, visible := range s.visible {
		c.pushVisibility(key, visible)
	}
	s.clients[id] = c
	return c
}

func (s *Server) detach(id string) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		defer s.untrack(conn)
		conn.SetReadLimit(maxInboundMessage)

		id, err := s.handshake(conn)
		if err != nil {
			s.logger.Printf("handshake from %s: %v", r.RemoteAddr, err)
			return
		}
		c := s.attach(id)
		defer s.detach(id)
		s.logger.Printf("renderer %s connected from %s", id, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		writerDone := make(chan struct{})
		defer func() { <-writerDone }()
		defer cancel()
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-ctx.Done():
					return
				case <-c.wake:
				}
				for _, entry := range c.take() {
					if err := s.writeEntry(conn, entry); err != nil {
						s.logger.Printf("renderer %s: write: %v", id, err)
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			env, err := Decode(msg)
			if err != nil {
				continue
			}
			switch env.Type {
			case MessageViewer:
				var v Viewer
				if err := DecodePayload(env, &v); err != nil {
					s.logger.Printf("renderer %s: %v", id, err)
					continue
				}
				s.SetViewer(mgl64.Vec3{v.X, v.Y, v.Z})
			default:
				s.logger.Printf("renderer %s: unexpected message %q", id, env.Type)
			}
		}
		s.logger.Printf("renderer %s disconnected", id)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	_ = conn.SetReadDeadline(time.Time{})

	env, err := Decode(msg)
	if err != nil || env.Type != MessageHello {
		closeWith(conn, "expected hello")
		return "", errors.New("expected hello")
	}
	var hello Hello
	if err := DecodePayload(env, &hello); err != nil {
		closeWith(conn, "bad hello")
		return "", err
	}
	if hello.ProtocolVersion != ProtocolVersion {
		closeWith(conn, "bad protocolVersion")
		return "", fmt.Errorf("unsupported protocol version %q", hello.ProtocolVersion)
	}

	id := uuid.NewString()
	data, err := s.message(MessageWelcome, Welcome{
		SessionID:       id,
		ProtocolVersion: ProtocolVersion,
		ChunkWidth:      s.opts.ChunkWidth,
		ChunkHeight:     s.opts.ChunkHeight,
		ViewDistance:    s.opts.ViewDistance,
		AtlasBlocks:     s.opts.AtlasBlocks,
	})
	if err != nil {
		return "", err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return "", err
	}
	return id, nil
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}

// Serve accepts renderers on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: handshakeTimeout}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.closeConns()
	}()

	s.logger.Printf("listening on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped
	s.handlers.Wait()
	return nil
}

// track registers a live connection. It fails once the server is closing.
func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	s.handlers.Add(1)
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	_ = conn.Close()
	s.mu.Lock()
	if s.conns != nil {
		delete(s.conns, conn)
	}
	s.mu.Unlock()
	s.handlers.Done()
}

// closeConns closes every hijacked renderer connection, which http.Server
// Shutdown leaves open, and refuses new ones.
func (s *Server) closeConns() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for conn := range conns {
		_ = conn.Close()
	}
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Close disconnects every renderer, waits for their handlers and releases
// the codec.
func (s *Server) Close() {
	s.closeConns()
	s.handlers.Wait()
	s.codec.Close()
}
