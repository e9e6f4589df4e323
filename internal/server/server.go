package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"voxelstream/internal/bridge"
	"voxelstream/internal/config"
	"voxelstream/internal/generation"
	"voxelstream/internal/journal"
	"voxelstream/internal/terrain"
	"voxelstream/internal/world"
)

const statsInterval = 10 * time.Second

// Server drives the streaming manager from a fixed-rate tick and serves
// renderers over the bridge.
type Server struct {
	cfg      *config.Config
	manager  *world.Manager
	queue    *generation.Queue
	pool     *generation.Pool
	bridge   *bridge.Server
	listener net.Listener
	journal  *journal.Journal
	previews *world.PreviewWriter
	logger   *log.Logger
	started  time.Time
}

func New(cfg *config.Config, logger *log.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "voxelstream ", log.LstdFlags|log.Lmicroseconds)
	}

	bridgeSrv, err := bridge.NewServer(bridge.OptionsFromConfig(cfg), logger)
	if err != nil {
		return nil, err
	}
	var ln net.Listener
	if cfg.Bridge.Listen != "" {
		ln, err = net.Listen("tcp", cfg.Bridge.Listen)
		if err != nil {
			bridgeSrv.Close()
			return nil, fmt.Errorf("listen %s: %w", cfg.Bridge.Listen, err)
		}
	}

	queue := generation.NewQueue()
	pool := generation.NewPool(queue)
	manager := world.NewManager(world.OptionsFromConfig(cfg), queue, pool, logger)
	manager.SetSink(bridgeSrv)

	srv := &Server{
		cfg:      cfg,
		manager:  manager,
		queue:    queue,
		pool:     pool,
		bridge:   bridgeSrv,
		listener: ln,
		logger:   logger,
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			if ln != nil {
				_ = ln.Close()
			}
			bridgeSrv.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		srv.journal = j
		manager.AddRecorder(j)
	}
	if cfg.Preview.Dir != "" {
		srv.previews = world.NewPreviewWriter(cfg.Preview.Dir, terrain.NewTable(cfg.Terrain), logger)
		manager.AddRecorder(srv.previews)
	}
	return srv, nil
}

// Addr is the bridge listen address, nil when the bridge is disabled.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Manager() *world.Manager {
	return s.manager
}

// Run ticks the manager until ctx is cancelled. In-flight generation jobs,
// previews and journal writes are finished before it returns.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		if s.listener == nil {
			return
		}
		if err := s.bridge.Serve(ctx, s.listener); err != nil && ctx.Err() == nil {
			s.logger.Printf("bridge stopped: %v", err)
			cancel()
		}
	}()
	defer func() {
		cancel()
		<-serveDone
		s.shutdown()
	}()

	tickTicker := time.NewTicker(s.cfg.Stream.TickRate.Duration())
	defer tickTicker.Stop()

	statsTicker := time.NewTicker(statsInterval)
	defer statsTicker.Stop()

	s.started = time.Now()
	s.tick(s.started)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-tickTicker.C:
			s.tick(now)
		case <-statsTicker.C:
			s.logStats()
		}
	}
}

func (s *Server) tick(now time.Time) {
	viewer, _ := s.bridge.Viewer()
	report := s.manager.Tick(viewer, now.Sub(s.started).Seconds())
	if report.Evicted > 0 {
		s.logger.Printf("evicted %d chunks", report.Evicted)
	}
}

func (s *Server) logStats() {
	stats := s.manager.Stats()
	s.logger.Printf("tick %d viewer %v: %d resident, %d visible, %d mesh ready, %d jobs in flight, %d renderers",
		stats.Tick, stats.ViewerChunk, stats.Resident, stats.Visible, stats.MeshReady, s.pool.InFlight(), s.bridge.Clients())
}

func (s *Server) shutdown() {
	// Applying data results dispatches mesh jobs, so settle until both the
	// pool and the queue are empty.
	for {
		s.pool.Wait()
		if s.queue.Len() == 0 {
			break
		}
		s.manager.Drain()
	}
	if s.previews != nil {
		s.previews.Wait()
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Printf("close journal: %v", err)
		}
	}
	s.bridge.Close()
	s.logStats()
}
