package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"

	"ftpd/auth"
	"ftpd/config"
	"ftpd/sandbox"
)

// FTPServer accepts control connections and runs one ClientSession per
// connection. The credential store is shared across sessions and swapped
// atomically when the configuration file changes on disk.
type FTPServer struct {
	cfg      *config.Config
	creds    *auth.Store
	resolver *sandbox.Resolver
	logger   *log.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup
}

// NewFTPServer builds a server rooted at rootDir. rootDir must exist and
// be a directory.
func NewFTPServer(cfg *config.Config, rootDir string) (*FTPServer, error) {
	resolver, err := sandbox.New(rootDir, config.FileName)
	if err != nil {
		return nil, err
	}
	users, admin := credentials(cfg)
	return &FTPServer{
		cfg:      cfg,
		creds:    auth.NewStore(users, admin),
		resolver: resolver,
		logger:   log.New(os.Stdout, "[ftpd] ", log.LstdFlags),
	}, nil
}

func credentials(cfg *config.Config) ([]auth.User, *auth.User) {
	users := make([]auth.User, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		users = append(users, auth.User{Name: u.Name, Password: u.Password})
	}
	var admin *auth.User
	if cfg.Admin != nil {
		admin = &auth.User{Name: cfg.Admin.Name, Password: cfg.Admin.Password}
	}
	return users, admin
}

// ReloadCredentials swaps in the user list from a freshly loaded
// configuration. Existing sessions keep their login; only new USER/PASS
// exchanges see the change.
func (s *FTPServer) ReloadCredentials(cfg *config.Config) {
	s.creds.Reload(credentials(cfg))
	s.logger.Printf("Credentials reloaded (%d users)", len(cfg.Users))
}

// Start binds the control listener and serves until Shutdown.
func (s *FTPServer) Start(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, l)
}

// Serve runs the accept loop on an already bound listener.
func (s *FTPServer) Serve(ctx context.Context, l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return errors.New("server already shut down")
	}
	s.listener = l
	s.mu.Unlock()

	s.logger.Printf("Listening on %s, serving %s", l.Addr(), s.resolver.Root())
	for {
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.logger.Printf("New client connected from %s", conn.RemoteAddr())
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			newClientSession(s, conn).run(ctx)
		}()
	}
}

// Addr returns the bound control address, or "" before Serve.
func (s *FTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting and waits for running sessions to finish.
func (s *FTPServer) Shutdown() {
	s.mu.Lock()
	s.closed = true
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		l.Close()
	}
	s.wg.Wait()
}

// pasvHost is the interface passive data listeners bind. Binding the same
// interface as the control listener keeps the 227 address reachable.
func (s *FTPServer) pasvHost() string {
	host := s.cfg.ServerAddr
	if host == "" || host == "0.0.0.0" {
		return ""
	}
	return host
}

// configPath returns the configuration file location inside the served
// root, where the server both reads and protects it.
func configPath(rootDir string) string {
	return filepath.Join(rootDir, config.FileName)
}
