// Package server assembles a running SMB1 server from configuration: the
// request handler and its collaborators, the TCP adapter, change watchers
// and the status API.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/dirscan"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/handlers"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/locking"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/oplock"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/transfer"
	"github.com/marmos91/dittosmb/internal/bytesize"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/access"
	smb1adapter "github.com/marmos91/dittosmb/pkg/adapter/smb1"
	"github.com/marmos91/dittosmb/pkg/api"
	"github.com/marmos91/dittosmb/pkg/config"
	"github.com/marmos91/dittosmb/pkg/dosattr"
	"github.com/marmos91/dittosmb/pkg/locktable"
	"github.com/marmos91/dittosmb/pkg/metrics"
	promexp "github.com/marmos91/dittosmb/pkg/metrics/prometheus"
	"github.com/marmos91/dittosmb/pkg/notify"
	"github.com/marmos91/dittosmb/pkg/spool"
	"github.com/marmos91/dittosmb/pkg/vfs"
)

// messageSlack covers the SMB header, parameter words and padding that
// accompany the largest write payload.
const messageSlack = 4 * bytesize.KiB

// Server owns every long-lived component of a running instance.
type Server struct {
	cfg *config.Config

	Handler *handlers.Handler
	Adapter *smb1adapter.Adapter
	API     *api.Server

	attrs    dosattr.Store
	watchers []*notify.Watcher

	closeOnce sync.Once
}

// New builds a server from cfg. Nothing listens until Serve is called.
// Share directories must already exist.
func New(cfg *config.Config) (*Server, error) {
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}
	m := promexp.NewSMB1Metrics()

	attrs, err := openAttrStore(cfg.DOSAttr)
	if err != nil {
		return nil, err
	}

	var spooler spool.Spooler
	if hasPrintShare(cfg.Shares) {
		fs, err := spool.NewFileSpooler(afero.NewOsFs(), cfg.Spool.Directory, 0)
		if err != nil {
			_ = attrs.Close()
			return nil, err
		}
		spooler = fs
	}

	h := handlers.NewHandler(handlers.Options{
		ServerName:    cfg.Server.ServerName,
		Workgroup:     cfg.Server.Workgroup,
		MaxBufferSize: uint32(cfg.Server.MaxBufferSize),
		MaxReadSize:   uint32(cfg.Server.MaxReadSize),
		MaxWriteSize:  uint32(cfg.Server.MaxWriteSize),
		Locks: locking.NewEngine(locktable.NewMemory(), locking.Config{
			MaxBlockingTimeout: cfg.Lock.MaxBlockingTimeout,
			MaxPendingPerFile:  cfg.Lock.MaxPendingPerFile,
		}),
		Oplocks: oplock.NewManager(nil, oplock.Config{
			Disabled:     cfg.Oplock.Disabled,
			BreakTimeout: cfg.Oplock.BreakTimeout,
		}),
		Cursors:  dirscan.NewCursorTable(cfg.Server.SearchCursorTTL, 0),
		Access:   access.ShareOracle{},
		Auth:     access.GuestAuthenticator{Account: "guest"},
		Attrs:    attrs,
		Bus:      notify.NewBus(),
		Spooler:  spooler,
		Transfer: transfer.New(transfer.Config{ZeroCopy: !cfg.Server.DisableZeroCopy}, m),
		Metrics:  m,
	})

	for _, sc := range cfg.Shares {
		share, err := newShare(sc)
		if err != nil {
			h.Shutdown()
			_ = attrs.Close()
			return nil, err
		}
		h.AddShare(share)
		logger.Info("Share exported", "share", share.Name, "path", sc.Path, "service", share.Service())
	}

	s := &Server{
		cfg:     cfg,
		Handler: h,
		attrs:   attrs,
		Adapter: smb1adapter.New(smb1adapter.Config{
			ListenAddress:   cfg.Server.ListenAddress,
			MaxConnections:  cfg.Server.MaxConnections,
			MaxMessageSize:  int(max(cfg.Server.MaxWriteSize, cfg.Server.MaxBufferSize) + messageSlack),
			IdleTimeout:     cfg.Server.IdleTimeout,
			ShutdownTimeout: cfg.ShutdownTimeout,
		}, h),
	}

	if badger, ok := attrs.(*dosattr.BadgerStore); ok {
		if err := promexp.RegisterBadgerMetrics(badger); err != nil {
			logger.Warn("Failed to register dosattr cache metrics", "error", err)
		}
	}

	if cfg.API.IsEnabled() {
		s.API = api.NewServer(cfg.API, s.Adapter)
	}
	return s, nil
}

func openAttrStore(cfg config.DOSAttrConfig) (dosattr.Store, error) {
	switch cfg.Backend {
	case "badger":
		store, err := dosattr.OpenBadger(cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("DOS attributes persisted", "backend", "badger", "path", cfg.Path)
		return store, nil
	case "memory", "":
		return dosattr.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown dosattr backend %q", cfg.Backend)
	}
}

func hasPrintShare(shares []config.ShareConfig) bool {
	for _, s := range shares {
		if s.Printable {
			return true
		}
	}
	return false
}

func newShare(sc config.ShareConfig) (*handlers.Share, error) {
	fi, err := os.Stat(sc.Path)
	if err != nil {
		return nil, fmt.Errorf("share %s: %w", sc.Name, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("share %s: %s is not a directory", sc.Name, sc.Path)
	}

	return &handlers.Share{
		Name:          sc.Name,
		Comment:       sc.Comment,
		FS:            vfs.NewOsFS(sc.Path),
		ReadOnly:      sc.ReadOnly,
		CaseSensitive: sc.CaseSensitive,
		PosixPaths:    sc.PosixPaths,
		Printable:     sc.Printable,
		GuestOK:       sc.GuestOK,
		Oplocks:       !sc.DisableOplocks,
		LargeFiles:    !sc.DisableLargeFiles,
		StrictSync:    sc.StrictSync,
	}, nil
}

// Serve starts the change watchers, the status API and the SMB listener,
// and blocks until ctx is cancelled or a listener fails. Components are
// released before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	defer s.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, sc := range s.cfg.Shares {
		if !sc.WatchExternalChanges {
			continue
		}
		w, err := notify.Watch(ctx, s.Handler.Bus, sc.Name, sc.Path)
		if err != nil {
			logger.Warn("Failed to watch share for external changes", "share", sc.Name, "error", err)
			continue
		}
		s.watchers = append(s.watchers, w)
	}

	apiErr := make(chan error, 1)
	if s.API != nil {
		go func() {
			if err := s.API.Start(ctx); err != nil {
				apiErr <- err
			}
		}()
	}

	smbErr := make(chan error, 1)
	go func() { smbErr <- s.Adapter.Serve(ctx) }()

	select {
	case err := <-smbErr:
		return err
	case err := <-apiErr:
		logger.Error("API server failed - initiating shutdown", "error", err)
		cancel()
		return errors.Join(fmt.Errorf("API server error: %w", err), <-smbErr)
	case <-ctx.Done():
		return <-smbErr
	}
}

// Close releases watchers, the handler and the attribute store. It is
// called by Serve and is safe to call again.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		for _, w := range s.watchers {
			_ = w.Close()
		}
		s.Handler.Shutdown()

		done := make(chan struct{})
		go func() {
			if err := s.attrs.Close(); err != nil {
				logger.Warn("Failed to close dosattr store", "error", err)
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			logger.Warn("Timed out closing dosattr store")
		}
	})
}
