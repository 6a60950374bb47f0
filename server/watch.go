package server

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"orrery.space/body"
	"orrery.space/protocol"
)

const (
	reloadDebounce   = 200 * time.Millisecond
	broadcastTimeout = time.Second
)

// watchCatalog reloads the catalog file whenever it changes. New sessions
// start from the reloaded catalog and running sessions receive the fixed
// planets as `<body>Data` updates.
func (s *Server) watchCatalog(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog watcher: %w", err)
	}
	path = filepath.Clean(path)
	// watch the directory so editors that replace the file are noticed
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer watcher.Close()

		var pending <-chan time.Time
		for {
			select {
			case <-s.ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != path {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					pending = time.After(reloadDebounce)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn("catalog watcher", "error", err)
			case <-pending:
				pending = nil
				s.reloadCatalog(path)
			}
		}
	}()
	s.log.Info("watching catalog", "path", path)
	return nil
}

func (s *Server) reloadCatalog(path string) {
	c, err := body.ReadCatalogFile(path)
	s.metrics.RecordCatalogReload(err)
	if err != nil {
		s.log.Warn("catalog reload failed, keeping previous", "path", path, "error", err)
		return
	}
	s.SetCatalog(c)

	ctx, cancel := context.WithTimeout(s.ctx, broadcastTimeout)
	defer cancel()
	for _, id := range body.FixedBodies {
		in, ok := c.Find(id)
		if !ok {
			continue
		}
		s.Broadcast(ctx, protocol.BodyData{Body: id, Data: in})
	}
	s.log.Info("catalog reloaded", "path", path, "bodies", len(c.Bodies))
}
