/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/molt/depgraph"
	"bennypowers.dev/molt/internal/logging"
	"bennypowers.dev/molt/internal/platform"
	"bennypowers.dev/molt/mirror"
	"bennypowers.dev/molt/reload"
	"bennypowers.dev/molt/runtime"
	"bennypowers.dev/molt/watch"
	"bennypowers.dev/molt/workspace"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch source roots and hot-patch loaded modules on edit",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := viper.GetString("project-dir")
		if dir == "" {
			dir = "."
		}
		if len(args) == 1 {
			dir = args[0]
		}

		session, err := newSession(dir)
		if err != nil {
			return err
		}
		defer session.stop()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logging.Info("shutting down")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// session is one booted environment: the live module graph, its
// dependency tracker, and the watchers over its source roots. Edits to
// the environment definition itself restart the whole session; edits to
// user source go through the partial reloader.
type session struct {
	ctx      *workspace.Context
	logger   logging.Logger
	tracker  *depgraph.Tracker
	loader   *runtime.Loader
	driver   *reload.Driver
	watchers []*watch.FilesWatcher
}

func newSession(dir string) (*session, error) {
	ctx, err := workspace.Load(dir)
	if err != nil {
		return nil, err
	}

	if ctx.Config.Verbose {
		logging.GetLogger().SetDebugEnabled(true)
	}

	s := &session{ctx: ctx, logger: logging.GetLogger()}
	if err := s.boot(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) boot() error {
	fs := platform.NewOSFileSystem()
	roots := s.ctx.SourceRootPaths()

	s.tracker = depgraph.NewTracker(fs, s.logger)
	s.tracker.Enable(nil)

	registry := runtime.NewRegistry()
	s.loader = runtime.NewLoader(fs, registry, roots, s.tracker, s.logger)

	// boot-load every source file so the graph is live before watching
	for _, root := range roots {
		if err := s.loadTree(root); err != nil {
			return err
		}
	}
	logging.Info("loaded %d modules from %s", len(registry.Modules()), s.ctx.Root)

	s.driver = reload.NewDriver(s.ctx.Root, s.logger, s.loader, s.tracker, reload.Callbacks{
		AfterPartialReload: func(path string, actions []mirror.Action) {
			lines := make([]string, len(actions))
			for i, a := range actions {
				lines[i] = a.String()
			}
			rel, err := filepath.Rel(s.ctx.Root, path)
			if err != nil {
				rel = path
			}
			if len(lines) == 0 {
				logging.Info("%s: no changes", rel)
				return
			}
			logging.Info("%s:\n  %s", rel, strings.Join(lines, "\n  "))
		},
		AfterFullReload: func() {
			logging.Info("full reload complete")
		},
		OnReloadError: func(err error) {
			logging.Error("%v", err)
		},
	})

	debounce := time.Duration(s.ctx.Config.DebounceMs) * time.Millisecond

	// source watchers: partial-reload candidates
	for _, root := range roots {
		backend, err := watch.NewFSNotifyBackend()
		if err != nil {
			return fmt.Errorf("create watcher for %s: %w", root, err)
		}
		fw := watch.New(watch.Sets{
			Root:    root,
			Include: s.ctx.Config.Include,
			Exclude: s.ctx.Config.Exclude,
		}, watch.Callbacks{
			OnEvent: func(ev watch.Event) { go s.driver.OnSourceEvent(ev) },
		}, backend, s.logger)
		fw.SetDebounce(debounce)
		if err := fw.Start(); err != nil {
			return fmt.Errorf("watch %s: %w", root, err)
		}
		s.watchers = append(s.watchers, fw)
	}

	// env watcher: the environment definition escalates to a restart,
	// never to a partial reload
	backend, err := watch.NewFSNotifyBackend()
	if err != nil {
		return err
	}
	envWatcher := watch.New(watch.Sets{
		Root:    s.ctx.Root,
		Include: []string{workspace.ConfigFileName},
	}, watch.Callbacks{
		OnEvent: func(ev watch.Event) { go s.restart() },
	}, backend, s.logger)
	envWatcher.SetDebounce(debounce)
	if err := envWatcher.Start(); err != nil {
		return err
	}
	s.watchers = append(s.watchers, envWatcher)

	return nil
}

// loadTree imports every .py file under root, depth-first.
func (s *session) loadTree(root string) error {
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			base := filepath.Base(p)
			if p != root && (base[0] == '.' || base == "__pycache__") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(p, ".py") {
			return nil
		}
		m, err := s.loader.Load(p)
		if err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
		s.tracker.RegisterModule(m)
		return nil
	})
}

// restart tears the session down and boots it again: the full host
// restart the environment watcher escalates to.
func (s *session) restart() {
	logging.Info("environment definition changed, restarting")
	s.stop()
	ctx, err := workspace.Load(s.ctx.Root)
	if err != nil {
		logging.Error("cannot reload workspace: %v", err)
		return
	}
	s.ctx = ctx
	if err := s.boot(); err != nil {
		logging.Error("restart failed: %v", err)
	}
}

func (s *session) stop() {
	for _, w := range s.watchers {
		w.Stop()
	}
	s.watchers = nil
}
