// Copyright 2016 Qubit Digital Ltd.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Command logwatchd tails one or more wildcard-matched log files, folds
// each line into per-zone counters through a pluggable parser, and serves
// the resulting statistics over a small TCP protocol plus an optional
// admin HTTP endpoint. See internal/config for the full flag surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/sync/errgroup"

	"github.com/qubitproducts/logwatchd/internal/adminhttp"
	"github.com/qubitproducts/logwatchd/internal/config"
	"github.com/qubitproducts/logwatchd/internal/engine"
	"github.com/qubitproducts/logwatchd/internal/persist"
	"github.com/qubitproducts/logwatchd/internal/plugin"
	"github.com/qubitproducts/logwatchd/internal/sched"
	"github.com/qubitproducts/logwatchd/internal/server"
	"github.com/qubitproducts/logwatchd/internal/watch"

	_ "github.com/qubitproducts/logwatchd/internal/plugin/apache"
	_ "github.com/qubitproducts/logwatchd/internal/plugin/awkline"
	_ "github.com/qubitproducts/logwatchd/internal/plugin/clamd"
)

const version = "logwatchd (development build)"

var cfg = config.New()

var rootCmd = &cobra.Command{
	Use:   "logwatchd <plugin> [zone:]wildcard [[zone:]wildcard ...]",
	Short: "tail log files and serve rate-based statistics",
	RunE:  run,
}

func init() {
	cfg.RegisterFlags(rootCmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		glog.Exit(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	flag.Set("logtostderr", "true")
	if cfg.Debug {
		flag.Set("v", "2")
		cfg.LogLevel = "debug"
		cfg.Foreground = true
	}
	flag.Parse()

	if cfg.Version {
		fmt.Println(version)
		return nil
	}

	if err := cfg.ParsePositional(args); err != nil {
		return err
	}
	if len(cfg.Overrides) > 0 {
		if err := config.LoadOverrides(cfg.Overrides, cfg, cmd.Flags()); err != nil {
			return errors.Wrap(err, "override-from")
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.ChangeDir != "" {
		if err := os.Chdir(cfg.ChangeDir); err != nil {
			return errors.Wrap(err, "change-dir")
		}
	}
	if cfg.PidFile != "" {
		pid := []byte(fmt.Sprintf("%d\n", os.Getpid()))
		if err := ioutil.WriteFile(cfg.PidFile, pid, 0644); err != nil {
			glog.Warningf("writing pid file %s: %v", cfg.PidFile, err)
		}
	}

	ctor, ok := plugin.Lookup(cfg.Plugin)
	if !ok {
		return fmt.Errorf("unknown plugin %q (known: %s)", cfg.Plugin, strings.Join(plugin.Names(), ", "))
	}

	regexOverride := cfg.Regex
	if cfg.RegexFrom != "" {
		data, err := ioutil.ReadFile(cfg.RegexFrom)
		if err != nil {
			return errors.Wrap(err, "regex-from")
		}
		regexOverride = strings.TrimSpace(string(data))
	}

	opts := plugin.Options(config.ParsePluginOptions(cfg.PluginOpts))
	plug, err := ctor(opts, regexOverride)
	if err != nil {
		return errors.Wrapf(err, "constructing plugin %q", cfg.Plugin)
	}

	timers, err := config.ParseTimers(cfg.Timers)
	if err != nil {
		return err
	}

	if cfg.DecryptKey != "" {
		// Decrypting an archived snapshot is an offline, operator-driven
		// recovery step, not something logwatchd does on startup: the
		// live database file (--database-file) is never itself encrypted.
		glog.Warningf("--decrypt-key has no effect on startup load; decrypt an archived snapshot out of band")
	}

	snapshot, err := persist.Load(cfg.DatabaseFile)
	if err != nil {
		glog.Fatalf("loading database %s: %v", cfg.DatabaseFile, err)
	}

	expander := watch.NewExpander(cfg.Wildcards, cfg.Basename)
	scheduler := sched.New(cfg.ExpandPeriod, cfg.WindowSize, cfg.StorePeriod, timers)
	srv := server.New(cfg.ListenAddr)

	var archiver *persist.Archiver
	if cfg.ArchiveDir != "" {
		var keys openpgp.EntityList
		if cfg.EncryptTo != "" {
			keys, err = persist.LoadEncryptToKeyring(cfg.EncryptTo)
			if err != nil {
				return errors.Wrap(err, "encrypt-to")
			}
		}
		archiver, err = persist.NewArchiver(cfg.ArchiveDir, keys, cfg.ArchiveKeep)
		if err != nil {
			return errors.Wrap(err, "archive-dir")
		}
	}

	eng := engine.New(cfg, plug, expander, scheduler, srv, archiver)
	eng.Bootstrap(snapshot)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigc {
			switch sig {
			case syscall.SIGHUP:
				glog.Info("SIGHUP received, forcing wildcard re-expansion")
				eng.HUP()
			case syscall.SIGUSR1:
				// Log file reopening (for external logrotate of glog's own
				// output) is handled by the logging library, not here.
				glog.Info("SIGUSR1 received")
			case syscall.SIGINT, syscall.SIGTERM:
				glog.Infof("%s received, shutting down", sig)
				cancel()
				return
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})

	if cfg.AdminAddr != "" {
		admin := adminhttp.New(cfg.AdminAddr, eng, eng, cfg.WindowSize)
		g.Go(func() error {
			return admin.Serve(gctx)
		})
	}

	if err := g.Wait(); err != nil && errors.Cause(err) != context.Canceled {
		return err
	}
	return nil
}
