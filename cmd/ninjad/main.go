/*
Copyright 2024 PyNinja Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command ninjad is the host-agent daemon: it loads a Config, wires a
// Context, and serves the HTTP surface registered by lib/web alongside the
// background sweeper that expires stale tokens and auth-failure blocks.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gravitational/kingpin"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/thevickypedia/pyninja-go/lib/backend"
	"github.com/thevickypedia/pyninja-go/lib/config"
	"github.com/thevickypedia/pyninja-go/lib/ninjacontext"
	"github.com/thevickypedia/pyninja-go/lib/web"
)

func main() {
	app := kingpin.New("ninjad", "PyNinja host monitoring and automation agent.")
	app.HelpFlag.Short('h')

	var configPath string
	var debug bool
	app.Flag("config", "Path to a .env, .json, or .yaml config file. Falls back to the environment when unset.").
		Short('c').
		StringVar(&configPath)
	app.Flag("debug", "Enable verbose logging.").
		Short('d').
		BoolVar(&debug)

	if _, err := app.Parse(os.Args[1:]); err != nil {
		app.Usage(os.Args[1:])
		fmt.Fprintln(os.Stderr, trace.Wrap(err)) //nolint:errcheck
		os.Exit(1)
	}

	log := newLogger(debug)

	if err := run(configPath, log); err != nil {
		log.WithError(err).Error("ninjad exited with an error")
		os.Exit(1)
	}
}

func newLogger(debug bool) *logrus.Entry {
	logger := logrus.StandardLogger()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logrus.NewEntry(logger).WithField("component", "ninjad")
}

// run loads configuration, builds the application context, and serves
// until ctx is canceled by SIGINT/SIGTERM. Both the HTTP server and the
// sweeper run under a single errgroup so a failure in either brings the
// whole process down cleanly.
func run(configPath string, log *logrus.Entry) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return trace.Wrap(err, "loading configuration")
	}

	appCtx, err := ninjacontext.New(cfg, log)
	if err != nil {
		return trace.Wrap(err, "constructing application context")
	}
	defer func() {
		if err := appCtx.Close(); err != nil {
			log.WithError(err).Warn("error closing store on shutdown")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	addr := net.JoinHostPort(cfg.NinjaHost, fmt.Sprintf("%d", cfg.NinjaPort))
	server := &http.Server{
		Addr:              addr,
		Handler:           web.NewHandler(appCtx).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweeper := backend.NewSweeper(cfg.Database, log.WithField("component", "sweeper"), nil)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.WithField("addr", addr).Info("starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return trace.Wrap(err)
		}
		return nil
	})

	group.Go(func() error {
		return sweeper.Run(gctx)
	})

	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		log.Info("shutting down")
		return trace.Wrap(server.Shutdown(shutdownCtx))
	})

	return trace.Wrap(group.Wait())
}
