// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	transfer "github.com/hootrhino/gotransfer"
)

type serverOptions struct {
	directory string
	serverIP  string
	port      int
	logLevel  string
}

// normalizeFlagName lets both the underscore and dash spellings of the long
// flags resolve to the same flag.
func normalizeFlagName(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "-", "_"))
}

func main() {
	var opts serverOptions

	cmd := &cobra.Command{
		Use:           "transfer-server",
		Short:         "Receive files from transfer clients into a working directory",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.SetNormalizeFunc(normalizeFlagName)
	flags.StringVar(&opts.directory, "directory", "data", "Directory to store received files")
	flags.StringVar(&opts.serverIP, "server_IP", "127.0.0.1", "IP address to listen on")
	flags.IntVar(&opts.port, "server_PORT", 12345, "Port to listen on")
	flags.StringVar(&opts.logLevel, "log_level", "info", "Log level (debug, info, warn, error)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		logrus.Errorf("Error: %v", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, opts serverOptions) error {
	level, err := logrus.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	libLevel, err := transfer.ParseLogLevel(opts.logLevel)
	if err != nil {
		return err
	}

	srv, err := transfer.NewServer(transfer.ServerConfig{
		Directory: opts.directory,
		IP:        opts.serverIP,
		Port:      opts.port,
		Logger:    logrus.StandardLogger().Out,
		LogLevel:  libLevel,
	})
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}
	logrus.Infof("Server listening on %s", srv.Addr())
	logrus.Infof("Working directory: %s", opts.directory)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Serve)
	g.Go(func() error {
		<-gctx.Done()
		return srv.Shutdown()
	})
	if err := g.Wait(); err != nil {
		return err
	}

	m := srv.Metrics()
	logrus.Infof("Served %d connections: %d completed, %d canceled, %d failed",
		m.ConnectionsAccepted, m.FilesCompleted, m.FilesCanceled, m.FilesFailed)
	return nil
}
