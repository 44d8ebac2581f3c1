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
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	transfer "github.com/hootrhino/gotransfer"
)

type clientOptions struct {
	fileName   string
	serverIP   string
	port       int
	bufferSize int
}

// normalizeFlagName lets both the underscore and dash spellings of the long
// flags resolve to the same flag.
func normalizeFlagName(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "-", "_"))
}

func main() {
	var opts clientOptions

	cmd := &cobra.Command{
		Use:           "transfer-client",
		Short:         "Send one file to a transfer server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.SetNormalizeFunc(normalizeFlagName)
	flags.StringVar(&opts.fileName, "file_name", "", "Path of the file to send")
	flags.StringVar(&opts.serverIP, "server_IP", "", "Server IP address")
	flags.IntVar(&opts.port, "server_PORT", 0, "Server port")
	flags.IntVar(&opts.bufferSize, "buffer_size", transfer.DefaultBufferSize, "Bytes per DATA frame (1..32768)")
	cmd.MarkFlagRequired("file_name")
	cmd.MarkFlagRequired("server_IP")
	cmd.MarkFlagRequired("server_PORT")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		switch {
		case errors.Is(err, transfer.ErrFileAlreadyTransferring):
			logrus.Error("File is already transferring. Exiting...")
		case errors.Is(err, context.Canceled):
			logrus.Error("Process interrupted. Exiting...")
		default:
			logrus.Errorf("Error: %v", err)
		}
		os.Exit(1)
	}
}

func runClient(ctx context.Context, opts clientOptions) error {
	transporter, err := transfer.ConnectTCP(opts.serverIP, opts.port, transfer.TCPTransporterConfig{
		Logger:   logrus.StandardLogger().Out,
		LogLevel: transfer.LevelWarning,
	})
	if err != nil {
		return err
	}
	logrus.Infof("Connected to %s", transporter.RemoteAddr())

	var sent int64
	client, err := transfer.NewClient(transporter, transfer.ClientConfig{
		BufferSize: opts.bufferSize,
		OnProgress: func(n int) { sent += int64(n) },
		Logger:     logrus.StandardLogger().Out,
		LogLevel:   transfer.LevelInfo,
	})
	if err != nil {
		transporter.Close()
		return err
	}
	defer client.Close()

	if err := client.SendFile(ctx, opts.fileName); err != nil {
		return err
	}
	logrus.Infof("Sent %s (%s)", opts.fileName, units.HumanSize(float64(sent)))
	return nil
}
