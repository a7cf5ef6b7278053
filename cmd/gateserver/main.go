// The gateserver command serves the signing gate API: proposal building and
// validation, server-hosted gate invocations, and published bundle retrieval.
package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/safe-signing-gate/common"
	"github.com/ruteri/safe-signing-gate/custody"
	"github.com/ruteri/safe-signing-gate/httpserver"
	"github.com/ruteri/safe-signing-gate/interfaces"
	"github.com/ruteri/safe-signing-gate/proposal"
	"github.com/ruteri/safe-signing-gate/storage"
	"github.com/ruteri/safe-signing-gate/verifier"
	"github.com/urfave/cli/v2"
)

var flags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Value: "127.0.0.1:8090",
		Usage: "address to listen on for Prometheus metrics",
	},
	&cli.StringFlag{
		Name:     "safe-address",
		Usage:    "Safe multisig address proposals are built for",
		Required: true,
	},
	&cli.Int64Flag{
		Name:     "chain-id",
		Usage:    "chain id proposals are built for",
		Required: true,
	},
	&cli.StringFlag{
		Name:     "custody-addr",
		Usage:    "base URL of the custody network signing endpoint",
		Required: true,
	},
	&cli.StringFlag{
		Name:  "bundle-storage",
		Value: "",
		Usage: "comma-separated storage backend URIs for published bundles",
	},
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	},
	&cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add to all log messages",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: "signing-gate",
		Usage: "add 'service' tag to logs",
	},
	&cli.BoolFlag{
		Name:  "pprof",
		Value: false,
		Usage: "enable pprof debug endpoint",
	},
	&cli.Int64Flag{
		Name:  "drain-seconds",
		Value: 45,
		Usage: "seconds to wait in drain HTTP request",
	},
}

func main() {
	app := &cli.App{
		Name:  "gateserver",
		Usage: "Serve the deployment signing gate API",
		Flags: flags,
		Action: func(cCtx *cli.Context) error {
			logger := common.SetupLogger(&common.LoggingOpts{
				Debug:   cCtx.Bool("log-debug"),
				JSON:    cCtx.Bool("log-json"),
				Service: cCtx.String("log-service"),
				Version: common.Version,
			})

			if cCtx.Bool("log-uid") {
				id := uuid.Must(uuid.NewRandom())
				logger = logger.With("uid", id.String())
			}

			builder, err := proposal.NewBuilder(cCtx.String("safe-address"), cCtx.Int64("chain-id"), logger)
			if err != nil {
				logger.Error("Invalid builder configuration", "err", err)
				return err
			}

			var bundles interfaces.StorageBackend
			if uris := cCtx.String("bundle-storage"); uris != "" {
				var locations []interfaces.StorageBackendLocation
				for _, uri := range strings.Split(uris, ",") {
					location, err := interfaces.NewStorageBackendLocation(strings.TrimSpace(uri))
					if err != nil {
						logger.Error("Invalid bundle storage URI", "err", err, "uri", uri)
						return err
					}
					locations = append(locations, location)
				}

				bundles, err = storage.NewFactory(logger).CreateMultiBackend(locations)
				if err != nil {
					logger.Error("Could not create bundle storage", "err", err)
					return err
				}
				logger.Info("Bundle storage configured", "location", bundles.LocationURI())
			}

			handler := httpserver.NewHandler(
				builder,
				verifier.New(logger),
				custody.NewClient(cCtx.String("custody-addr"), logger),
				bundles,
				logger,
			)

			cfg := &httpserver.HTTPServerConfig{
				ListenAddr:               cCtx.String("listen-addr"),
				MetricsAddr:              cCtx.String("metrics-addr"),
				Log:                      logger,
				EnablePprof:              cCtx.Bool("pprof"),
				DrainDuration:            time.Duration(cCtx.Int64("drain-seconds")) * time.Second,
				GracefulShutdownDuration: 30 * time.Second,
				ReadTimeout:              60 * time.Second,
				WriteTimeout:             30 * time.Second,
			}

			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server",
				"safeAddress", builder.SafeAddress().String(),
				"chainID", builder.ChainID())
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
