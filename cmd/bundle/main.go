// The bundle command publishes signing bundles and serialized proposals to
// content-addressed storage and fetches them back by content id.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/ruteri/safe-signing-gate/common"
	"github.com/ruteri/safe-signing-gate/interfaces"
	"github.com/ruteri/safe-signing-gate/storage"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "bundle",
		Usage: "Publish and fetch signing bundles through content-addressed storage",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "storage",
				Usage:    "comma-separated storage backend URIs",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "content-type",
				Value: "bundle",
				Usage: "content namespace: bundle or proposal",
			},
			&cli.BoolFlag{Name: "log-debug", Usage: "log debug messages"},
		},
		Commands: []*cli.Command{
			{
				Name:      "publish",
				Usage:     "Store a file and print its content id",
				ArgsUsage: "<file>",
				Action:    runPublish,
			},
			{
				Name:      "fetch",
				Usage:     "Fetch content by id and write it to a file or stdout",
				ArgsUsage: "<content-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Usage: "output file, defaults to stdout"},
				},
				Action: runFetch,
			},
			{
				Name:   "status",
				Usage:  "Report availability of every configured backend",
				Action: runStatus,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupBackend(cCtx *cli.Context) (interfaces.StorageBackend, *slog.Logger, error) {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool("log-debug"),
		Service: "bundle",
		Version: common.Version,
	})

	var locations []interfaces.StorageBackendLocation
	for _, uri := range strings.Split(cCtx.String("storage"), ",") {
		location, err := interfaces.NewStorageBackendLocation(strings.TrimSpace(uri))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid storage URI %q: %w", uri, err)
		}
		locations = append(locations, location)
	}

	backend, err := storage.NewFactory(logger).CreateMultiBackend(locations)
	if err != nil {
		return nil, nil, err
	}
	return backend, logger, nil
}

func contentType(cCtx *cli.Context) (interfaces.ContentType, error) {
	switch cCtx.String("content-type") {
	case "bundle":
		return interfaces.BundleType, nil
	case "proposal":
		return interfaces.ProposalType, nil
	default:
		return 0, fmt.Errorf("unknown content type %q", cCtx.String("content-type"))
	}
}

func runPublish(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return fmt.Errorf("expected exactly one file argument")
	}

	backend, logger, err := setupBackend(cCtx)
	if err != nil {
		return err
	}

	ct, err := contentType(cCtx)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(cCtx.Args().First())
	if err != nil {
		return fmt.Errorf("could not read input file: %w", err)
	}

	id, err := backend.Store(cCtx.Context, data, ct)
	if err != nil {
		return fmt.Errorf("store failed: %w", err)
	}

	logger.Info("Content published",
		slog.String("contentID", id.String()),
		slog.String("contentType", ct.String()),
		slog.Int("size", len(data)))
	fmt.Println(id.String())
	return nil
}

func runFetch(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return fmt.Errorf("expected exactly one content-id argument")
	}

	backend, _, err := setupBackend(cCtx)
	if err != nil {
		return err
	}

	ct, err := contentType(cCtx)
	if err != nil {
		return err
	}

	id, err := interfaces.NewContentIDFromHex(cCtx.Args().First())
	if err != nil {
		return fmt.Errorf("invalid content id: %w", err)
	}

	data, err := backend.Fetch(cCtx.Context, id, ct)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	if output := cCtx.String("output"); output != "" {
		return os.WriteFile(output, data, 0o644)
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runStatus(cCtx *cli.Context) error {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool("log-debug"),
		Service: "bundle",
		Version: common.Version,
	})

	factory := storage.NewFactory(logger)
	for _, uri := range strings.Split(cCtx.String("storage"), ",") {
		uri = strings.TrimSpace(uri)
		location, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			fmt.Printf("%s\tinvalid: %v\n", uri, err)
			continue
		}

		backend, err := factory.StorageBackendFor(location)
		if err != nil {
			fmt.Printf("%s\tunusable: %v\n", uri, err)
			continue
		}

		if backend.Available(cCtx.Context) {
			fmt.Printf("%s\tavailable\n", backend.Name())
		} else {
			fmt.Printf("%s\tunavailable\n", backend.Name())
		}
	}
	return nil
}
