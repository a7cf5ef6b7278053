// The keyconfig command manages custody-key configuration in Vault: which
// public key the custody network signs with and under what signature name.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ruteri/safe-signing-gate/common"
	"github.com/ruteri/safe-signing-gate/custody"
	"github.com/ruteri/safe-signing-gate/interfaces"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "keyconfig",
		Usage: "Manage custody-key configuration",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "vault-addr", EnvVars: []string{"VAULT_ADDR"}, Required: true},
			&cli.StringFlag{Name: "vault-token", EnvVars: []string{"VAULT_TOKEN"}, Required: true},
			&cli.StringFlag{Name: "vault-mount", Value: "secret"},
			&cli.StringFlag{Name: "vault-path", Value: "custody-keys"},
			&cli.BoolFlag{Name: "log-debug", Usage: "log debug messages"},
		},
		Commands: []*cli.Command{
			{
				Name:  "persist",
				Usage: "Store a key configuration",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "public-key", Required: true},
					&cli.StringFlag{Name: "sig-name", Required: true},
					&cli.StringFlag{Name: "key-id"},
				},
				Action: runPersist,
			},
			{
				Name:      "load",
				Usage:     "Read a key configuration by name",
				ArgsUsage: "<name>",
				Action:    runLoad,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newStore(cCtx *cli.Context) (*custody.VaultKeyConfigStore, error) {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool("log-debug"),
		Service: "keyconfig",
		Version: common.Version,
	})
	return custody.NewVaultKeyConfigStore(
		cCtx.String("vault-addr"),
		cCtx.String("vault-token"),
		cCtx.String("vault-mount"),
		cCtx.String("vault-path"),
		logger,
	)
}

func runPersist(cCtx *cli.Context) error {
	store, err := newStore(cCtx)
	if err != nil {
		return err
	}

	return store.PersistKeyConfig(cCtx.Context, interfaces.KeyConfig{
		Name:      cCtx.String("name"),
		PublicKey: cCtx.String("public-key"),
		SigName:   cCtx.String("sig-name"),
		KeyID:     cCtx.String("key-id"),
	})
}

func runLoad(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return fmt.Errorf("expected exactly one name argument")
	}

	store, err := newStore(cCtx)
	if err != nil {
		return err
	}

	cfg, err := store.LoadKeyConfig(cCtx.Context, cCtx.Args().First())
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
