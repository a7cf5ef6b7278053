// The propose command builds deployment and upgrade proposals locally,
// prints their canonical hashes, and can open a pull request carrying the
// serialized proposal for review.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ruteri/safe-signing-gate/common"
	"github.com/ruteri/safe-signing-gate/gitops"
	"github.com/ruteri/safe-signing-gate/interfaces"
	"github.com/ruteri/safe-signing-gate/proposal"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "propose",
		Usage: "Build Safe transaction proposals for contract deployments and upgrades",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "safe-address", Required: true, Usage: "Safe multisig address"},
			&cli.Int64Flag{Name: "chain-id", Required: true, Usage: "chain id"},
			&cli.BoolFlag{Name: "log-debug", Usage: "log debug messages"},
		},
		Commands: []*cli.Command{
			{
				Name:  "deployment",
				Usage: "Build a contract deployment proposal",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "contract-name", Required: true},
					&cli.StringFlag{Name: "bytecode", Required: true, Usage: "hex init bytecode or @file"},
					&cli.StringFlag{Name: "value", Usage: "wei to send, defaults to 0"},
					&cli.StringFlag{Name: "salt", Usage: "32-byte hex salt; prints the CREATE2 address when set"},
					&cli.StringFlag{Name: "pr", Usage: "pull request reference for audit metadata"},
					&cli.StringFlag{Name: "commit", Usage: "commit hash for audit metadata"},
					&cli.StringFlag{Name: "deployer", Usage: "deployer identity for audit metadata"},
				},
				Action: runDeployment,
			},
			{
				Name:  "upgrade",
				Usage: "Build a proxy upgrade proposal",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "proxy", Required: true, Usage: "proxy address"},
					&cli.StringFlag{Name: "implementation", Required: true, Usage: "new implementation address"},
					&cli.StringFlag{Name: "function-signature", Usage: "upgrade function signature, defaults to upgradeTo(address)"},
				},
				Action: runUpgrade,
			},
			{
				Name:  "publish-pr",
				Usage: "Open a pull request carrying a serialized proposal file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "proposal-file", Required: true},
					&cli.StringFlag{Name: "github-token", EnvVars: []string{"GITHUB_TOKEN"}, Required: true},
					&cli.StringFlag{Name: "owner", Required: true},
					&cli.StringFlag{Name: "repo", Required: true},
					&cli.StringFlag{Name: "base-sha", Required: true, Usage: "commit SHA the proposal branch starts from"},
					&cli.StringFlag{Name: "base-branch", Value: "main"},
					&cli.StringFlag{Name: "branch", Required: true},
				},
				Action: runPublishPR,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newBuilder(cCtx *cli.Context) (*proposal.Builder, error) {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool("log-debug"),
		Service: "propose",
		Version: common.Version,
	})
	return proposal.NewBuilder(cCtx.String("safe-address"), cCtx.Int64("chain-id"), logger)
}

func readBytecode(arg string) (string, error) {
	if !strings.HasPrefix(arg, "@") {
		return arg, nil
	}
	data, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
	if err != nil {
		return "", fmt.Errorf("could not read bytecode file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func runDeployment(cCtx *cli.Context) error {
	builder, err := newBuilder(cCtx)
	if err != nil {
		return err
	}

	bytecode, err := readBytecode(cCtx.String("bytecode"))
	if err != nil {
		return err
	}

	req := &interfaces.DeploymentRequest{
		ContractName: cCtx.String("contract-name"),
		Bytecode:     bytecode,
		Value:        cCtx.String("value"),
		Metadata: map[string]string{
			"pr":       cCtx.String("pr"),
			"commit":   cCtx.String("commit"),
			"deployer": cCtx.String("deployer"),
		},
	}

	prop, _, err := builder.CreateDeploymentProposal(req)
	if err != nil {
		return err
	}

	if saltHex := cCtx.String("salt"); saltHex != "" {
		saltBytes, err := hex.DecodeString(strings.TrimPrefix(saltHex, "0x"))
		if err != nil || len(saltBytes) != 32 {
			return fmt.Errorf("salt must be 32 bytes of hex")
		}
		var salt [32]byte
		copy(salt[:], saltBytes)

		deployAddr, err := builder.CalculateDeploymentAddress(bytecode, salt)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "deployment address: %s\n", deployAddr)
	}

	return printJSON(builder.SerializeProposal(prop))
}

func runUpgrade(cCtx *cli.Context) error {
	builder, err := newBuilder(cCtx)
	if err != nil {
		return err
	}

	prop, err := builder.CreateUpgradeProposal(&interfaces.UpgradeRequest{
		ProxyAddress:      cCtx.String("proxy"),
		NewImplementation: cCtx.String("implementation"),
		FunctionSignature: cCtx.String("function-signature"),
	})
	if err != nil {
		return err
	}

	return printJSON(builder.SerializeProposal(prop))
}

func runPublishPR(cCtx *cli.Context) error {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool("log-debug"),
		Service: "propose",
		Version: common.Version,
	})

	content, err := os.ReadFile(cCtx.String("proposal-file"))
	if err != nil {
		return fmt.Errorf("could not read proposal file: %w", err)
	}

	var serialized interfaces.SerializedProposal
	if err := json.Unmarshal(content, &serialized); err != nil {
		return fmt.Errorf("proposal file is not a serialized proposal: %w", err)
	}

	client := gitops.NewClient(cCtx.String("github-token"), logger)
	owner, repo, branch := cCtx.String("owner"), cCtx.String("repo"), cCtx.String("branch")

	if err := client.CreateBranch(cCtx.Context, owner, repo, branch, cCtx.String("base-sha")); err != nil {
		return err
	}

	path := fmt.Sprintf("proposals/%s.json", strings.TrimPrefix(serialized.ValidationHash, "0x"))
	message := fmt.Sprintf("Add proposal %s", serialized.ValidationHash)
	if err := client.CreateFile(cCtx.Context, owner, repo, branch, path, content, message); err != nil {
		return err
	}

	title := fmt.Sprintf("Deployment proposal %s", serialized.Metadata.ContractName)
	body := fmt.Sprintf("Safe: %s\nChain: %d\nValidation hash: %s\n",
		serialized.SafeAddress, serialized.ChainID, serialized.ValidationHash)
	number, err := client.CreatePullRequest(cCtx.Context, owner, repo, title, branch, cCtx.String("base-branch"), body)
	if err != nil {
		return err
	}

	fmt.Printf("opened pull request #%d\n", number)
	return nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
