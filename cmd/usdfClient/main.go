package main

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"github.com/Layr-Labs/usdf-signer/pkg/attestationSigner/inMemoryAttestationSigner"
	"github.com/Layr-Labs/usdf-signer/pkg/client"
	"github.com/Layr-Labs/usdf-signer/pkg/logger"
	"github.com/Layr-Labs/usdf-signer/pkg/types"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "usdf-client",
		Usage: "Client for the USDF attestation signing server",
		Description: `Queries a signing server and verifies the attestations it issues.

This client can:
- List whitelisted tokens and their quotes
- Estimate the USDF amount for a token amount
- Request a signed attestation and verify it locally
- Generate a fresh signing keypair for local setups`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Aliases: []string{"s"},
				Usage:   "Signing server base URL",
				Value:   "http://localhost:3000",
				EnvVars: []string{"USDF_SERVER_URL"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "whitelist",
				Usage:  "List whitelisted tokens",
				Action: whitelistCommand,
			},
			{
				Name:  "estimate",
				Usage: "Estimate the USDF amount for a token amount",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "token",
						Usage:    "Token address",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "amount",
						Usage:    "Raw token amount (base 10 integer)",
						Required: true,
					},
				},
				Action: estimateCommand,
			},
			{
				Name:  "sign",
				Usage: "Request a signed attestation",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "user",
						Usage:    "Recipient user address",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "token",
						Usage:    "Token address",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "amount",
						Usage:    "Raw token amount (base 10 integer)",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "verify",
						Usage: "Verify the signature against the server public key",
					},
				},
				Action: signCommand,
			},
			{
				Name:   "keygen",
				Usage:  "Generate a base58 ed25519 signing keypair",
				Action: keygenCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// createClient creates a new signing service client from CLI context
func createClient(c *cli.Context) (*client.Client, error) {
	zapLogger, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return client.NewClient(&client.ClientConfig{
		BaseURL: c.String("server-url"),
		Logger:  zapLogger,
	})
}

func whitelistCommand(c *cli.Context) error {
	cl, err := createClient(c)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	entries, err := cl.GetWhitelist(c.Context)
	if err != nil {
		return fmt.Errorf("failed to get whitelist: %w", err)
	}

	fmt.Printf("%-32s %-24s %-12s %s\n", "TOKEN", "PRICE", "COEFFICIENT", "DECIMALS")
	for _, e := range entries {
		fmt.Printf("%-32s %-24s %-12d %d\n", e.Token, e.Price, e.Coefficient, e.Decimals)
	}
	return nil
}

func estimateCommand(c *cli.Context) error {
	amount, err := types.ParseAmount(c.String("amount"))
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}

	cl, err := createClient(c)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	usdf, err := cl.GetEstimation(c.Context, &types.EstimationRequest{
		TokenAddress: c.String("token"),
		Amount:       amount,
	})
	if err != nil {
		return fmt.Errorf("failed to get estimation: %w", err)
	}

	fmt.Println(usdf.String())
	return nil
}

func signCommand(c *cli.Context) error {
	amount, err := types.ParseAmount(c.String("amount"))
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}

	cl, err := createClient(c)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	req := &types.SigningRequest{
		UserAddress:  c.String("user"),
		TokenAddress: c.String("token"),
		Amount:       amount,
	}
	att, err := cl.GetSignature(c.Context, req)
	if err != nil {
		return fmt.Errorf("failed to get signature: %w", err)
	}

	fmt.Printf("Nonce:       %d\n", att.Nonce)
	fmt.Printf("USDF amount: %s\n", att.UsdfAmount.String())
	fmt.Printf("Signature:   %s\n", hex.EncodeToString(att.Signature))

	if !c.Bool("verify") {
		return nil
	}

	pub, err := cl.GetPublicKey(c.Context)
	if err != nil {
		return fmt.Errorf("failed to get public key: %w", err)
	}
	if err := client.VerifyAttestation(req, att, pub); err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	fmt.Printf("Verified against %s\n", pub)
	return nil
}

func keygenCommand(_ *cli.Context) error {
	secret, pub, err := inMemoryAttestationSigner.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Printf("Public key:  %s\n", pub)
	fmt.Printf("Signing key: %s\n", secret)
	return nil
}
