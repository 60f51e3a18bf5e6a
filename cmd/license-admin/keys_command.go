package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"desktop-license-server/config"
	"desktop-license-server/internal/auth"
	"desktop-license-server/internal/token"
	"desktop-license-server/internal/vault"
)

// RunKeygenCommand generates an Ed25519 signing key pair
func RunKeygenCommand() *cobra.Command {
	var (
		outDir  string
		toVault bool
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 token signing key pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			privPEM, pubPEM, err := token.GenerateKeyPair()
			if err != nil {
				return err
			}

			if toVault {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				client, err := vault.NewClient(cfg.VaultConfig)
				if err != nil {
					return err
				}
				if err := client.StoreSigningKey(cmd.Context(), privPEM); err != nil {
					return err
				}
				cmd.Printf("Private key stored in Vault at %s/%s\n", cfg.VaultConfig.MountPath, cfg.VaultConfig.SecretPath)
			}

			if outDir == "" {
				if !toVault {
					cmd.Print(string(privPEM))
				}
				cmd.Print(string(pubPEM))
				return nil
			}

			privPath := filepath.Join(outDir, "signing_key.pem")
			pubPath := filepath.Join(outDir, "signing_key.pub.pem")
			if !force {
				for _, p := range []string{privPath, pubPath} {
					if _, err := os.Stat(p); err == nil {
						return fmt.Errorf("%s already exists, use --force to overwrite", p)
					}
				}
			}
			if err := os.MkdirAll(outDir, 0o700); err != nil {
				return err
			}
			if !toVault {
				if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
					return err
				}
				cmd.Printf("Private key written to %s\n", privPath)
			}
			if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
				return err
			}
			cmd.Printf("Public key written to %s\n", pubPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "Directory to write the PEM files to (default: print to stdout)")
	cmd.Flags().BoolVar(&toVault, "vault", false, "Store the private key in Vault instead of on disk")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing key files")

	return cmd
}

// RunInspectCommand verifies a license token offline and prints its claims
func RunInspectCommand() *cobra.Command {
	var (
		publicKeyPath string
		issuer        string
	)

	cmd := &cobra.Command{
		Use:   "inspect <token>",
		Short: "Verify a license token offline and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if publicKeyPath == "" {
				return errors.New("--public-key is required")
			}
			pubPEM, err := os.ReadFile(publicKeyPath)
			if err != nil {
				return err
			}
			verifier, err := token.NewVerifier(pubPEM, token.Options{Issuer: issuer})
			if err != nil {
				return err
			}

			raw := strings.TrimSpace(args[0])
			claims, verr := verifier.Verify(raw)
			if errors.Is(verr, token.ErrExpired) {
				// Still authentic, show what it carried
				claims, err = verifier.VerifyIgnoringExpiry(raw)
				if err != nil {
					return err
				}
			}

			cmd.Printf("Status:      %s\n", token.Classification(verr))
			if claims == nil {
				return fmt.Errorf("token rejected: %w", verr)
			}

			cmd.Printf("Token ID:    %s\n", claims.ID)
			cmd.Printf("User:        %s\n", claims.UserID())
			cmd.Printf("License:     %s\n", claims.LicenseID)
			cmd.Printf("Device:      %s\n", claims.DeviceID)
			cmd.Printf("Plan:        %s\n", claims.PlanTier)
			cmd.Printf("Managed AI:  %t\n", claims.Entitlements.ManagedAI)
			cmd.Printf("Issued at:   %s\n", claims.IssuedAtTime().Format(time.RFC3339))
			cmd.Printf("Expires at:  %s\n", claims.ExpiresAtTime().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&publicKeyPath, "public-key", os.Getenv("TOKEN_PUBLIC_KEY_PATH"), "Path to the PEM public key")
	cmd.Flags().StringVar(&issuer, "issuer", "desktop-license-server", "Expected token issuer")

	return cmd
}

// RunSessionCommand mints a session credential for local testing
func RunSessionCommand() *cobra.Command {
	var (
		secret   string
		issuer   string
		lifetime time.Duration
	)

	cmd := &cobra.Command{
		Use:   "session <user_id> <email>",
		Short: "Mint a session credential for development",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret or AUTH_JWT_SECRET is required")
			}
			manager := auth.NewJWTManager(secret, issuer, lifetime)
			session, err := manager.GenerateSessionToken(auth.UserClaims{UserID: args[0], Email: args[1]})
			if err != nil {
				return err
			}
			cmd.Println(session)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("AUTH_JWT_SECRET"), "Session signing secret")
	cmd.Flags().StringVar(&issuer, "issuer", os.Getenv("AUTH_JWT_ISSUER"), "Session issuer")
	cmd.Flags().DurationVar(&lifetime, "ttl", time.Hour, "Session lifetime")

	return cmd
}
