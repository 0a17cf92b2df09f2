package cmd

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/sessiongate/internal/auth"
	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

var (
	flagKeyOut   string
	flagTokenTTL time.Duration
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an Ed25519 identity",
	Long:  `Write a new Ed25519 seed as hex to --out and print its identity.`,
	RunE:  runKeygen,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token for the local key",
	RunE:  runToken,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the identity of the local key",
	RunE:  runWhoami,
}

func init() {
	keygenCmd.Flags().StringVar(&flagKeyOut, "out", "gatectl.key", "Key file to write")
	tokenCmd.Flags().DurationVar(&flagTokenTTL, "ttl", 0, "Token lifetime (default: profile token_ttl)")
	rootCmd.AddCommand(keygenCmd, tokenCmd, whoamiCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := WriteKey(flagKeyOut, priv); err != nil {
		return err
	}
	id, err := identityOf(priv)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Key:      %s\nIdentity: %s\n", flagKeyOut, id)
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	p, err := resolveProfile()
	if err != nil {
		return err
	}
	if flagTokenTTL > 0 {
		p.TokenTTL = flagTokenTTL
	}
	priv, err := ReadKey(p.KeyFile)
	if err != nil {
		return err
	}
	token, err := auth.Sign(priv, p.Audience, p.TokenTTL, time.Now())
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	p, err := resolveProfile()
	if err != nil {
		return err
	}
	priv, err := ReadKey(p.KeyFile)
	if err != nil {
		return err
	}
	id, err := identityOf(priv)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

// WriteKey stores the key's seed as hex, readable by the owner only.
func WriteKey(path string, priv ed25519.PrivateKey) error {
	data := hex.EncodeToString(priv.Seed()) + "\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	return nil
}

// ReadKey loads a key written by WriteKey.
func ReadKey(path string) (ed25519.PrivateKey, error) {
	if path == "" {
		return nil, fmt.Errorf("no key file configured, use --key or GATECTL_KEY")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode key %s: %w", path, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key %s: want %d byte seed, got %d", path, ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func identityOf(priv ed25519.PrivateKey) (domain.Identity, error) {
	return domain.IdentityFromPublicKey(priv.Public().(ed25519.PublicKey))
}
