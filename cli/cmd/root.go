package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Flags
	flagURL      string
	flagKey      string
	flagToken    string
	flagAudience string
	flagConfig   string
)

var rootCmd = &cobra.Command{
	Use:   "gatectl",
	Short: "sessiongate command line client",
	Long: `gatectl creates and manages delegated sessions on a sessiongate server.
Requests are authenticated with a short-lived token signed by the local
Ed25519 key, or with an explicit --token.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "Gateway base URL (env: GATECTL_URL)")
	rootCmd.PersistentFlags().StringVar(&flagKey, "key", "", "Path to the Ed25519 key file (env: GATECTL_KEY)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "Bearer token, overrides --key (env: GATECTL_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&flagAudience, "audience", "", "Token audience (default: sessiongate)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Profile file path (default: ~/.gatectl.yaml)")
}

// Execute runs the root command.
func Execute(version string) {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("gatectl %s\n", version))
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveProfile merges the profile file, the environment and the flags,
// in increasing precedence.
func resolveProfile() (Profile, error) {
	path := flagConfig
	if path == "" {
		path = defaultProfilePath()
	}
	p, err := LoadProfile(path)
	if err != nil {
		return Profile{}, err
	}
	p.override(Profile{
		URL:      os.Getenv("GATECTL_URL"),
		KeyFile:  os.Getenv("GATECTL_KEY"),
		Token:    os.Getenv("GATECTL_TOKEN"),
		Audience: os.Getenv("GATECTL_AUDIENCE"),
	})
	p.override(Profile{
		URL:      flagURL,
		KeyFile:  flagKey,
		Token:    flagToken,
		Audience: flagAudience,
	})
	return p, nil
}

// newClientFromFlags builds an API client for the resolved profile.
func newClientFromFlags() (*Client, error) {
	p, err := resolveProfile()
	if err != nil {
		return nil, err
	}
	return NewClient(p)
}
