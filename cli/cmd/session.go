package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

var (
	flagTemplate   string
	flagSigner     string
	flagDuration   time.Duration
	flagCap        uint64
	flagStrategies []string

	flagAfterTs int64
	flagTypes   []string
	flagLimit   int
)

// SessionTemplate is the YAML form of a create-session request.
type SessionTemplate struct {
	DelegatedSigner domain.Identity     `yaml:"delegated_signer"`
	Duration        time.Duration       `yaml:"duration"`
	ExposureCap     uint64              `yaml:"exposure_cap"`
	Strategies      []domain.ActionKind `yaml:"strategies"`
}

type createSessionBody struct {
	DelegatedSigner domain.Identity     `json:"delegated_signer"`
	DurationSecs    int64               `json:"duration_secs"`
	ExposureCap     uint64              `json:"exposure_cap"`
	Strategies      []domain.ActionKind `json:"strategies,omitempty"`
}

// LoadSessionTemplate reads a session template file.
func LoadSessionTemplate(path string) (SessionTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SessionTemplate{}, fmt.Errorf("read template: %w", err)
	}
	var t SessionTemplate
	if err := yaml.Unmarshal(data, &t); err != nil {
		return SessionTemplate{}, fmt.Errorf("parse template %s: %w", path, err)
	}
	return t, nil
}

func (t SessionTemplate) body() (createSessionBody, error) {
	if t.DelegatedSigner.IsZero() {
		return createSessionBody{}, fmt.Errorf("delegated_signer is required")
	}
	if t.Duration < time.Second {
		return createSessionBody{}, fmt.Errorf("duration must be at least 1s, got %s", t.Duration)
	}
	return createSessionBody{
		DelegatedSigner: t.DelegatedSigner,
		DurationSecs:    int64(t.Duration / time.Second),
		ExposureCap:     t.ExposureCap,
		Strategies:      t.Strategies,
	}, nil
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Create and manage sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a session owned by the local identity",
	Long: `Create a session from a YAML template (-f) or from flags. Flags override
template values.

Template:

  delegated_signer: <64 hex chars>
  duration: 24h
  exposure_cap: 1000000
  strategies: [lp_rebalance, yield_switch]`,
	Args: cobra.NoArgs,
	RunE: runSessionCreate,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions owned by the local identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionCall(cmd, http.MethodGet, "/v1/sessions", nil, nil)
	},
}

var sessionGetCmd = &cobra.Command{
	Use:   "get <session-id>",
	Short: "Show a session and its custody state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionCall(cmd, http.MethodGet, sessionPath(args[0], ""), nil, nil)
	},
}

var sessionDelegateCmd = &cobra.Command{
	Use:   "delegate <session-id>",
	Short: "Move custody of a session to the fast layer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionCall(cmd, http.MethodPost, sessionPath(args[0], "/delegate"), nil, nil)
	},
}

var sessionCheckpointCmd = &cobra.Command{
	Use:   "checkpoint <session-id>",
	Short: "Write the fast-layer copy back to the base layer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionCall(cmd, http.MethodPost, sessionPath(args[0], "/checkpoint"), nil, nil)
	},
}

var sessionUndelegateCmd = &cobra.Command{
	Use:   "undelegate <session-id>",
	Short: "Revoke a session and return custody to the base layer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionCall(cmd, http.MethodPost, sessionPath(args[0], "/undelegate"), nil, nil)
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events <session-id>",
	Short: "List the audit trail of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if flagAfterTs > 0 {
			q.Set("after_ts", strconv.FormatInt(flagAfterTs, 10))
		}
		if len(flagTypes) > 0 {
			q.Set("types", strings.Join(flagTypes, ","))
		}
		if flagLimit > 0 {
			q.Set("limit", strconv.Itoa(flagLimit))
		}
		return sessionCall(cmd, http.MethodGet, sessionPath(args[0], "/events"), q, nil)
	},
}

func init() {
	sessionCreateCmd.Flags().StringVarP(&flagTemplate, "file", "f", "", "Session template (YAML)")
	sessionCreateCmd.Flags().StringVar(&flagSigner, "signer", "", "Delegated signer identity (hex)")
	sessionCreateCmd.Flags().DurationVar(&flagDuration, "duration", 0, "Session lifetime")
	sessionCreateCmd.Flags().Uint64Var(&flagCap, "cap", 0, "Exposure cap")
	sessionCreateCmd.Flags().StringSliceVar(&flagStrategies, "strategies", nil, "Enabled strategies (lp_rebalance, yield_switch, liquidation_protect)")

	eventsCmd.Flags().Int64Var(&flagAfterTs, "after", 0, "Only events after this timestamp (ms)")
	eventsCmd.Flags().StringSliceVar(&flagTypes, "types", nil, "Only these event types")
	eventsCmd.Flags().IntVar(&flagLimit, "limit", 0, "Maximum number of events")

	sessionCmd.AddCommand(sessionCreateCmd, sessionListCmd, sessionGetCmd,
		sessionDelegateCmd, sessionCheckpointCmd, sessionUndelegateCmd)
	rootCmd.AddCommand(sessionCmd, eventsCmd)
}

func runSessionCreate(cmd *cobra.Command, args []string) error {
	var t SessionTemplate
	if flagTemplate != "" {
		loaded, err := LoadSessionTemplate(flagTemplate)
		if err != nil {
			return err
		}
		t = loaded
	}
	if flagSigner != "" {
		signer, err := domain.ParseIdentity(flagSigner)
		if err != nil {
			return fmt.Errorf("--signer: %w", err)
		}
		t.DelegatedSigner = signer
	}
	if flagDuration > 0 {
		t.Duration = flagDuration
	}
	if cmd.Flags().Changed("cap") {
		t.ExposureCap = flagCap
	}
	if len(flagStrategies) > 0 {
		t.Strategies = t.Strategies[:0]
		for _, s := range flagStrategies {
			kind, err := domain.ParseActionKind(s)
			if err != nil {
				return fmt.Errorf("--strategies: %w", err)
			}
			t.Strategies = append(t.Strategies, kind)
		}
	}

	body, err := t.body()
	if err != nil {
		return err
	}
	return sessionCall(cmd, http.MethodPost, "/v1/sessions", nil, body)
}

func sessionPath(id, suffix string) string {
	return "/v1/sessions/" + url.PathEscape(id) + suffix
}

// sessionCall performs one API call and prints the JSON response.
func sessionCall(cmd *cobra.Command, method, path string, query url.Values, body any) error {
	client, err := newClientFromFlags()
	if err != nil {
		return err
	}
	var out json.RawMessage
	if err := client.Do(cmd.Context(), method, path, query, body, &out); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		buf.Reset()
		buf.Write(raw)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
