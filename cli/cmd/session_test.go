package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

const signerHex = "0101010101010101010101010101010101010101010101010101010101010101"

func TestLoadSessionTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
delegated_signer: `+signerHex+`
duration: 24h
exposure_cap: 1000000
strategies: [lp_rebalance, liquidation_protect]
`), 0o600))

	tmpl, err := LoadSessionTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, signerHex, tmpl.DelegatedSigner.String())
	assert.Equal(t, 24*time.Hour, tmpl.Duration)
	assert.Equal(t, uint64(1000000), tmpl.ExposureCap)
	assert.Equal(t, []domain.ActionKind{domain.ActionLPRebalance, domain.ActionLiquidationProtect}, tmpl.Strategies)

	body, err := tmpl.body()
	require.NoError(t, err)
	assert.Equal(t, int64(86400), body.DurationSecs)

	data, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"delegated_signer": "`+signerHex+`",
		"duration_secs": 86400,
		"exposure_cap": 1000000,
		"strategies": ["lp_rebalance", "liquidation_protect"]
	}`, string(data))
}

func TestSessionTemplateValidation(t *testing.T) {
	signer, err := domain.ParseIdentity(signerHex)
	require.NoError(t, err)

	_, err = SessionTemplate{Duration: time.Hour}.body()
	assert.ErrorContains(t, err, "delegated_signer")

	_, err = SessionTemplate{DelegatedSigner: signer, Duration: 500 * time.Millisecond}.body()
	assert.ErrorContains(t, err, "duration")
}

func TestLoadSessionTemplateBadSigner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("delegated_signer: nothex\nduration: 1h\n"), 0o600))

	_, err := LoadSessionTemplate(path)
	assert.Error(t, err)
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, json.RawMessage(`{"exposure_cap":18446744073709551615}`)))
	assert.Equal(t, "{\n  \"exposure_cap\": 18446744073709551615\n}\n", buf.String())

	buf.Reset()
	require.NoError(t, printJSON(&buf, json.RawMessage(`not json`)))
	assert.Equal(t, "not json\n", buf.String())
}

func TestSessionPath(t *testing.T) {
	assert.Equal(t, "/v1/sessions/abc/delegate", sessionPath("abc", "/delegate"))
	assert.True(t, strings.HasPrefix(sessionPath("a/b", ""), "/v1/sessions/a%2Fb"))
}
