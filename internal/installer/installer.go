package installer

import (
	"bytes"
	"fmt"
	"text/template"
)

// bootstrapScript is rendered for each account. The generated script is what
// an operator pipes into a shell on the target host to bring up a delegate
// agent pointing back at this orchestrator.
const bootstrapScript = `#!/usr/bin/env bash
set -euo pipefail

ORCHESTRATOR_URL="{{.OrchestratorURL}}"
ACCOUNT_ID="{{.AccountID}}"
ACCOUNT_KEY="{{.AccountKey}}"
INSTALL_DIR="${DELEGATE_INSTALL_DIR:-/opt/fleetmaster-delegate}"

echo "Installing fleetmaster delegate agent for account ${ACCOUNT_ID}"
mkdir -p "${INSTALL_DIR}"

cat > "${INSTALL_DIR}/agent.yaml" <<EOF
agent:
  accountId: "${ACCOUNT_ID}"
  accountKey: "${ACCOUNT_KEY}"
  orchestratorAddress: "${ORCHESTRATOR_URL}"
  pollIntervalSeconds: {{.PollIntervalSeconds}}
  maxParallelTasks: {{.MaxParallelTasks}}
EOF

curl -fsSL "${ORCHESTRATOR_URL}/downloads/delegate_agent" -o "${INSTALL_DIR}/delegate_agent"
chmod +x "${INSTALL_DIR}/delegate_agent"

echo "Starting delegate agent..."
nohup "${INSTALL_DIR}/delegate_agent" --config "${INSTALL_DIR}/agent.yaml" >> "${INSTALL_DIR}/agent.log" 2>&1 &
echo "Delegate agent started. Logs: ${INSTALL_DIR}/agent.log"
`

var scriptTemplate = template.Must(template.New("bootstrap").Parse(bootstrapScript))

// ScriptParams carries the per-account values rendered into the bootstrap script.
type ScriptParams struct {
	OrchestratorURL     string
	AccountID           string
	AccountKey          string
	PollIntervalSeconds int
	MaxParallelTasks    int
}

// RenderScript renders the delegate bootstrap script for the given account.
func RenderScript(params ScriptParams) (string, error) {
	if params.AccountID == "" {
		return "", fmt.Errorf("accountId is required to render the installer script")
	}
	if params.OrchestratorURL == "" {
		return "", fmt.Errorf("orchestrator URL is required to render the installer script")
	}
	if params.PollIntervalSeconds <= 0 {
		params.PollIntervalSeconds = 5
	}
	if params.MaxParallelTasks <= 0 {
		params.MaxParallelTasks = 4
	}

	var buf bytes.Buffer
	if err := scriptTemplate.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("failed to render installer script: %w", err)
	}
	return buf.String(), nil
}
