// gatectl is the command line client for sessiongate.
//
// Usage:
//
//	gatectl keygen --out owner.key              # new Ed25519 identity
//	gatectl session create -f session.yaml      # create a session from a template
//	gatectl session delegate <id>               # hand custody to the fast layer
//	gatectl swap <id> --pool <hex> --amount-in 100 --min-out 95
//	gatectl watch <id>                          # stream events and alerts
package main

import "github.com/xiaot623/gogo/sessiongate/cli/cmd"

var version = "dev"

func main() {
	cmd.Execute(version)
}
