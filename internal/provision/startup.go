package provision

import (
	"fmt"
	"strings"

	"github.com/avkline/enginevm/internal/domain"
)

// renderStartupScript assembles the boot-time action: install the engine
// (an opaque, configured command), then install and arm the guard when a
// lifetime is set. The script runs once, as root, at first boot.
func renderStartupScript(spec domain.InstanceSpec, opts CreateOptions) string {
	var b strings.Builder

	b.WriteString("#!/bin/bash\n")
	b.WriteString("set -euo pipefail\n")

	if opts.InstallCommand != "" {
		b.WriteString("\n# engine installation (configured)\n")
		b.WriteString(opts.InstallCommand)
		b.WriteString("\n")
	}

	if spec.MaxLifetime > 0 {
		b.WriteString("\n# self-termination guard\n")
		fmt.Fprintf(&b, "curl -fsSL -o /usr/local/bin/enginevm-guard '%s'\n", opts.GuardURL)
		b.WriteString("chmod +x /usr/local/bin/enginevm-guard\n")
		fmt.Fprintf(&b, "ENGINEVM_LIFETIME=%s nohup /usr/local/bin/enginevm-guard >/dev/null 2>&1 &\n", spec.MaxLifetime.String())
	}

	return b.String()
}
