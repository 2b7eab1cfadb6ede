//go:build !unix

package supervisor

import (
	"os"
	"syscall"

	"github.com/wagiedev/daemonlink-go/internal/config"
)

// sysProcAttr ignores Credential: privilege drop needs a unix target.
func sysProcAttr(_ *config.Options) *syscall.SysProcAttr {
	return nil
}

// terminate kills the process; there is no graceful signal to send.
func terminate(p *os.Process) error {
	return p.Kill()
}
