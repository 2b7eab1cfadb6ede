//go:build unix

package supervisor

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/wagiedev/daemonlink-go/internal/config"
)

// sysProcAttr applies the configured process identity.
func sysProcAttr(opts *config.Options) *syscall.SysProcAttr {
	if opts.Credential == nil {
		return nil
	}

	return &syscall.SysProcAttr{
		Credential: &syscall.Credential{
			Uid: opts.Credential.UID,
			Gid: opts.Credential.GID,
		},
	}
}

// terminate asks the process to exit gracefully.
func terminate(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}
