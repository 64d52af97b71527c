//go:build !windows

package process

import (
	"context"
	"strconv"

	gops "github.com/shirou/gopsutil/v3/process"
)

func (c *Controller) findOnPort(ctx context.Context, port int) ([]Info, error) {
	out, err := c.runner.Run(ctx, "lsof", "-nP", "-iTCP:"+strconv.Itoa(port), "-sTCP:LISTEN", "-Fpc")
	if err != nil {
		// lsof exits 1 when nothing matches.
		if exitCode(err) == 1 && len(out) == 0 {
			return nil, nil
		}
		return nil, err
	}
	return parseLsof(out), nil
}

func (c *Controller) signal(ctx context.Context, pid int, force bool) error {
	p, err := gops.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return err
	}
	if force {
		return p.KillWithContext(ctx)
	}
	return p.TerminateWithContext(ctx)
}
