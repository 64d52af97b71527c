//go:build windows

package process

import (
	"context"
	"strconv"
)

func (c *Controller) findOnPort(ctx context.Context, port int) ([]Info, error) {
	out, err := c.runner.Run(ctx, "netstat", "-ano", "-p", "TCP")
	if err != nil {
		return nil, err
	}
	return parseNetstat(out, port), nil
}

// signal uses taskkill; without /F Windows asks the process to close.
func (c *Controller) signal(ctx context.Context, pid int, force bool) error {
	args := []string{"/PID", strconv.Itoa(pid)}
	if force {
		args = append(args, "/F")
	}
	_, err := c.runner.Run(ctx, "taskkill", args...)
	return err
}
