package cli

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// openURL opens target in the default browser. Tests replace it.
var openURL = openBrowser

func openBrowser(ctx context.Context, target string) error {
	var name string

	var args []string

	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler"}
	default:
		name = "xdg-open"
	}

	cmd := exec.CommandContext(ctx, name, append(args, target)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", name, err)
	}

	// The browser outlives us; reap the launcher in the background.
	go func() { _ = cmd.Wait() }()

	return nil
}
