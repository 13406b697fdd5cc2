// Package allowedcmd wraps access to exec.Cmd in order to consolidate path lookup logic.
// We use hardcoded (known, safe) paths to the diagnostic tools netcheck shells out to,
// but make an exception to allow for looking up executable locations when it's not
// possible to know these locations in advance -- e.g. on NixOS, we cannot know the
// specific store path ahead of time. All usage of exec.Cmd in netcheck should use
// this package.
package allowedcmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
)

var ErrCommandNotFound = errors.New("command not found")

// AllowedCommand builds a command for one allowlisted executable. The functions in
// this package (Ip, Ping, ...) all satisfy it, which lets callers swap them out in tests.
type AllowedCommand func(ctx context.Context, arg ...string) (*exec.Cmd, error)

func newCmd(ctx context.Context, fullPathToCmd string, arg ...string) *exec.Cmd {
	return exec.CommandContext(ctx, fullPathToCmd, arg...) //nolint:forbidigo // This is our approved usage of exec.CommandContext
}

func validatedCommand(ctx context.Context, knownPath string, arg ...string) (*exec.Cmd, error) {
	knownPath = filepath.Clean(knownPath)

	if _, err := os.Stat(knownPath); err == nil {
		return newCmd(ctx, knownPath, arg...), nil
	}

	// Not found at known location -- return error unless we're somewhere
	// that we cannot know the location in advance.
	if !allowSearchPath() {
		return nil, fmt.Errorf("%w: not found at %s", ErrCommandNotFound, knownPath)
	}

	cmdName := filepath.Base(knownPath)
	if foundPath, err := exec.LookPath(cmdName); err == nil {
		return newCmd(ctx, foundPath, arg...), nil
	}

	return nil, fmt.Errorf("%w: not found at %s and could not be located elsewhere", ErrCommandNotFound, knownPath)
}

// firstValidatedCommand tries each of the known paths in order, for tools that
// distros install in different places.
func firstValidatedCommand(ctx context.Context, knownPaths []string, arg ...string) (*exec.Cmd, error) {
	for _, p := range knownPaths {
		validatedCmd, err := validatedCommand(ctx, p, arg...)
		if err != nil {
			continue
		}

		return validatedCmd, nil
	}

	if len(knownPaths) == 0 {
		return nil, ErrCommandNotFound
	}

	return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, filepath.Base(knownPaths[0]))
}

func unsupported(name string) AllowedCommand {
	return func(_ context.Context, _ ...string) (*exec.Cmd, error) {
		return nil, fmt.Errorf("%w: %s is not available on this platform", ErrCommandNotFound, name)
	}
}

func allowSearchPath() bool {
	return IsNixOS()
}

// Save results of lookup so we don't have to stat for /etc/NIXOS every time
// we want to know.
var (
	checkedIsNixOS = &atomic.Bool{}
	isNixOS        = &atomic.Bool{}
)

func IsNixOS() bool {
	if checkedIsNixOS.Load() {
		return isNixOS.Load()
	}

	if _, err := os.Stat("/etc/NIXOS"); err == nil {
		isNixOS.Store(true)
	}

	checkedIsNixOS.Store(true)
	return isNixOS.Load()
}
