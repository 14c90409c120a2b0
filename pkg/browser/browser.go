// Package browser opens URLs in the user's browser.
package browser

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// ErrNoBrowser is returned when the host has no way to show a URL.
// Callers fall back to printing it.
var ErrNoBrowser = errors.New("no browser available")

// Open opens the specified URL in the default browser without waiting for it.
func Open(url string) error {
	name, args, err := command(runtime.GOOS, url, os.Getenv, isWSL)
	if err != nil {
		return err
	}
	return exec.Command(name, args...).Start()
}

// command picks the launcher for goos. $BROWSER wins everywhere.
func command(goos, url string, getenv func(string) string, wsl func() bool) (string, []string, error) {
	if b := strings.TrimSpace(getenv("BROWSER")); b != "" {
		return b, []string{url}, nil
	}

	switch goos {
	case "darwin":
		return "open", []string{url}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	case "linux":
		if wsl() {
			// The Windows side opens it; the Linux side usually has no display.
			return "cmd.exe", []string{"/c", "start", "", strings.ReplaceAll(url, "&", "^&")}, nil
		}
		if getenv("DISPLAY") == "" && getenv("WAYLAND_DISPLAY") == "" {
			return "", nil, ErrNoBrowser
		}
		return "xdg-open", []string{url}, nil
	default:
		return "", nil, ErrNoBrowser
	}
}

func isWSL() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	version := strings.ToLower(string(data))
	return strings.Contains(version, "microsoft") || strings.Contains(version, "wsl")
}
