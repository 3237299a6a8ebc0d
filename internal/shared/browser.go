package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

// browserCommand returns the command that opens url in the desktop's default browser.
func browserCommand(goos, url string) (*exec.Cmd, error) {
	switch goos {
	case "darwin":
		return exec.Command("open", url), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", url), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}

// OpenBrowser opens the default system browser to the specified URL, used for the OAuth2 consent page.
func OpenBrowser(url string) error {
	cmd, err := browserCommand(getRuntime(), url)
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}

// RunAppleScript runs an AppleScript snippet through osascript and returns its combined output.
func RunAppleScript(script string) (string, error) {
	if rt := getRuntime(); rt != "darwin" {
		return "", fmt.Errorf("%w: AppleScript requires macOS, running on %s", ErrServiceUnavailable, rt)
	}

	out, err := exec.Command("osascript", "-e", script).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("osascript failed: %w: %s", err, out)
	}
	return string(out), nil
}
