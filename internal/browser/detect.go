package browser

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// pathNames are looked up in PATH when no well-known location matches.
var pathNames = []string{"google-chrome", "chrome", "chromium", "chromium-browser"}

// Resolve returns the executable to drive. An explicit execPath must exist;
// an empty one triggers auto-detection. ErrBrowserNotFound is returned when
// nothing usable is found.
func Resolve(execPath string) (string, error) {
	if execPath != "" {
		if _, err := os.Stat(execPath); err == nil {
			return execPath, nil
		}
		if p, err := exec.LookPath(execPath); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("%w: %s", ErrBrowserNotFound, execPath)
	}
	if p := DetectBrowser(); p != "" {
		return p, nil
	}
	return "", ErrBrowserNotFound
}

// DetectBrowser attempts to find a Chrome/Chromium executable on the system.
// Returns the path to the executable, or empty string if not found.
func DetectBrowser() string {
	for _, path := range candidates(runtime.GOOS) {
		if path == "" {
			continue
		}
		expanded := os.ExpandEnv(path)
		if _, err := os.Stat(expanded); err == nil {
			return expanded
		}
	}

	for _, name := range pathNames {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// candidates lists well-known install locations, Chrome first, then
// Chromium and Edge.
func candidates(goos string) []string {
	switch goos {
	case "windows":
		programFiles := os.Getenv("ProgramFiles")
		programFilesX86 := os.Getenv("ProgramFiles(x86)")
		localAppData := os.Getenv("LOCALAPPDATA")
		return []string{
			filepath.Join(programFiles, "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(programFilesX86, "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(localAppData, "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(programFiles, "Chromium", "Application", "chrome.exe"),
			filepath.Join(localAppData, "Chromium", "Application", "chrome.exe"),
			filepath.Join(programFiles, "Microsoft", "Edge", "Application", "msedge.exe"),
			filepath.Join(programFilesX86, "Microsoft", "Edge", "Application", "msedge.exe"),
		}
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"$HOME/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		}
	default:
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
			"/usr/bin/microsoft-edge-stable",
		}
	}
}

// DefaultProfilePath returns a dedicated profile directory so runs never
// share state with the user's everyday browser.
func DefaultProfilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(homeDir, ".statsheet-downloader-profile")
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", "statsheet-downloader-profile")
	default:
		return filepath.Join(homeDir, ".config", "statsheet-downloader", "profile")
	}
}
