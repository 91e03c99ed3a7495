//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.tunnelprefs.app"

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tunnelprefs-data"
	}
	return filepath.Join(home, "Library", "Application Support", "tunnelprefs")
}

func newPlatformBackend() ConfigBackend {
	return &defaultsBackend{domain: defaultsDomain, run: runDefaults}
}

// defaultsBackend stores config in the user defaults database through the
// `defaults` tool. run is swappable so the argument handling can be tested
// without touching the real database.
type defaultsBackend struct {
	domain string
	run    func(args ...string) (string, error)
}

// errNoSuchKey is what runDefaults reports when `defaults` exits 1, which it
// does for a key or domain that does not exist.
var errNoSuchKey = errors.New("no such key")

func runDefaults(args ...string) (string, error) {
	out, err := exec.Command("defaults", args...).CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", errNoSuchKey
		}
		return "", fmt.Errorf("defaults %s: %w (%s)", args[0], err, text)
	}
	return text, nil
}

func (b *defaultsBackend) GetString(key string) (string, bool, error) {
	v, err := b.run("read", b.domain, key)
	if errors.Is(err, errNoSuchKey) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return v, true, nil
}

func (b *defaultsBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return i, true, nil
}

func (b *defaultsBackend) SetString(key, val string) error {
	_, err := b.run("write", b.domain, key, "-string", val)
	return err
}

func (b *defaultsBackend) SetInt(key string, val int) error {
	_, err := b.run("write", b.domain, key, "-int", strconv.Itoa(val))
	return err
}

// Delete treats a key that is already gone as deleted.
func (b *defaultsBackend) Delete(key string) error {
	_, err := b.run("delete", b.domain, key)
	if errors.Is(err, errNoSuchKey) {
		return nil
	}
	return err
}
