package location

import (
	"context"
	"errors"
	"os"
)

// Permission gates access to the device position.
type Permission interface {
	// Request asks for access. It may block on user action.
	Request(ctx context.Context) (bool, error)

	// Granted reports the current grant without prompting.
	Granted(ctx context.Context) bool
}

// StaticPermission is a fixed grant decided by configuration.
type StaticPermission bool

// Request implements Permission.
func (p StaticPermission) Request(context.Context) (bool, error) { return bool(p), nil }

// Granted implements Permission.
func (p StaticPermission) Granted(context.Context) bool { return bool(p) }

// ConsentFilePermission is granted while a consent marker file exists.
// The driver grants access by creating the file and revokes it by removing it.
type ConsentFilePermission struct {
	Path string
}

// Request implements Permission.
func (p ConsentFilePermission) Request(ctx context.Context) (bool, error) {
	_, err := os.Stat(p.Path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Granted implements Permission.
func (p ConsentFilePermission) Granted(ctx context.Context) bool {
	ok, _ := p.Request(ctx)
	return ok
}
