// Package browser opens the authorization URL in the user's browser.
package browser

import (
	"errors"
	"fmt"
	"io"

	"github.com/pkg/browser"
)

// ErrLaunchFailed means the system browser could not be started.
var ErrLaunchFailed = errors.New("failed to open browser")

// Opener shows a URL to the user.
type Opener interface {
	Open(url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(url string) error

func (f OpenerFunc) Open(url string) error {
	return f(url)
}

// System opens URLs with the platform's default browser.
type System struct{}

func init() {
	// xdg-open and friends print to the terminal otherwise.
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
}

func (System) Open(url string) error {
	if err := browser.OpenURL(url); err != nil {
		return fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}
	return nil
}

// Printer writes the URL for the user to open by hand, for headless hosts.
type Printer struct {
	W io.Writer
}

func (p Printer) Open(url string) error {
	_, err := fmt.Fprintf(p.W, "Open the following URL in your browser to sign in:\n\n  %s\n\n", url)
	return err
}

// Fallback tries Primary and, when it fails, shows the URL with Secondary.
type Fallback struct {
	Primary   Opener
	Secondary Opener
}

func (f Fallback) Open(url string) error {
	err := f.Primary.Open(url)
	if err == nil {
		return nil
	}
	if secErr := f.Secondary.Open(url); secErr != nil {
		return errors.Join(err, secErr)
	}
	return nil
}
