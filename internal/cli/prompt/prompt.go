// Package prompt provides interactive terminal prompts for CLI commands.
package prompt

import (
	"errors"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user aborts a prompt (Ctrl+C).
var ErrAborted = errors.New("aborted")

// IsAborted reports whether err means the user aborted.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, ErrAborted)
}

func wrapError(err error) error {
	if err != nil && IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Input prompts for text with a default value. validate may be nil.
func Input(label, defaultValue string, validate func(string) error) (string, error) {
	p := promptui.Prompt{
		Label:    label,
		Default:  defaultValue,
		Validate: validate,
	}
	result, err := p.Run()
	return result, wrapError(err)
}

// Confirm asks a yes/no question. Empty input selects defaultYes.
func Confirm(label string, defaultYes bool) (bool, error) {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}

	p := promptui.Prompt{
		Label:     label + " [" + hint + "]",
		IsConfirm: true,
	}

	result, err := p.Run()
	if err != nil {
		switch {
		case errors.Is(err, promptui.ErrInterrupt):
			return false, ErrAborted
		case result == "":
			return defaultYes, nil
		case errors.Is(err, promptui.ErrAbort):
			// promptui reports "n" as ErrAbort.
			return false, nil
		}
		return false, err
	}

	answer := strings.ToLower(result)
	return answer == "y" || answer == "yes", nil
}
