// Package prompt wraps promptui for the querysync CLI's interactive
// bits: `invalidate`'s destructive-action confirmations and `config
// init --interactive`'s backend setup.
package prompt

import (
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
)

// Confirm asks a plain y/n question, used by ConfirmWithForce.
// Returns ErrAborted on Ctrl+C.
func Confirm(label string, defaultYes bool) (bool, error) {
	defaultStr := "y/N"
	if defaultYes {
		defaultStr = "Y/n"
	}

	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("%s [%s]", label, defaultStr),
		IsConfirm: true,
		Default:   "",
	}

	result, err := prompt.Run()
	if err != nil {
		// Ctrl+C should abort
		if err == promptui.ErrInterrupt {
			return false, ErrAborted
		}
		// promptui returns ErrAbort for "n" response
		if err == promptui.ErrAbort {
			return false, nil
		}
		// Empty input uses default
		if result == "" {
			return defaultYes, nil
		}
		return false, err
	}

	return strings.ToLower(result) == "y" || strings.ToLower(result) == "yes", nil
}

// ConfirmDanger requires typing confirmWord verbatim before proceeding,
// the bar `invalidate` (no --prefix, no --force) sets for wiping the
// whole cache rather than a y/n answer.
func ConfirmDanger(label, confirmWord string) (bool, error) {
	prompt := promptui.Prompt{
		Label: fmt.Sprintf("%s (type '%s' to confirm)", label, confirmWord),
		Validate: func(input string) error {
			if input != confirmWord {
				return fmt.Errorf("type '%s' to confirm", confirmWord)
			}
			return nil
		},
	}

	result, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			return false, ErrAborted
		}
		if err == promptui.ErrAbort {
			return false, nil
		}
		return false, err
	}

	return result == confirmWord, nil
}

// ConfirmWithForce short-circuits to true when force is set (a command's
// --force flag), otherwise falls back to Confirm.
func ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return Confirm(label, false)
}
