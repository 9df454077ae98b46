// Package util maps core errors to process exit codes for the command line.
package util

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vault-cli/ciphora/internal/domain"
	"github.com/vault-cli/ciphora/internal/store"
)

// Exit codes
const (
	ExitOK           = 0
	ExitError        = 1
	ExitInvalidInput = 2
	ExitVaultLocked  = 3
	ExitIntegrityErr = 4
	ExitAuthFailed   = 5
	ExitMFARequired  = 6
	ExitNotFound     = 7
	ExitState        = 8
)

// ExitCode returns the exit code for err.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, store.ErrVaultLocked):
		return ExitVaultLocked
	case errors.Is(err, domain.ErrAuthentication), errors.Is(err, domain.ErrMFAInvalid):
		return ExitAuthFailed
	case errors.Is(err, domain.ErrMFARequired):
		return ExitMFARequired
	case errors.Is(err, domain.ErrIntegrity), errors.Is(err, domain.ErrFormat):
		return ExitIntegrityErr
	case errors.Is(err, domain.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, domain.ErrValidation):
		return ExitInvalidInput
	case errors.Is(err, domain.ErrState):
		return ExitState
	default:
		return ExitError
	}
}

// hint returns a follow-up suggestion for err, if any.
func hint(err error) string {
	switch {
	case errors.Is(err, store.ErrNotInitialized):
		return "Run 'ciphora init' to create a vault."
	case errors.Is(err, domain.ErrMFARequired):
		return "Pass the authenticator code or a backup code with --mfa."
	case errors.Is(err, store.ErrVaultLocked):
		return "Another ciphora process is using the vault."
	case errors.Is(err, domain.ErrIntegrity):
		return "The data could not be authenticated: wrong key or password, or the file was modified."
	}
	return ""
}

// ExitWithCode exits the program with the specified code and message
func ExitWithCode(code int, format string, args ...interface{}) {
	if format != "" {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	os.Exit(code)
}

// PrintError writes err and a hint for it to w and returns its exit code.
func PrintError(w io.Writer, err error) int {
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	if h := hint(err); h != "" {
		fmt.Fprintln(w, h)
	}
	return ExitCode(err)
}

// HandleError prints err and exits with its mapped code. It returns when
// err is nil.
func HandleError(err error) {
	if err == nil {
		return
	}
	os.Exit(PrintError(os.Stderr, err))
}
