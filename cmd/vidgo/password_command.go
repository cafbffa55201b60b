package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"vidgo/internal/config"
	"vidgo/internal/queue"
)

func newResetRootPasswordCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-root-password",
		Short: "Set the root password used by the web interface",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := promptNewPassword(cmd)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				salt, hash, err := hashPassword(password)
				if err != nil {
					return err
				}
				if err := store.SettingSet(cmd.Context(), queue.SettingRootPasswordSalt, salt); err != nil {
					return err
				}
				if err := store.SettingSet(cmd.Context(), queue.SettingRootPasswordHash, hash); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "root password updated")
				return nil
			})
		},
	}
}

func promptNewPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("reset-root-password needs an interactive terminal")
	}

	fmt.Fprint(cmd.OutOrStdout(), "New password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", err
	}
	fmt.Fprint(cmd.OutOrStdout(), "Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	if err := validatePassword(string(first)); err != nil {
		return "", err
	}
	return string(first), nil
}

// validatePassword enforces the minimum complexity: eight characters with
// at least one digit, one lowercase, and one uppercase letter.
func validatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	var hasDigit, hasLower, hasUpper bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
	}
	if !hasDigit || !hasLower || !hasUpper {
		return errors.New("password needs a digit, a lowercase, and an uppercase letter")
	}
	return nil
}

// hashPassword returns a fresh hex salt and the salted SHA-256 digest.
func hashPassword(password string) (salt, hash string, err error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	salt = hex.EncodeToString(raw)
	sum := sha256.Sum256([]byte(salt + password))
	return salt, hex.EncodeToString(sum[:]), nil
}
