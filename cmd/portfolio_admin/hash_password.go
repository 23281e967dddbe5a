package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/portfolio-admin/internal/config"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
	Long:  "Hashes the given password, or the first line of stdin when no argument is given, using BCRYPT_COST and PASSWORD_PEPPER.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHashPassword,
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	passwords, err := config.NewPasswordConfig()
	if err != nil {
		return err
	}
	return hashPassword(passwords, args, cmd.InOrStdin(), cmd.OutOrStdout())
}

func hashPassword(passwords *config.PasswordConfig, args []string, in io.Reader, out io.Writer) error {
	var plain string
	if len(args) == 1 {
		plain = args[0]
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read password: %w", err)
		}
		plain = strings.TrimRight(line, "\r\n")
	}

	hash, err := passwords.HashPassword(plain)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
