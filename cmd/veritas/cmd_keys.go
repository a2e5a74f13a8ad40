package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/veritas/config"
	"github.com/shashiranjanraj/veritas/internal/provenance"
	"github.com/shashiranjanraj/veritas/internal/server"
	"github.com/shashiranjanraj/veritas/pkg/crypt"
)

// loadKeyringFile opens the encrypted keyring, or an empty one when the
// file does not exist yet.
func loadKeyringFile() (*provenance.Keyring, error) {
	if err := config.Load(); err != nil {
		return nil, err
	}

	kr := provenance.NewKeyring()
	data, err := os.ReadFile(config.KeyringPath())
	if errors.Is(err, os.ErrNotExist) {
		return kr, nil
	}
	if err != nil {
		return nil, err
	}

	plain, err := crypt.DecryptBytes(string(data))
	if err != nil {
		return nil, fmt.Errorf("decrypt keyring: %w", err)
	}
	if err := kr.Import(plain); err != nil {
		return nil, err
	}
	return kr, nil
}

// veritas key:generate
var keyGenerateCmd = &cobra.Command{
	Use:   "key:generate",
	Short: "Generate a new signing key and store it in the encrypted keyring",
	RunE: func(cmd *cobra.Command, args []string) error {
		kr, err := loadKeyringFile()
		if err != nil {
			return err
		}

		addr, err := kr.Generate()
		if err != nil {
			return err
		}
		if err := server.SaveKeyring(kr); err != nil {
			return err
		}

		fmt.Printf("Generated signing key.\nAddress: %s\nKeyring: %s\n", addr, config.KeyringPath())
		return nil
	},
}

// veritas key:list
var keyListCmd = &cobra.Command{
	Use:   "key:list",
	Short: "List the addresses in the keyring",
	RunE: func(cmd *cobra.Command, args []string) error {
		kr, err := loadKeyringFile()
		if err != nil {
			return err
		}

		addrs := kr.Addresses()
		if len(addrs) == 0 {
			fmt.Println("Keyring is empty. Run: veritas key:generate")
			return nil
		}
		for _, a := range addrs {
			fmt.Println(a)
		}
		return nil
	},
}
