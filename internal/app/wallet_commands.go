package app

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
	"github.com/ggonzalez94/custody-cli/internal/keystore"
	"github.com/ggonzalez94/custody-cli/internal/model"
	"github.com/ggonzalez94/custody-cli/internal/signer"
)

func (s *runtimeState) newWalletCommand() *cobra.Command {
	root := &cobra.Command{Use: "wallet", Short: "Wallet keystore management"}
	root.AddCommand(s.newWalletCreateCommand())
	root.AddCommand(s.newWalletImportCommand())
	root.AddCommand(s.newWalletListCommand())
	root.AddCommand(s.newWalletDeleteCommand())
	root.AddCommand(s.newWalletPasswdCommand())
	root.AddCommand(s.newWalletProofCommand())
	return root
}

func (s *runtimeState) newWalletCreateCommand() *cobra.Command {
	var label, password string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate a new wallet key under a label",
		RunE: func(cmd *cobra.Command, args []string) error {
			wallets, err := s.openKeystore()
			if err != nil {
				return err
			}
			wallet, err := wallets.Create(label, password)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), walletInfo(wallet), nil, false)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Wallet label")
	cmd.Flags().StringVar(&password, "password", "", "Encryption password")
	_ = cmd.MarkFlagRequired("label")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (s *runtimeState) newWalletImportCommand() *cobra.Command {
	var label, password, secret, secretFile string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a private key or seed phrase under a label",
		RunE: func(cmd *cobra.Command, args []string) error {
			material := secret
			if material == "" && secretFile != "" {
				buf, err := os.ReadFile(secretFile)
				if err != nil {
					return clierr.Wrap(clierr.CodeUsage, "read secret file", err)
				}
				material = string(buf)
			}
			if material == "" {
				return clierr.New(clierr.CodeUsage, "--secret or --secret-file is required")
			}
			wallets, err := s.openKeystore()
			if err != nil {
				return err
			}
			wallet, err := wallets.Import(label, material, password)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), walletInfo(wallet), nil, false)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Wallet label")
	cmd.Flags().StringVar(&password, "password", "", "Encryption password")
	cmd.Flags().StringVar(&secret, "secret", "", "Hex private key or BIP-39 seed phrase")
	cmd.Flags().StringVar(&secretFile, "secret-file", "", "File containing the secret")
	_ = cmd.MarkFlagRequired("label")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (s *runtimeState) newWalletListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored wallets (no decryption)",
		RunE: func(cmd *cobra.Command, args []string) error {
			wallets, err := s.openKeystore()
			if err != nil {
				return err
			}
			items, err := wallets.List()
			if err != nil {
				return err
			}
			infos := make([]model.WalletInfo, 0, len(items))
			for _, w := range items {
				infos = append(infos, walletInfo(w))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), infos, nil, false)
		},
	}
	return cmd
}

func (s *runtimeState) newWalletDeleteCommand() *cobra.Command {
	var label string
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a wallet entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return clierr.New(clierr.CodeSafetyGate, "deleting a wallet is irreversible, pass --yes to confirm")
			}
			wallets, err := s.openKeystore()
			if err != nil {
				return err
			}
			if err := wallets.Delete(label); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]any{"label": label, "deleted": true}, nil, false)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Wallet label")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}

func (s *runtimeState) newWalletPasswdCommand() *cobra.Command {
	var label, oldPassword, newPassword string
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Re-encrypt a wallet under a new password",
		RunE: func(cmd *cobra.Command, args []string) error {
			wallets, err := s.openKeystore()
			if err != nil {
				return err
			}
			if err := wallets.ChangePassword(label, oldPassword, newPassword); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]any{"label": label, "password_changed": true}, nil, false)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Wallet label")
	cmd.Flags().StringVar(&oldPassword, "old-password", "", "Current password")
	cmd.Flags().StringVar(&newPassword, "new-password", "", "New password")
	_ = cmd.MarkFlagRequired("label")
	_ = cmd.MarkFlagRequired("old-password")
	_ = cmd.MarkFlagRequired("new-password")
	return cmd
}

func (s *runtimeState) newWalletProofCommand() *cobra.Command {
	var label, password, domain, nonce, verifyFile string
	cmd := &cobra.Command{
		Use:   "proof",
		Short: "Build or verify a domain authentication proof",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verifyFile != "" {
				return s.verifyProofFile(cmd, verifyFile)
			}
			if label == "" {
				return clierr.New(clierr.CodeUsage, "--wallet is required to build a proof")
			}
			wallets, err := s.openKeystore()
			if err != nil {
				return err
			}
			wallet, err := wallets.Get(label)
			if err != nil {
				return err
			}

			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			state, err := s.client.WalletState(ctx, wallet.Address)
			if err != nil {
				return err
			}

			var proof signer.AuthProof
			err = wallets.Unlock(label, password, func(key *keystore.UnlockedKey) error {
				var buildErr error
				proof, buildErr = signer.BuildAuthProof(key, domain, nonce, state.Deployed)
				return buildErr
			})
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), proof, nil, false)
		},
	}
	cmd.Flags().StringVar(&label, "wallet", "", "Wallet label")
	cmd.Flags().StringVar(&password, "password", "", "Wallet password")
	cmd.Flags().StringVar(&domain, "domain", "", "Requesting domain")
	cmd.Flags().StringVar(&nonce, "nonce", "", "Server-issued nonce")
	cmd.Flags().StringVar(&verifyFile, "verify", "", "Verify a proof JSON file instead of building one ('-' for stdin)")
	return cmd
}

func (s *runtimeState) verifyProofFile(cmd *cobra.Command, path string) error {
	var buf []byte
	var err error
	if path == "-" {
		buf, err = io.ReadAll(cmd.InOrStdin())
	} else {
		buf, err = os.ReadFile(path)
	}
	if err != nil {
		return clierr.Wrap(clierr.CodeUsage, "read proof", err)
	}
	var proof signer.AuthProof
	if err := json.Unmarshal(buf, &proof); err != nil {
		return clierr.Wrap(clierr.CodeValidation, "decode proof JSON", err)
	}
	if err := signer.VerifyProof(proof); err != nil {
		return err
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]any{
		"valid":   true,
		"address": proof.Address,
		"domain":  proof.Domain,
	}, nil, false)
}

func walletInfo(w keystore.Wallet) model.WalletInfo {
	return model.WalletInfo{Label: w.Label, Address: w.Address, CreatedAt: w.CreatedAt}
}
