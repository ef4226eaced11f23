// Command op-wallet manages auction daemon wallet accounts: it generates
// BIP-39 recovery mnemonics, derives accounts from a mnemonic into an
// encrypted keystore, and inspects stored accounts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/oysterpack/oysterpack-smart/wallet"
)

// plainTextHandler is a simple slog handler that writes plain text to stdout
// without timestamps or log levels - appropriate for CLI output
type plainTextHandler struct{}

func (*plainTextHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (*plainTextHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintln(os.Stdout, r.Message)
	return err
}

func (h *plainTextHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *plainTextHandler) WithGroup(_ string) slog.Handler {
	return h
}

var logger = slog.New(&plainTextHandler{})

// passphraseEnv names the environment variable holding the keystore
// passphrase. The auction daemon reads the same variable.
const passphraseEnv = "OYSTERPACK_WALLET_PASSPHRASE"

func main() {
	var (
		generate     = flag.Bool("generate", false, "Generate a new 24-word recovery mnemonic")
		keystoreDir  = flag.String("keystore", "auctiond-wallet", "Keystore directory")
		list         = flag.Bool("list", false, "List stored accounts")
		derive       = flag.String("derive", "", "Derive an account from a mnemonic read on stdin and store it under this name")
		index        = flag.Uint("index", 0, "Account derivation index (used with --derive)")
		seedPass     = flag.String("seed-passphrase", "", "Optional BIP-39 passphrase applied when deriving the wallet seed")
		show         = flag.String("show", "", "Show a stored account by name")
		outputFormat = flag.String("format", "text", "Output format: text or json")
		help         = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	modes := 0
	for _, selected := range []bool{*generate, *list, *derive != "", *show != ""} {
		if selected {
			modes++
		}
	}
	if *help || modes != 1 {
		showUsage()
		if modes != 1 {
			os.Exit(1)
		}
		os.Exit(0)
	}

	var err error
	switch {
	case *generate:
		err = runGenerate(*outputFormat)
	case *list:
		err = runList(*keystoreDir, *outputFormat)
	case *derive != "":
		err = runDerive(*keystoreDir, *derive, uint32(*index), *seedPass, *outputFormat)
	case *show != "":
		err = runShow(*keystoreDir, *show, *outputFormat)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}

func showUsage() {
	logger.Info("OysterPack Wallet Manager")
	logger.Info("")
	logger.Info("Generates recovery mnemonics and manages the encrypted keystore")
	logger.Info("used by the auction daemon.")
	logger.Info("")
	logger.Info("Usage:")
	logger.Info("  op-wallet --generate [options]")
	logger.Info("  op-wallet --derive <name> [--index <n>] [options]   (mnemonic on stdin)")
	logger.Info("  op-wallet --list [options]")
	logger.Info("  op-wallet --show <name> [options]")
	logger.Info("")
	logger.Info("Optional Flags:")
	logger.Info("  --keystore <dir>                  Keystore directory (default: auctiond-wallet)")
	logger.Info("  --index <n>                       Derivation index for --derive (default: 0)")
	logger.Info("  --seed-passphrase <text>          BIP-39 passphrase for seed derivation")
	logger.Info("  --format <text|json>              Output format (default: text)")
	logger.Info("  --help                            Show this help message")
	logger.Info("")
	logger.Info("Environment:")
	logger.Info("  OYSTERPACK_WALLET_PASSPHRASE      Keystore passphrase (required for --derive)")
	logger.Info("")
	logger.Info("Examples:")
	logger.Info("  # Generate a recovery mnemonic")
	logger.Info("  op-wallet --generate")
	logger.Info("")
	logger.Info("  # Derive the first account and store it as \"seller\"")
	logger.Info("  op-wallet --generate | op-wallet --derive seller --index 0")
	logger.Info("")
	logger.Info("Exit Codes:")
	logger.Info("  0 - Success")
	logger.Info("  1 - Invalid usage")
	logger.Info("  2 - Runtime error")
}

func runGenerate(format string) error {
	mnemonic, err := wallet.NewMnemonic()
	if err != nil {
		return err
	}
	if format == "json" {
		return outputJSON(map[string]any{"mnemonic": mnemonic})
	}
	logger.Info(mnemonic)
	return nil
}

func runDerive(dir, name string, index uint32, seedPass, format string) error {
	passphrase := os.Getenv(passphraseEnv)
	if passphrase == "" {
		return fmt.Errorf("required environment variable %s is not set", passphraseEnv)
	}

	mnemonic, err := readMnemonic()
	if err != nil {
		return err
	}
	seed, err := wallet.SeedFromMnemonic(mnemonic, seedPass)
	if err != nil {
		return err
	}
	key, err := wallet.DeriveKey(seed, index)
	if err != nil {
		return err
	}

	ks, err := wallet.OpenKeystore(dir)
	if err != nil {
		return err
	}
	account, err := ks.Create(name, key, passphrase)
	if err != nil {
		return err
	}

	if format == "json" {
		return outputJSON(map[string]any{
			"name":    account.Name,
			"address": account.Address,
			"index":   index,
		})
	}
	logger.Info(fmt.Sprintf("Account %q stored at derivation index %d", account.Name, index))
	logger.Info(fmt.Sprintf("Address: %s", account.Address))
	return nil
}

func runList(dir, format string) error {
	ks, err := wallet.OpenKeystore(dir)
	if err != nil {
		return err
	}
	accounts, err := ks.List()
	if err != nil {
		return err
	}
	if format == "json" {
		return outputJSON(accounts)
	}
	if len(accounts) == 0 {
		logger.Info("No accounts stored")
		return nil
	}
	for _, a := range accounts {
		logger.Info(fmt.Sprintf("%-20s %s", a.Name, a.Address))
	}
	return nil
}

func runShow(dir, name, format string) error {
	ks, err := wallet.OpenKeystore(dir)
	if err != nil {
		return err
	}
	info, err := ks.Info(name)
	if err != nil {
		return err
	}
	if format == "json" {
		return outputJSON(info)
	}
	logger.Info(fmt.Sprintf("Name:    %s", info.Name))
	logger.Info(fmt.Sprintf("Address: %s", info.Address))
	return nil
}

func readMnemonic() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read mnemonic from stdin: %w", err)
	}
	mnemonic := strings.Join(strings.Fields(string(data)), " ")
	if mnemonic == "" {
		return "", fmt.Errorf("no mnemonic provided on stdin")
	}
	return mnemonic, nil
}

func outputJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	logger.Info(string(data))
	return nil
}
