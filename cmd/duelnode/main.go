package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"okinoko-cipher_duel/contract"
	"okinoko-cipher_duel/coprocessor"
	"okinoko-cipher_duel/node"
	"okinoko-cipher_duel/sdk"
)

var (
	flagConfig   string
	flagLogLevel string
)

func main() {
	root := &cobra.Command{
		Use:           "duelnode",
		Short:         "Run and use a confidential code-breaking duel node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (overrides config)")

	root.AddCommand(serveCmd(), keygenCmd(), encryptCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger(), nil
}

func serveCmd() *cobra.Command {
	var (
		listen string
		dbPath string
		faucet bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ledger, the disclosure oracle and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := node.LoadConfig(flagConfig)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listen
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = dbPath
			}
			if cmd.Flags().Changed("faucet") {
				cfg.Faucet = faucet
			}
			if flagLogLevel != "" {
				cfg.LogLevel = flagLogLevel
			}
			log, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}

			n, err := node.New(cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := n.Close(); err != nil {
					log.Error().Err(err).Msg("shutdown")
				}
			}()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log.Info().
				Str("db", cfg.DBPath).
				Str("min_wager", cfg.MinWager).
				Dur("join_timeout", cfg.JoinTimeout).
				Dur("move_timeout", cfg.MoveTimeout).
				Bool("faucet", cfg.Faucet).
				Msg("starting duel node")
			return n.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path")
	cmd.Flags().BoolVar(&faucet, "faucet", false, "enable the development faucet")
	return cmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a coprocessor seed and print its public keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			seed, err := coprocessor.NewSeed()
			if err != nil {
				return err
			}
			keys, err := coprocessor.DeriveKeys(seed)
			if err != nil {
				return err
			}
			pub, err := keys.Public.MarshalText()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "key_seed: %s\npublic_keys: %s\n", seed, pub)
			return nil
		},
	}
}

func encryptCmd() *cobra.Command {
	var (
		pubText string
		sender  string
	)
	cmd := &cobra.Command{
		Use:   "encrypt DIGIT DIGIT DIGIT DIGIT",
		Short: "Seal a code or a guess for sender, printing the JSON call input",
		Args:  cobra.ExactArgs(contract.CodeLength),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pub coprocessor.PublicKeys
			if err := pub.UnmarshalText([]byte(pubText)); err != nil {
				return fmt.Errorf("--keys: %w", err)
			}
			digits := make([]uint8, len(args))
			for i, a := range args {
				v, err := strconv.ParseUint(a, 10, 8)
				if err != nil {
					return fmt.Errorf("digit %d: %w", i, err)
				}
				digits[i] = uint8(v)
			}
			cts, proof, err := coprocessor.EncryptDigits(pub, sdk.Address(sender), digits...)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"input": contract.SealedInput{Ciphertexts: cts, Proof: proof},
			})
		},
	}
	cmd.Flags().StringVar(&pubText, "keys", "", "coprocessor public keys as printed by keygen or GET /coprocessor/keys")
	cmd.Flags().StringVar(&sender, "sender", "", "address the input is sealed for")
	_ = cmd.MarkFlagRequired("keys")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}
