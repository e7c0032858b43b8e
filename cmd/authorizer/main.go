package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alovak/cardflow-authorizer/authorizer"
	"github.com/alovak/cardflow-authorizer/internal/authorizerclient"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "authorizer",
		Short:   "Card authorizer service and client",
		Version: Version,
	}

	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "authorizer base URL")
	rootCmd.PersistentFlags().String("user", "admin", "basic auth user")
	rootCmd.PersistentFlags().String("password", "admin123", "basic auth password")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(cardCmd())
	rootCmd.AddCommand(transactionCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and ISO 8583 servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional; real environment variables win
			_ = godotenv.Load()

			logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

			config, err := authorizer.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			app := authorizer.NewApp(logger, config)
			if err := app.Start(); err != nil {
				return fmt.Errorf("starting app: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			app.Shutdown()
			return nil
		},
	}
}

func cardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Create cards and read balances",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a card with the initial balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			number, _ := cmd.Flags().GetString("number")
			password, _ := cmd.Flags().GetString("card-password")

			card, err := newClient(cmd).CreateCard(cmd.Context(), number, password)
			if err != nil {
				return err
			}
			fmt.Printf("created card %s\n", card.Number)
			return nil
		},
	}
	create.Flags().String("number", "", "card number")
	create.Flags().String("card-password", "", "card password")
	_ = create.MarkFlagRequired("number")
	_ = create.MarkFlagRequired("card-password")

	balance := &cobra.Command{
		Use:   "balance",
		Short: "Print the card balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			number, _ := cmd.Flags().GetString("number")

			b, err := newClient(cmd).GetBalance(cmd.Context(), number)
			if err != nil {
				return err
			}
			fmt.Println(b.StringFixed(2))
			return nil
		},
	}
	balance.Flags().String("number", "", "card number")
	_ = balance.MarkFlagRequired("number")

	cmd.AddCommand(create, balance)
	return cmd
}

func transactionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transaction",
		Short: "Debit an amount from a card",
		RunE: func(cmd *cobra.Command, args []string) error {
			number, _ := cmd.Flags().GetString("number")
			password, _ := cmd.Flags().GetString("card-password")
			rawAmount, _ := cmd.Flags().GetString("amount")

			amount, err := decimal.NewFromString(rawAmount)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", rawAmount, err)
			}

			if err := newClient(cmd).ProcessTransaction(cmd.Context(), number, password, amount); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
	cmd.Flags().String("number", "", "card number")
	cmd.Flags().String("card-password", "", "card password")
	cmd.Flags().String("amount", "", "amount, e.g. 10.50")
	_ = cmd.MarkFlagRequired("number")
	_ = cmd.MarkFlagRequired("card-password")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func newClient(cmd *cobra.Command) *authorizerclient.Client {
	server, _ := cmd.Flags().GetString("server")
	user, _ := cmd.Flags().GetString("user")
	password, _ := cmd.Flags().GetString("password")

	return authorizerclient.New(server, &http.Client{Timeout: 10 * time.Second}, user, password)
}
