package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"inventory/internal/app"
	"inventory/internal/config"
	"inventory/internal/db"
	"inventory/internal/money"

	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	cliApp := cli.NewApp()
	cliApp.Name = "inventoryctl"
	cliApp.Usage = "Operate the inventory ledger"
	cliApp.Action = cli.ShowAppHelp
	cliApp.Commands = []*cli.Command{
		{
			Name:     "migrate",
			Usage:    "Apply pending SQL migrations",
			Category: "Database",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "dir", Value: "migrations", Usage: "migration directory"},
			},
			Action: runMigrate,
		},
		{
			Name:     "trades",
			Usage:    "Trade maintenance",
			Category: "Trades",
			Subcommands: []*cli.Command{
				{
					Name:   "expire",
					Usage:  "Expire pending trades past their deadline",
					Action: runExpireTrades,
				},
			},
		},
		{
			Name:     "nft",
			Usage:    "NFT tools",
			Category: "NFTs",
			Subcommands: []*cli.Command{
				{
					Name:      "verify",
					Usage:     "Check an NFT token against its stored mint hash",
					ArgsUsage: "<token>",
					Action:    runVerifyNFT,
				},
			},
		},
		{
			Name:     "currency",
			Usage:    "Currency administration",
			Category: "Currencies",
			Subcommands: []*cli.Command{
				{
					Name:        "award",
					Usage:       "Credit an amount to several users",
					ArgsUsage:   "<user id>...",
					Description: `Each user is credited independently; failures are listed per user.`,
					Flags: []cli.Flag{
						&cli.Int64Flag{Name: "currency", Required: true, Usage: "currency id"},
						&cli.StringFlag{Name: "amount", Required: true, Usage: "amount per user"},
						&cli.StringFlag{Name: "description", Value: "bulk award", Usage: "ledger description"},
					},
					Action: runCurrencyAward,
				},
			},
		},
	}
	return cliApp
}

func loadApp(c *cli.Context) (*app.App, error) {
	return app.Load(c.Context, config.Load())
}

func runMigrate(c *cli.Context) error {
	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()
	applied, err := db.Migrate(c.Context, database, c.String("dir"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%d migrations applied\n", len(applied))
	return nil
}

func runExpireTrades(c *cli.Context) error {
	inventory, err := loadApp(c)
	if err != nil {
		return err
	}
	defer inventory.Close()
	expired, err := inventory.Trades.ExpireDue(c.Context, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "expired %d trades\n", expired)
	return nil
}

func runVerifyNFT(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: inventoryctl nft verify <token>", 2)
	}
	inventory, err := loadApp(c)
	if err != nil {
		return err
	}
	defer inventory.Close()
	result, err := inventory.NFTs.VerifyAuthenticity(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return printJSON(c, result)
}

func runCurrencyAward(c *cli.Context) error {
	userIDs, err := parseUserIDs(c.Args().Slice())
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	amount, err := money.ParsePositive(c.String("amount"), money.MaxDecimalPlaces)
	if err != nil {
		return cli.Exit("invalid amount: "+err.Error(), 2)
	}
	inventory, err := loadApp(c)
	if err != nil {
		return err
	}
	defer inventory.Close()
	results, err := inventory.Currencies.BulkAward(c.Context, c.Int64("currency"), userIDs, amount, c.String("description"))
	if err != nil {
		return err
	}
	return printJSON(c, results)
}

func parseUserIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one user id is required")
	}
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid user id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printJSON(c *cli.Context, value any) error {
	out := c.App.Writer
	if out == nil {
		out = os.Stdout
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
