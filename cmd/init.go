package cmd

import (
	"fmt"

	"github.com/football-dw/warehouse/pkg/path"
	"github.com/football-dw/warehouse/pkg/postgres"
	"github.com/urfave/cli/v2"
)

func Init() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "create the warehouse schema and tables",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "print the DDL instead of executing it",
			},
			&cli.BoolFlag{
				Name:  "write-config",
				Usage: "write the effective configuration to the configuration file if it does not exist",
			},
		},
		Action: func(c *cli.Context) error {
			defer RecoverFromPanic()

			env, err := setup(c)
			if err != nil {
				return err
			}
			defer env.close()

			if c.Bool("write-config") {
				configPath := c.String("config")
				if path.FileExists(fs, configPath) {
					warningPrinter.Printf("Configuration file %s already exists, leaving it untouched.\n", configPath)
				} else {
					if err := env.config.Persist(); err != nil {
						errorPrinter.Printf("Failed to write the configuration: %v\n", err)
						return cli.Exit("", exitCritical)
					}
					infoPrinter.Printf("Wrote the configuration to %s\n", configPath)
				}
			}

			statements := postgres.CatalogDDL(env.catalog)
			if c.Bool("dry-run") {
				for _, stmt := range statements {
					fmt.Printf("%s;\n\n", stmt)
				}
				return nil
			}

			if err := env.probe(c); err != nil {
				return err
			}

			if err := env.db.ExecAll(c.Context, statements); err != nil {
				errorPrinter.Printf("Failed to create the warehouse schema: %v\n", err)
				return cli.Exit("", exitPhaseFailure)
			}

			successPrinter.Printf("Created schema '%s' with %d dimensions and %d facts.\n",
				env.catalog.Schema, len(env.catalog.Dimensions), len(env.catalog.Facts))
			return nil
		},
	}
}
