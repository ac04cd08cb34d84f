package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/football-dw/warehouse/pkg/dw"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

type VersionInfo struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	GoVersion  string `json:"go_version"`
	Dimensions int    `json:"dimensions"`
	Facts      int    `json:"facts"`
}

func VersionCmd(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "print the version of the loader and the size of its warehouse catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "the output type, possible values are: plain, json",
			},
		},
		Action: func(c *cli.Context) error {
			catalog := dw.NewCatalog(dw.DefaultOptions())
			info := VersionInfo{
				Version:    c.App.Version,
				Commit:     commit,
				GoVersion:  runtime.Version(),
				Dimensions: len(catalog.Dimensions),
				Facts:      len(catalog.Facts),
			}

			if c.String("output") == "json" {
				out, err := json.Marshal(info)
				if err != nil {
					return errors.Wrap(err, "failed to marshal the output")
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("Current: %s (%s), built with %s\n", info.Version, info.Commit, info.GoVersion)
			fmt.Printf("Catalog: %d dimensions, %d facts\n", info.Dimensions, info.Facts)
			return nil
		},
	}
}
