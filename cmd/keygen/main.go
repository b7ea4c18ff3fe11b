package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/robalyx/chronicle/internal/encryption"
	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:  "keygen",
		Usage: "Generate a master key for message encryption",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "size",
				Value: 48,
				Usage: "Number of random bytes in the key",
			},
		},
		Action: func(_ context.Context, c *cli.Command) error {
			key, err := encryption.GenerateMasterKey(int(c.Int("size")))
			if err != nil {
				return err
			}

			fmt.Println(key)
			return nil
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
