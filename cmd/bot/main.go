package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/huddlehq/huddle/internal/bot"
)

func main() {
	app := &cli.App{
		Name:        "huddle-bot",
		Usage:       "Headless meeting participant for testing signaling",
		Description: "",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Value: "localhost:8080",
				Usage: "host of the signaling server",
			},
			&cli.StringFlag{
				Name:     "meeting",
				Usage:    "meeting id to join",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "name",
				Value: "huddle-bot",
				Usage: "display name of the bot",
			},
		},
		Action: startBot,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("%v\n", err)
	}
}

func startBot(c *cli.Context) error {
	bot, err := bot.New(c.String("host"), c.String("meeting"), c.String("name"))
	if err != nil {
		return err
	}

	if err := bot.Start(); err != nil {
		return err
	}

	return nil
}
