package main

import (
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"

	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/huddlehq/huddle/internal/captions"
	"github.com/huddlehq/huddle/internal/config"
	"github.com/huddlehq/huddle/internal/eventbus"
	"github.com/huddlehq/huddle/internal/gate"
	"github.com/huddlehq/huddle/internal/translate"
)

func main() {
	app := &cli.App{
		Name:        "huddle-captions",
		Usage:       "Transcription worker",
		Description: "",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to config file",
			},
			&cli.StringFlag{
				Name:  "natsAddr",
				Usage: "Address to connect to NATS server",
			},
		},
		Action: start,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("%v\n", err)
	}
}

func start(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if natsAddr := c.String("natsAddr"); natsAddr != "" {
		cfg.NatsAddr = natsAddr
	}

	db, err := sqlx.Connect("pgx", cfg.PostgresDSN)
	if err != nil {
		return err
	}
	if err = db.Ping(); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   0,
	})

	var translator captions.Translator
	if cfg.Translate.URL != "" {
		translator = translate.NewClient(cfg.Translate.URL)
	}

	service := captions.NewService(captions.ServiceOptions{
		Gate:       gate.New(cfg.Whisper.MaxConcurrent),
		Normalizer: captions.NewNormalizer(cfg.FFmpegPath),
		Client:     captions.NewClient(cfg.Whisper),
		Translator: translator,
	})

	daemon, err := captions.NewDaemon(cfg.NatsAddr, service, captions.NewStore(db), eventbus.RedisPubSub(rdb))
	if err != nil {
		return err
	}

	if err := daemon.Run(); err != nil {
		return err
	}

	return nil
}
