package main

import (
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/huddlehq/huddle/internal/captions"
	"github.com/huddlehq/huddle/internal/config"
	"github.com/huddlehq/huddle/internal/gate"
	"github.com/huddlehq/huddle/internal/signaling"
	"github.com/huddlehq/huddle/internal/translate"
)

func main() {
	app := &cli.App{
		Name:        "huddle-signaling",
		Usage:       "Meeting signaling server",
		Description: "",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to config file",
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "environment: either 'development' or 'production'",
			},
			&cli.StringFlag{
				Name:  "address",
				Usage: "listen IP and port, example: ':8080' for listen on 0.0.0.0:8080",
			},
		},
		Action: startSignaling,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func startSignaling(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if env := c.String("env"); env != "" {
		cfg.Env = config.Environment(env)
	}
	if address := c.String("address"); address != "" {
		cfg.Address = address
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   0,
	})

	app := signaling.New(signaling.AppOptions{
		Config:         cfg,
		Redis:          rdb,
		Transcriptions: transcriptionService(cfg),
	})

	return app.Start()
}

func transcriptionService(cfg *config.Config) *captions.Service {
	if cfg.Whisper.URL == "" {
		return nil
	}

	var translator captions.Translator
	if cfg.Translate.URL != "" {
		translator = translate.NewClient(cfg.Translate.URL)
	}

	return captions.NewService(captions.ServiceOptions{
		Gate:       gate.New(cfg.Whisper.MaxConcurrent),
		Normalizer: captions.NewNormalizer(cfg.FFmpegPath),
		Client:     captions.NewClient(cfg.Whisper),
		Translator: translator,
	})
}
