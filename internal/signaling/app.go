package signaling

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/isqad/melody"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/internal/captions"
	"github.com/huddlehq/huddle/internal/chat"
	"github.com/huddlehq/huddle/internal/config"
	"github.com/huddlehq/huddle/internal/eventbus"
	"github.com/huddlehq/huddle/internal/registry"
)

// AppOptions is options of the signaling server application
type AppOptions struct {
	Config *config.Config
	Redis  *redis.Client

	// Transcriptions serves the synchronous transcription endpoint when set.
	Transcriptions *captions.Service

	websocket *melody.Melody
}

// App is the signaling server: websocket transport, relay and the HTTP
// surface around them.
type App struct {
	AppOptions
}

func New(options AppOptions) *App {
	options.websocket = melody.New()
	options.websocket.Config.MaxMessageSize = 200 * 1024 // 200K

	app := &App{
		options,
	}
	return app
}

func (app *App) Start() error {
	quit := make(chan os.Signal, 1)
	done := make(chan struct{}, 1)

	app.initLogger()
	router := app.initRouter()

	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	server := &http.Server{
		Addr:              app.Config.Address,
		Handler:           router,
		ReadHeaderTimeout: 1 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	server.RegisterOnShutdown(func() {
		log.Warn().Msg("received signal to terminate the server")
		log.Info().Msg("all services are stopped")
		close(done)
	})

	go func() {
		<-quit
		log.Warn().Msg("the server is going shutting down")

		// Wait 20 seconds for close http connections
		waitIdleConnCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(waitIdleConnCtx); err != nil {
			log.Fatal().Err(err).Msg("can't gracefully shutdown the server")
		}
	}()

	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server has been closed immediatelly")
	}

	<-done
	log.Info().Msg("server stopped")

	return nil
}

func (app *App) initLogger() {
	level := zerolog.InfoLevel

	if app.Config.Env.IsDevelopment() {
		cw := zerolog.NewConsoleWriter()
		log.Logger = log.Output(cw)
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)
}

// initRouter wires the relay to the websocket transport and builds the http
// router around it.
func (app *App) initRouter() http.Handler {
	sender := newSessionSender()
	reg := registry.New()

	fwd := newForwarder(reg, eventbus.RedisPubSub(app.Redis), sender)

	relay := NewRelay(RelayOptions{
		Registry:        reg,
		Sender:          sender,
		ICEServers:      app.Config.ICEServers(),
		Chat:            chat.NewHistory(app.Redis),
		OnMeetingOpened: fwd.meetingOpened,
		OnMeetingClosed: fwd.meetingClosed,
	})

	app.websocket.HandleConnect(ConnectHandler(sender))
	app.websocket.HandleDisconnect(DisconnectHandler(sender, relay))
	app.websocket.HandleMessage(MessageHandler(relay))
	app.websocket.HandleError(func(s *melody.Session, err error) {
		log.Error().Err(err).Str("service", "signaling").Msg("error in websocket session")
	})

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", WsHandler(app.websocket))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if app.Transcriptions != nil {
		r.Post("/api/v1/transcriptions", TranscriptionsHandler(app.Transcriptions))
	}

	return r
}
