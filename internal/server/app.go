// Package server initializes and runs the document store server.
// It connects to the database, ensures the indexes every registered kind
// needs, and handles graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/docstore/internal/documents"
	"github.com/dmitrijs2005/docstore/internal/logging"
	"github.com/dmitrijs2005/docstore/internal/schema"
	"github.com/dmitrijs2005/docstore/internal/server/auth"
	"github.com/dmitrijs2005/docstore/internal/server/config"
	"github.com/dmitrijs2005/docstore/internal/session"
	"github.com/dmitrijs2005/docstore/internal/storage"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	client  *mongo.Client
	store   *storage.MongoStore
	kinds   []documents.Kind
	Service *documents.Service
}

// NewApp connects to the database and wires the document service for the
// given kinds. The caller owns the kind registry: every kind whose documents
// this server manages must be listed so its indexes are ensured at startup.
func NewApp(ctx context.Context, c *config.Config, kinds []documents.Kind) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	languages, err := schema.NewLanguages(c.Languages...)
	if err != nil {
		return nil, fmt.Errorf("language config error: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(c.DatabaseURI))
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	store := storage.NewMongoStore(client.Database(c.DatabaseName))
	sessions := session.NewMongoManager(client)
	svc := documents.NewService(store, sessions, languages, logger)

	return &App{
		config:  c,
		logger:  logger,
		client:  client,
		store:   store,
		kinds:   kinds,
		Service: svc,
	}, nil
}

// IssuePersonaToken signs a token carrying the given persona. The edge hands
// these to callers; reads present them back through Persona.
func (app *App) IssuePersonaToken(persona string) (string, error) {
	return auth.GeneratePersonaToken(persona, []byte(app.config.SecretKey), app.config.TokenValidityDuration)
}

// Persona verifies a bearer token and returns the persona it carries.
func (app *App) Persona(token string) (string, error) {
	return auth.PersonaFromToken(token, []byte(app.config.SecretKey))
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) ensureIndexes(ctx context.Context) error {
	specs := make([]storage.IndexSpec, 0, len(app.kinds))
	for _, k := range app.kinds {
		specs = append(specs, storage.IndexSpec{
			Collection:     k.Collection(),
			TrackHistory:   k.TrackHistory,
			RootCollection: k.RootCollection(),
		})
	}
	return app.store.EnsureIndexes(ctx, specs)
}

// Run ensures indexes and blocks until the context is cancelled or a
// termination signal arrives, then disconnects from the database.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.ensureIndexes(ctx); err != nil {
		return fmt.Errorf("index init error: %w", err)
	}

	<-ctx.Done()

	app.logger.Info(context.Background(), "Shutting down...")
	return app.client.Disconnect(context.Background())
}
