// Package internal wires the crewdesk application together.
package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crewdesk/crewdesk/internal/ai"
	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/config"
	"github.com/crewdesk/crewdesk/internal/crypto"
	"github.com/crewdesk/crewdesk/internal/gateway"
	"github.com/crewdesk/crewdesk/internal/googleauth"
	"github.com/crewdesk/crewdesk/internal/log"
	"github.com/crewdesk/crewdesk/internal/server"
	"github.com/crewdesk/crewdesk/internal/session"
)

// stateTTL bounds how long a signed OAuth state parameter stays valid.
const stateTTL = 10 * time.Minute

// cleanupInterval is how often expired sessions are swept.
const cleanupInterval = 5 * time.Minute

// Crewdesk is the assembled application.
type Crewdesk struct {
	config     config.Config
	httpServer *server.HTTPServer
	store      session.Store
	cleanup    *session.CleanupManager
}

// NewCrewdesk builds the application with all dependencies.
func NewCrewdesk(ctx context.Context, cfg config.Config) (*Crewdesk, error) {
	log.LogInfoWithFields("crewdesk", "Building application", map[string]any{
		"addr":    cfg.Addr,
		"backend": string(cfg.SessionBackend),
	})

	store, err := setupSessionStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup session store: %w", err)
	}

	oauthClient := googleauth.NewClient(cfg)
	stateSigner := crypto.NewTokenSigner([]byte(cfg.SessionSecret), stateTTL)
	policy := authz.NewDrivePolicy()

	aiClient := ai.NewClient(cfg.OpenAIKey, "")
	vectorStore := ai.NewVectorStore(aiClient)

	newGateway := gateway.Factory(func(ctx context.Context, ts *session.TokenSet) (*gateway.Services, error) {
		return gateway.New(ctx, ts)
	})

	authHandlers := server.NewAuthHandlers(store, oauthClient, &stateSigner)
	workspaceHandlers := server.NewWorkspaceHandlers(store, oauthClient, policy, newGateway)
	aiHandlers := server.NewAIHandlers(policy, aiClient, vectorStore)

	router := server.NewRouter(cfg, store, authHandlers, workspaceHandlers, aiHandlers)

	return &Crewdesk{
		config:     cfg,
		httpServer: server.NewHTTPServer(router, cfg.Addr),
		store:      store,
		cleanup:    session.NewCleanupManager(store, cleanupInterval),
	}, nil
}

// Run starts the application and blocks until shutdown.
func (c *Crewdesk) Run() error {
	log.LogInfoWithFields("crewdesk", "Starting application", map[string]any{
		"addr": c.config.Addr,
	})

	errChan := make(chan error, 1)
	go func() {
		if err := c.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	c.cleanup.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("crewdesk", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("crewdesk", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("crewdesk", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": "30s",
	})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("crewdesk", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	c.cleanup.Stop()
	if err := c.store.Close(); err != nil {
		log.LogWarn("Failed to close session store: %v", err)
	}

	log.LogInfoWithFields("crewdesk", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}

// setupSessionStore creates the configured session store backend.
func setupSessionStore(ctx context.Context, cfg config.Config) (session.Store, error) {
	if cfg.SessionBackend == config.SessionBackendFirestore {
		log.LogInfoWithFields("session", "Using Firestore session store", map[string]any{
			"project":    cfg.FirestoreProject,
			"collection": cfg.FirestoreCollection,
		})
		return session.NewFirestoreStore(ctx, cfg.FirestoreProject, cfg.FirestoreCollection, cfg.SessionTTL)
	}

	log.LogInfoWithFields("session", "Using in-memory session store", map[string]any{})
	return session.NewMemoryStore(cfg.SessionTTL), nil
}
