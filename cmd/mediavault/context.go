package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mediavault/internal/cipher"
	"mediavault/internal/config"
	"mediavault/internal/content"
	"mediavault/internal/lifecycle"
	"mediavault/internal/logging"
	"mediavault/internal/notifications"
	"mediavault/internal/vault"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// session bundles the vault handles one command invocation works with.
type session struct {
	cfg     *config.Config
	store   *vault.Store
	content *content.Store
	engine  *lifecycle.Engine
	logger  *slog.Logger
}

// withSession opens the vault, runs fn with a correlation-tagged context, and
// waits for any collection checks the command scheduled before closing.
func (c *commandContext) withSession(cmd *cobra.Command, fn func(context.Context, *session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	store, err := vault.Open(cfg)
	if err != nil {
		return fmt.Errorf("open vault: %w", err)
	}
	defer store.Close()

	sealer := cipher.New(cipher.NewFileKeyStore(cfg.KeyDir(), logger))
	contentStore := content.NewStore(cfg, sealer, logger)
	engine := lifecycle.New(cfg, store, contentStore, logger,
		lifecycle.WithNotifier(notifications.NewService(cfg)),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithCorrelationID(ctx, uuid.NewString())

	s := &session{cfg: cfg, store: store, content: contentStore, engine: engine, logger: logger}
	runErr := fn(ctx, s)
	if _, err := engine.Reconciler().Drain(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("collection check failed", logging.Error(err))
	}
	return runErr
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
