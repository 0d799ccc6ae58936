package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/mgreenly/ikigai-sub013/agent"
	"github.com/mgreenly/ikigai-sub013/common"
	"github.com/mgreenly/ikigai-sub013/coordinator"
	"github.com/mgreenly/ikigai-sub013/logger"
	"github.com/mgreenly/ikigai-sub013/mailbus"
	gprovider "github.com/mgreenly/ikigai-sub013/provider"
	anthropicprovider "github.com/mgreenly/ikigai-sub013/provider/anthropic"
	googleprovider "github.com/mgreenly/ikigai-sub013/provider/google"
	openaiprovider "github.com/mgreenly/ikigai-sub013/provider/openai"
	"github.com/mgreenly/ikigai-sub013/secret_manager"
	sqlitestore "github.com/mgreenly/ikigai-sub013/store/sqlite"
	"github.com/mgreenly/ikigai-sub013/tool"
	"github.com/mgreenly/ikigai-sub013/tui"
)

func run(ctx context.Context, cmd *cli.Command) error {
	logger.Get()

	cfg, err := common.LoadIkigaiConfig(common.GetIkigaiConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := sqlitestore.Open(cmd.String("db"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	secrets := secret_manager.SecretManagerContainer{
		SecretManager: secret_manager.NewCompositeSecretManager([]secret_manager.SecretManager{
			secret_manager.EnvSecretManager{},
			secret_manager.LocalConfigSecretManager{},
			secret_manager.KeyringSecretManager{},
		}),
	}

	gprovider.Register(common.ProviderOpenAI, openaiprovider.Provider{})
	gprovider.Register(common.ProviderAnthropic, anthropicprovider.Provider{})
	gprovider.Register(common.ProviderGoogle, googleprovider.Provider{})

	sessionID := cmd.String("session")
	resuming := sessionID != ""
	if !resuming {
		sessionID = uuid.NewString()
		if err := store.InsertSession(ctx, sessionID, ""); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
	}

	providerName := cmd.String("provider")
	if providerName == "" {
		providerName = cfg.DefaultProvider
	}
	if providerName == "" {
		providerName = string(common.ProviderAnthropic)
	}
	modelName := cmd.String("model")
	if modelName == "" {
		modelName = cfg.DefaultModel
	}

	coord := coordinator.New(sessionID, store)

	if resuming {
		rootUUID, err := restoreSession(ctx, store, coord, sessionID)
		if err != nil {
			return fmt.Errorf("failed to resume session %s: %w", sessionID, err)
		}
		if rootUUID == "" {
			return fmt.Errorf("session %s has no live agents to resume", sessionID)
		}
		coord.SetCurrent(rootUUID)
	} else {
		root := agent.New("", providerName, modelName, agent.ThinkingNone)
		coord.AddRoot(root)
		if err := store.InsertAgent(ctx, sqlitestore.AgentRow{
			UUID: root.UUID, SessionID: sessionID, Status: "running",
			Provider: providerName, Model: modelName, ThinkingLevel: string(agent.ThinkingNone),
			CreatedAt: root.CreatedAt,
		}); err != nil {
			return fmt.Errorf("failed to persist root agent: %w", err)
		}
	}

	registry := tool.NewRegistry()
	tool.RegisterFilesystemTools(registry)
	bus := mailbus.New(store)
	coord.RegisterTools(registry, bus, store.MarkAgentDead, func(context.Context) *agent.Agent { return coord.Current() })

	loop := newEngine(coord, registry, secrets, cfg.MaxToolTurns, store)

	m := tui.New(ctx, coord, loop.submitCmd, loop.slashCmd)
	p := tea.NewProgram(m)
	_, err = p.Run()
	return err
}

// restoreSession rebuilds a resumed session's live agent set: every
// non-dead agent row gets its history replayed via store.LoadHistory and is
// registered with coord (not yet current). It returns the UUID of the live
// agent with no parent, or "" if the session has no live root to resume
// into.
func restoreSession(ctx context.Context, store *sqlitestore.Storage, coord *coordinator.Coordinator, sessionID string) (string, error) {
	rows, err := store.ListAgents(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to list agents: %w", err)
	}

	var rootUUID string
	for _, row := range rows {
		if row.Status == "dead" {
			continue
		}
		var parentUUID string
		if row.ParentUUID.Valid {
			parentUUID = row.ParentUUID.String
		}

		restored := agent.Restore(row.UUID, parentUUID, row.Provider, row.Model, agent.ParseThinkingLevel(row.ThinkingLevel), row.CreatedAt)
		history, _, err := store.LoadHistory(ctx, row.UUID)
		if err != nil {
			return "", fmt.Errorf("failed to load history for agent %s: %w", row.UUID, err)
		}
		for _, m := range history {
			restored.AddMessage(m)
		}

		coord.AddAgent(restored)
		if parentUUID == "" {
			rootUUID = row.UUID
		}
	}
	return rootUUID, nil
}
