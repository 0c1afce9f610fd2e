package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	agentsx "github.com/cloudflow/support-agents/agent/agents"
	contractx "github.com/cloudflow/support-agents/agent/contract"
	memoryx "github.com/cloudflow/support-agents/agent/memory"
	orchestratorx "github.com/cloudflow/support-agents/agent/orchestrator"
	promptx "github.com/cloudflow/support-agents/agent/prompt"
	routerx "github.com/cloudflow/support-agents/agent/router"
	storagex "github.com/cloudflow/support-agents/agent/storage"
	toolx "github.com/cloudflow/support-agents/agent/tool"
	configx "github.com/cloudflow/support-agents/pkg/config"
	llmx "github.com/cloudflow/support-agents/pkg/llm"
	_ "github.com/cloudflow/support-agents/pkg/logger/autoload"
	qstashx "github.com/cloudflow/support-agents/pkg/qstash"
	redisx "github.com/cloudflow/support-agents/pkg/redisx"
)

type AppConfig struct {
	WindowSize          int           `envconfig:"WINDOW_SIZE" split_words:"true" default:"15"`
	CacheTTL            time.Duration `envconfig:"CACHE_TTL" split_words:"true" default:"5m"`
	ConfidenceThreshold float64       `envconfig:"CONFIDENCE_THRESHOLD" split_words:"true" default:"0.6"`
	DispatchTimeout     time.Duration `envconfig:"DISPATCH_TIMEOUT" split_words:"true" default:"30s"`
	LockWait            time.Duration `envconfig:"LOCK_WAIT" split_words:"true" default:"10s"`
	CustomerEmail       string        `envconfig:"CUSTOMER_EMAIL" split_words:"true"`
	QueueInbound        bool          `envconfig:"QUEUE_INBOUND" split_words:"true" default:"false"`
}

func main() {
	ctx := context.Background()

	appCfg := configx.MustNew[AppConfig]("AGENT")

	llmCfg := configx.MustNew[llmx.Config]("LLM")
	if err := llmCfg.Validate(); err != nil {
		panic(err)
	}

	pgCfg := configx.MustNew[storagex.PostgresConfig]("POSTGRES")
	store, err := storagex.NewStore(*pgCfg)
	if err != nil {
		panic(err)
	}

	// Redis is optional: without it the memory service skips caching and
	// turns are not serialized across processes.
	var (
		cache  contractx.ContextCache
		locker contractx.Locker
	)
	if redisCfg, err := configx.New[redisx.Config]("REDIS"); err == nil {
		client := redisx.MustNewClient(*redisCfg)
		if err := redisx.Ping(ctx, client); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, running without cache and lock")
		} else {
			cache, err = memoryx.NewRedisCache(client)
			if err != nil {
				panic(err)
			}
			mutex, err := redisx.NewMutex(client, appCfg.DispatchTimeout+5*time.Second, appCfg.LockWait)
			if err != nil {
				panic(err)
			}
			locker, err = orchestratorx.NewRedisLocker(mutex)
			if err != nil {
				panic(err)
			}
		}
	} else {
		log.Warn().Err(err).Msg("redis not configured, running without cache and lock")
	}

	memory, err := memoryx.NewService(store, cache,
		memoryx.WithWindowSize(appCfg.WindowSize),
		memoryx.WithCacheTTL(appCfg.CacheTTL),
	)
	if err != nil {
		panic(err)
	}

	embedder, err := llmCfg.NewEmbeddingClient()
	if err != nil {
		panic(err)
	}

	tools, err := toolx.NewRegistry(store, store, store, embedder)
	if err != nil {
		panic(err)
	}

	prompts := promptx.LoadPromptSet()

	routerModel, err := llmCfg.NewChatModel(ctx, llmx.PurposeRouter)
	if err != nil {
		panic(err)
	}
	router, err := routerx.NewRouter(ctx, routerModel, prompts.Router,
		routerx.WithConfidenceThreshold(appCfg.ConfidenceThreshold),
		routerx.WithRetryPolicy(llmCfg.RetryPolicy()),
	)
	if err != nil {
		panic(err)
	}

	registry, err := agentsx.NewRegistry(ctx, *llmCfg, prompts, tools)
	if err != nil {
		panic(err)
	}

	service, err := orchestratorx.New(memory, router, registry, locker,
		orchestratorx.WithDispatchTimeout(appCfg.DispatchTimeout),
	)
	if err != nil {
		panic(err)
	}

	var queue *qstashx.Client
	if appCfg.QueueInbound {
		queueCfg := configx.MustNew[qstashx.Config]("QSTASH")
		queue = qstashx.MustNew(*queueCfg)
	}

	runConsole(ctx, service, queue, appCfg.CustomerEmail)
}

// runConsole drives one conversation from stdin. With queueing enabled each
// message is published as a job instead of being processed inline.
func runConsole(ctx context.Context, service *orchestratorx.Service, queue *qstashx.Client, customerEmail string) {
	conversationID := uuid.New()
	fmt.Printf("conversation %s (ctrl-d to quit)\n", conversationID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if message == "/close" {
			if err := service.CloseConversation(ctx, conversationID); err != nil {
				log.Error().Err(err).Msg("close failed")
				continue
			}
			fmt.Println("conversation closed")
			return
		}

		if queue != nil {
			messageID, err := queue.Publish(ctx, qstashx.ProcessMessageJob{
				ConversationID: conversationID.String(),
				Message:        message,
				CustomerEmail:  customerEmail,
			})
			if err != nil {
				log.Error().Err(err).Msg("enqueue failed")
				continue
			}
			fmt.Printf("queued as %s\n", messageID)
			continue
		}

		result, err := service.ProcessMessage(ctx, conversationID, message, customerEmail)
		if err != nil {
			log.Error().Err(err).Msg("turn failed")
			continue
		}
		fmt.Printf("[%s/%s] %s\n", result.AgentType, result.Status, result.Reply)
	}

	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("stdin read failed")
	}
}
