// Command server wires every core component into the HTTP surface of
// transport/http and serves it. Flag parsing, logging setup, and the
// graceful-shutdown signal handling follow the teacher's cmd/assistant
// main.go; where that command wires goa-generated service endpoints, this
// one wires the engine's own constructors instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/log"

	"github.com/agentgraph/engine/apierror"
	"github.com/agentgraph/engine/runtime/agent/telemetry"
	"github.com/agentgraph/engine/runtime/conversation"
	"github.com/agentgraph/engine/runtime/copilot"
	"github.com/agentgraph/engine/runtime/deployment"
	"github.com/agentgraph/engine/runtime/graph"
	graphmongo "github.com/agentgraph/engine/runtime/graph/store/mongo"
	"github.com/agentgraph/engine/runtime/graphruntime"
	"github.com/agentgraph/engine/runtime/notify"
	"github.com/agentgraph/engine/runtime/streamengine"
	"github.com/agentgraph/engine/runtime/task"
	transporthttp "github.com/agentgraph/engine/transport/http"
)

func main() {
	var (
		httpAddrF   = flag.String("http-addr", ":8080", "HTTP listen address")
		mongoURIF   = flag.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
		mongoDBF    = flag.String("mongo-db", "agentgraph", "MongoDB database name")
		redisAddrF  = flag.String("redis-addr", "localhost:6379", "Redis address")
		anthropicF  = flag.String("anthropic-api-key", os.Getenv("ANTHROPIC_API_KEY"), "Anthropic API key")
		modelF      = flag.String("default-model", string(sdk.ModelClaudeSonnet4_5_20250929), "default model for the builtin single-node fallback")
		dbgF        = flag.Bool("debug", false, "enable debug logs")
		shutdownF   = flag.Duration("shutdown-timeout", 30*time.Second, "graceful shutdown timeout")
		connTimeout = 10 * time.Second
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}
	logger := telemetry.NewClueLogger()

	connectCtx, cancelConnect := context.WithTimeout(ctx, connTimeout)
	defer cancelConnect()

	mongoClient, err := mongo.Connect(options.Client().ApplyURI(*mongoURIF))
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("connect to mongo: %w", err))
	}
	if err := mongoClient.Ping(connectCtx, nil); err != nil {
		log.Fatal(ctx, fmt.Errorf("ping mongo: %w", err))
	}
	db := mongoClient.Database(*mongoDBF)

	redisClient := redis.NewClient(&redis.Options{Addr: *redisAddrF})
	if err := redisClient.Ping(connectCtx).Err(); err != nil {
		log.Fatal(ctx, fmt.Errorf("ping redis: %w", err))
	}

	graphStore := graphmongo.New(db)

	convStore, err := conversation.NewMongoStore(connectCtx, conversation.MongoOptions{
		Client:   mongoClient,
		Database: *mongoDBF,
	})
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("build conversation store: %w", err))
	}

	deploymentStore, err := deployment.NewMongoStore(connectCtx, mongoClient, *mongoDBF, "graph_deployment_versions")
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("build deployment store: %w", err))
	}
	deploySvc := deployment.NewService(graphStore, deploymentStore, nil)

	copilotStore, err := copilot.New(copilot.Options{Redis: redisClient, Logger: logger})
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("build copilot store: %w", err))
	}
	copilotSvc := copilot.NewService(copilotStore)

	notifyBus, err := notify.New(notify.Options{Redis: redisClient, Logger: logger})
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("build notification bus: %w", err))
	}
	defer func() { _ = notifyBus.Close(ctx) }()

	if *anthropicF == "" {
		log.Fatal(ctx, errors.New("anthropic API key is required (set -anthropic-api-key or ANTHROPIC_API_KEY)"))
	}
	ac := sdk.NewClient(option.WithAPIKey(*anthropicF))
	builtinFactory := defaultModelBuiltin{
		adapter:      graph.BuiltinAdapter{Client: &ac.Messages},
		defaultModel: *modelF,
	}

	tasks := task.NewManager()
	tasks.SetMetrics(telemetry.NewClueMetrics())

	resolver := graph.NewResolver(graphStore, externalCompiler{}, builtinFactory)
	engine := streamengine.New(tasks, convStore, resolver, logger)
	engine.SetMetrics(telemetry.NewClueMetrics())
	engine.SetTracer(telemetry.NewClueTracer())

	srv := transporthttp.NewServer(engine, deploySvc, copilotSvc, notifyBus, logger)

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := srv.ListenAndServe(runCtx, *httpAddrF, *shutdownF); err != nil {
			errc <- err
		}
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)
	cancel()
}

// defaultModelBuiltin fills in the configured default model when a caller's
// llm_params omits one, so the builtin fallback never fails resolution
// solely because a client didn't specify a model.
type defaultModelBuiltin struct {
	adapter      graph.BuiltinAdapter
	defaultModel string
}

func (d defaultModelBuiltin) Builtin(llmParams graph.LLMParams) (graphruntime.Runtime, error) {
	if llmParams.Model == "" {
		llmParams.Model = d.defaultModel
	}
	return d.adapter.Builtin(llmParams)
}

// externalCompiler is the boundary this deployment stops at: compiling a
// graph's node/edge tables into a running multi-node GraphRuntime is an
// external concern (per the core's own scope), so any graph_id other than
// the builtin fallback's empty string fails clearly rather than silently
// falling back to the single-node runtime.
type externalCompiler struct{}

func (externalCompiler) Compile(_ context.Context, g *graph.Graph, _ []*graph.GraphNode, _ []*graph.GraphEdge, _ graph.LLMParams, _ string) (graphruntime.Runtime, error) {
	return nil, apierror.Internal("graph.compile", fmt.Errorf("no external GraphRuntime compiler configured for graph %q", g.ID))
}
