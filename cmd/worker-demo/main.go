// Command worker-demo wires the actor task submitter and its
// collaborators into a runnable process, the way the teacher's
// cmd/game-node/main.go wires a GameNode component into gas.Startup: load
// config, start logging, build every collaborator, register the
// submitter as a component, and run until signaled to stop.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"actorsub/internal/config"
	"actorsub/internal/directory"
	"actorsub/internal/executor"
	"actorsub/internal/idgen"
	"actorsub/internal/iface"
	"actorsub/internal/refcount"
	"actorsub/internal/resolver"
	"actorsub/internal/submit"
	"actorsub/internal/taskmanager"
	"actorsub/internal/transport"
	"actorsub/pkg/glog"
	"actorsub/pkg/lib/component"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file; omitted means built-in defaults")
	workerID := flag.Int64("worker-id", 1, "this process's snowflake worker id, unique per deployment")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			panic(err)
		}
		cfg = loaded
	}
	glog.Init(&cfg.Glog)
	defer glog.Stop()

	ids, err := idgen.New(*workerID)
	if err != nil {
		glog.Fatal("worker-demo: invalid worker id", zap.Error(err))
	}

	pool, err := ants.NewPool(cfg.Submitter.ExecutorThroughput * 4)
	if err != nil {
		glog.Fatal("worker-demo: failed to create ants pool", zap.Error(err))
	}
	exec := executor.New(pool, cfg.Submitter.ExecutorThroughput)

	refCounter := refcount.New()
	resolve := resolver.New(exec)
	tasks := taskmanager.New()

	dir, err := directory.NewFromConfig(directory.Config{
		Addr:     cfg.Directory.RedisAddr,
		Password: cfg.Directory.RedisPassword,
		DB:       cfg.Directory.RedisDB,
	}, cfg.Directory.PlacementStrategy, cfg.Directory.StaticWorkers)
	if err != nil {
		glog.Fatal("worker-demo: failed to build actor directory", zap.Error(err))
	}
	defer dir.Close()

	rpcPool, err := transport.New(transport.Config{
		DialTimeout: cfg.Transport.DialTimeout,
		WorkerPool:  cfg.Transport.WorkerPool,
	})
	if err != nil {
		glog.Fatal("worker-demo: failed to start rpc client pool", zap.Error(err))
	}
	defer rpcPool.Stop()

	sub := submit.New(submit.Config{
		DeathInfoTimeout:     cfg.Submitter.DeathInfoTimeout,
		CancelRetryIntervals: cfg.Submitter.CancelRetryIntervals,
	}, submit.Deps{
		Executor:    exec,
		Clock:       wallClock{},
		Resolver:    resolve,
		TaskManager: tasks,
		Directory:   dir,
		ClientPool:  rpcPool,
		RefCounter:  refCounter,
		WorkerID:    "worker-demo",
	})

	mgr := component.NewComponentsMgr[*config.Config]()
	if err := mgr.Register(submit.NewComponent(sub, time.Second)); err != nil {
		glog.Fatal("worker-demo: failed to register submitter component", zap.Error(err))
	}

	if err := mgr.Init(cfg); err != nil {
		glog.Fatal("worker-demo: component init failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx, cfg); err != nil {
		glog.Fatal("worker-demo: component start failed", zap.Error(err))
	}
	glog.Info("worker-demo: started", zap.Int64("workerId", *workerID))

	submitDemoActor(sub, tasks, ids)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	glog.Info("worker-demo: shutting down")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := mgr.Stop(stopCtx); err != nil {
		glog.Error("worker-demo: component stop failed", zap.Error(err))
	}
}

// wallClock is the real-time iface.Clock used outside tests.
type wallClock struct{}

func (wallClock) NowMS() int64 { return time.Now().UnixMilli() }

var _ iface.Clock = wallClock{}

// submitDemoActor mints one actor and one actor-creation task and submits
// it, exercising the whole wiring (directory placement, transport dial,
// task manager bookkeeping) on process start. A failure here is logged,
// not fatal: the directory's placer has no real scheduler behind it in
// this demo, so CreateActor failing is an expected outcome without a
// Redis instance and a placer configured.
func submitDemoActor(sub *submit.Submitter, tasks *taskmanager.Manager, ids *idgen.Generator) {
	actorID, err := ids.NextActorID()
	if err != nil {
		glog.Error("worker-demo: failed to mint actor id", zap.Error(err))
		return
	}
	taskID, err := ids.NextTaskID()
	if err != nil {
		glog.Error("worker-demo: failed to mint task id", zap.Error(err))
		return
	}

	spec := iface.NewActorCreationTaskSpec(taskID, actorID, "worker-demo", nil)
	tasks.Submit(spec, taskmanager.DefaultMaxRetries)
	sub.AddActorQueueIfNotExists(actorID, true, true, false, false, 0)
	if err := sub.SubmitActorCreationTask(spec); err != nil {
		glog.Error("worker-demo: demo actor creation submit failed", zap.Error(err))
	}
}
