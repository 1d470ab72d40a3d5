package main

import (
	"time"

	"github.com/go-redis/redis/v8"

	"syscontrol/pkg/actuator"
	"syscontrol/pkg/config"
	"syscontrol/pkg/controller"
	"syscontrol/pkg/history"
	"syscontrol/pkg/logger"
	"syscontrol/pkg/probe"
	"syscontrol/pkg/queue"
	mysqlstore "syscontrol/pkg/store/mysql"
	redisstore "syscontrol/pkg/store/redis"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	app.config = cfg
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(app.config.Logger); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
	})
	return nil
}

// initMySQL initializes the decision and workload history store.
// MySQL is optional: without it the controller still evaluates and actuates,
// it just loses history fusion and the audit trail.
func (app *Application) initMySQL() error {
	if app.config.MySQL.Host == "" {
		logger.WarnCtx(app.ctx, "MySQL not configured, workload history and decision audit disabled")
		return nil
	}

	ds, err := mysqlstore.NewDatastore(app.config.MySQL.DSN())
	if err != nil {
		return err
	}

	app.datastore = ds
	app.registerCleanup(func() {
		ds.Close()
		logger.InfoCtx(app.ctx, "MySQL connection has been closed")
	})

	return nil
}

// initRedis initializes Redis (optional integration)
func (app *Application) initRedis() error {
	if !app.config.Redis.Enabled() {
		logger.InfoCtx(app.ctx, "Redis not configured, running in single-instance mode")
		return nil
	}

	client, err := redisstore.NewRedisClient(app.config.Redis)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})

	return nil
}

// initBacklog initializes the queue backlog reader
func (app *Application) initBacklog() error {
	backlog, err := queue.NewBacklogReader(app.config, app.redisConn())
	if err != nil {
		return err
	}

	app.backlog = backlog
	app.registerCleanup(func() {
		backlog.Close()
	})

	logger.InfoCtx(app.ctx, "Queue backlog provider: %s", backlog.Name())
	return nil
}

// initActuator resolves the orchestration adapter once at startup
func (app *Application) initActuator() error {
	app.actuator = actuator.New(app.config)
	return nil
}

// initLoop wires the control loop from the resolved collaborators
func (app *Application) initLoop() error {
	ctrl := app.config.Controller

	sampler := probe.New(time.Duration(ctrl.ProbeTimeout) * time.Second)
	reader := history.NewReader(app.datastore, app.backlog, time.Duration(ctrl.QueryTimeout)*time.Second)

	var recorder controller.Recorder
	if app.datastore != nil {
		recorder = mysqlstore.NewDecisionRepository(app.datastore)
	}

	var lock controller.EvaluationLock
	if app.redisClient != nil {
		lock = controller.NewRedisEvaluationLock(app.redisConn(), "")
	}

	app.loop = controller.NewLoop(ctrl, sampler, reader, app.actuator, recorder, lock)
	return nil
}

func (app *Application) redisConn() *redis.Client {
	if app.redisClient == nil {
		return nil
	}
	return app.redisClient.GetClient()
}
