package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/appgen/core"
	logsvc "github.com/trezcool/appgen/services/logger"
	"github.com/trezcool/appgen/storage/database"
	inmemdb "github.com/trezcool/appgen/storage/database/inmem"
	redisrepos "github.com/trezcool/appgen/storage/database/redis"
	sqlxrepos "github.com/trezcool/appgen/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	cli := commandLine{out: os.Stdout}

	// set up job store
	switch conf.Store.Backend {
	case "postgres":
		db, err := database.OpenX(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
		}
		defer func() { _ = db.Close() }()
		cli.db = db.DB
		cli.jobs = sqlxrepos.NewJobRepository(db)
	case "redis":
		rdb, err := redisrepos.Open(context.Background(), conf.Redis)
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening redis: %v", err), err)
		}
		defer func() { _ = rdb.Close() }()
		cli.jobs = redisrepos.NewJobRepository(rdb, conf.Redis.KeyPrefix)
	default:
		// an in-memory store is per process, there is never any history to show
		db, _ := inmemdb.Open()
		cli.jobs = inmemdb.NewJobRepository(db)
	}

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}
