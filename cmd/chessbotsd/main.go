package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Comet-Robotics/chessbots-server-sub000/config"
	"github.com/Comet-Robotics/chessbots-server-sub000/engine"
	"github.com/Comet-Robotics/chessbots-server-sub000/messaging"
	"github.com/Comet-Robotics/chessbots-server-sub000/robotstate"
	"github.com/Comet-Robotics/chessbots-server-sub000/store"
	"github.com/Comet-Robotics/chessbots-server-sub000/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "chessbots.yaml", "path to config file")
	debug := flag.Bool("debug", false, "record call stacks on robot updates")
	flag.Parse()

	if *showVersion {
		fmt.Println("chessbotsd", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("chessbotsd: database open (%s)", cfg.Database.Driver)

	// Redis
	var cache robotstate.Cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("chessbotsd: redis not available (%v), running without cache", err)
	} else {
		log.Printf("chessbotsd: redis connected (%s)", cfg.Redis.Address)
		cache = robotstate.NewRedisStore(redisClient)
	}
	cancel()
	defer redisClient.Close()

	robotState := robotstate.NewManager(db, cache)

	// Game link
	var msgClient *messaging.Client
	if cfg.Messaging.Backend != "" {
		msgClient = messaging.NewClient(&cfg.Messaging)
		if err := msgClient.Connect(); err != nil {
			log.Printf("chessbotsd: messaging connect failed (%v)", err)
		} else {
			log.Printf("chessbotsd: messaging connected (%s)", cfg.Messaging.Backend)
		}
		defer msgClient.Close()
	}

	eng, err := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		RobotState: robotState,
		MsgClient:  msgClient,
		Debug:      *debug,
	})
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	if err := eng.Start(); err != nil {
		log.Fatalf("engine start: %v", err)
	}
	defer eng.Stop()

	watcher := config.NewWatcher(cfg, *configPath)
	watcher.OnReload = func(*config.Config) {
		eng.ReconfigureMessaging()
	}
	if err := watcher.Start(); err != nil {
		log.Printf("chessbotsd: config watch disabled: %v", err)
	}
	defer watcher.Stop()

	// Web server
	handler, stopWeb := www.NewRouter(eng)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("chessbotsd: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("chessbotsd: ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("chessbotsd: shutting down...")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("chessbotsd: stopped")
}
