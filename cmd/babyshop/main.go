package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	html "github.com/gofiber/template/html/v2"

	"babyshop/internal/config"
	"babyshop/internal/http/handlers"
	"babyshop/internal/jobs"
	applog "babyshop/internal/log"
	"babyshop/internal/repos"
	"babyshop/internal/services"
	"babyshop/internal/storage"
)

func main() {
	cfg := config.Load()

	// Structured logs to stdout, plus a rotated file when LOG_FILE is set
	applog.Init(cfg.LogFile)
	defer applog.Sync()

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	bucket, err := storage.NewDiskBucket(cfg.MediaDir, cfg.Bucket, cfg.PublicBaseURL)
	if err != nil {
		log.Fatal(err)
	}

	authSvc, err := services.NewAuthService(cfg.AdminPassword, cfg.SessionTTL)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.AdminPassword == "" {
		log.Printf("[warn] ADMIN_PASSWORD is empty; admin login disabled")
	}

	deps := handlers.NewDeps(db, cfg, authSvc, bucket)

	sweeper := jobs.NewOrphanSweeper(deps.Orphans, repos.NewProductRepo(db), bucket)
	sched, err := jobs.Schedule(cfg.OrphanSweep, sweeper)
	if err != nil {
		log.Fatal(err)
	}

	// Templates & app
	engine := html.New("./web/templates", ".html")
	engine.Reload(true)
	app := handlers.NewApp(deps, engine, "./web/static")

	log.Printf("[static] /static -> ./web/static")
	log.Printf("[static] /media  -> %s", cfg.MediaDir)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("[server] %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Printf("[server] shutting down")

	if sched != nil {
		<-sched.Stop().Done()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("[server] shutdown: %v", err)
	}
}
