package main // Entry point package

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"
    "golang.org/x/sync/errgroup"

    "github.com/iliyamo/event-seating/internal/auth"
    "github.com/iliyamo/event-seating/internal/collab"
    "github.com/iliyamo/event-seating/internal/config"
    "github.com/iliyamo/event-seating/internal/database"
    "github.com/iliyamo/event-seating/internal/handler"
    "github.com/iliyamo/event-seating/internal/queue"
    "github.com/iliyamo/event-seating/internal/repository"
    "github.com/iliyamo/event-seating/internal/router"
)

func main() {
    // .env is optional; real deployments inject environment directly.
    _ = godotenv.Load()
    cfg := config.Load()

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("database: %v", err)
    }
    defer db.Close()

    // Redis is optional: without it rate limiting and snapshot caching
    // degrade to pass-through.
    rdb := config.NewRedisClient()
    if rdb == nil {
        log.Printf("redis unavailable; rate limiting and caching disabled")
    }

    repo := repository.NewChartRepo(db)
    verifier := auth.NewVerifier(cfg.RoomTokenSecret)
    publisher := queue.NewPublisher()
    hub := collab.NewHub(repo, verifier, publisher,
        time.Duration(cfg.OptimizeBudgetMS)*time.Millisecond)

    seating := handler.NewSeatingHandler(repo, hub, verifier, cfg.RoomTokenSecret,
        time.Duration(cfg.RoomTokenTTLMin)*time.Minute)

    e := echo.New()
    e.HideBanner = true
    router.RegisterRoutes(e)
    router.RegisterSeating(e, seating, cfg.JWTSecret, rdb)

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    g, ctx := errgroup.WithContext(ctx)
    g.Go(func() error {
        addr := ":" + cfg.Port
        log.Printf("listening on %s (env=%s)", addr, cfg.Env)
        // ErrServerClosed is the normal outcome of a graceful Shutdown,
        // not a failure.
        if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
            return err
        }
        return nil
    })
    g.Go(func() error {
        // Development stand-in for the notification collaborator.
        return queue.StartMutationConsumer(ctx)
    })
    g.Go(func() error {
        <-ctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        return e.Shutdown(shutdownCtx)
    })

    if err := g.Wait(); err != nil {
        log.Fatal(err)
    }
}
