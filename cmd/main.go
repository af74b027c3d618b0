package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/yungbote/clusterforge-backend/internal/app"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

type Globals struct {
	LogMode string `name:"log-mode" help:"Logger mode (development or production)" env:"LOG_MODE" default:"development"`
	EnvFile string `name:"env-file" help:"Optional dotenv file to load before reading configuration" default:".env"`
}

type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the HTTP API together with the job worker"`
	Worker  WorkerCmd  `cmd:"" help:"Run only the job worker"`
	Migrate MigrateCmd `cmd:"" help:"Create or update the database schema and exit"`
	Deposit DepositCmd `cmd:"" help:"Top up an owner's balance"`
}

type ServeCmd struct{}

func (ServeCmd) Run(g *Globals, log *logger.Logger) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := app.New(ctx, log)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := a.StartJobs(ctx); err != nil {
		return fmt.Errorf("start jobs: %w", err)
	}
	return a.Serve(ctx)
}

type WorkerCmd struct{}

func (WorkerCmd) Run(g *Globals, log *logger.Logger) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := app.New(ctx, log)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := a.StartJobs(ctx); err != nil {
		return fmt.Errorf("start jobs: %w", err)
	}
	log.Info("worker running", "job_dispatch", a.Cfg.JobDispatch)
	<-ctx.Done()
	return nil
}

type MigrateCmd struct{}

func (MigrateCmd) Run(g *Globals, log *logger.Logger) error {
	if err := app.Migrate(log); err != nil {
		return err
	}
	log.Info("schema up to date")
	return nil
}

type DepositCmd struct {
	Owner string `arg:"" help:"Owner id"`
	Cents int64  `arg:"" help:"Amount in cents"`
}

func (d DepositCmd) Run(g *Globals, log *logger.Logger) error {
	owner, err := uuid.Parse(d.Owner)
	if err != nil {
		return fmt.Errorf("owner id: %w", err)
	}
	balance, err := app.Deposit(context.Background(), log, owner, d.Cents)
	if err != nil {
		return err
	}
	log.Info("deposit recorded", "owner_id", owner, "cents", d.Cents, "balance_cents", balance)
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.Close(ctx)
}

func main() {
	var cli CLI
	// The env file is optional; a missing one is not an error.
	_ = godotenv.Load(envFileFromArgs(os.Args[1:]))

	kctx := kong.Parse(&cli,
		kong.Name("clusterforge"),
		kong.Description("Cluster generation backend."),
		kong.UsageOnError(),
	)

	log, err := logger.New(cli.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := kctx.Run(&cli.Globals, log); err != nil {
		log.Error("command failed", "command", kctx.Command(), "error", err)
		log.Sync()
		os.Exit(1)
	}
}

// envFileFromArgs peeks at --env-file before kong parses, so LOG_MODE and
// friends from the file are visible to flag defaults.
func envFileFromArgs(args []string) string {
	for i, a := range args {
		switch {
		case a == "--env-file" && i+1 < len(args):
			return args[i+1]
		case len(a) > len("--env-file=") && a[:len("--env-file=")] == "--env-file=":
			return a[len("--env-file="):]
		}
	}
	return ".env"
}
