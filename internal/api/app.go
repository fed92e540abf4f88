package api

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codedrill/codedrill/internal/config"
	"github.com/codedrill/codedrill/internal/executor"
	"github.com/codedrill/codedrill/internal/judge"
	"github.com/codedrill/codedrill/internal/queue"
	"github.com/codedrill/codedrill/internal/repository"
	"github.com/codedrill/codedrill/internal/stats"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	Pool   *pgxpool.Pool
	Queue  *queue.Connection

	Users       *repository.UserRepository
	Problems    *repository.ProblemRepository
	Submissions *repository.SubmissionRepository
	Tasks       *repository.TaskRepository

	Judge *judge.Service
}

// NewApp wires repositories and the judge service for the API process.
// The executor only serves the synchronous dry-run endpoint; asynchronous
// judging happens in the worker process.
func NewApp(cfg *config.Config, pool *pgxpool.Pool, conn *queue.Connection, exec executor.Executor, logger *slog.Logger) *App {
	app := &App{
		Config:      cfg,
		Pool:        pool,
		Queue:       conn,
		Users:       repository.NewUserRepository(pool),
		Problems:    repository.NewProblemRepository(pool),
		Submissions: repository.NewSubmissionRepository(pool),
		Tasks:       repository.NewTaskRepository(pool),
	}

	statsService := stats.NewService(app.Users, app.Problems, logger)
	app.Judge = judge.NewService(
		app.Submissions, app.Problems, app.Users, app.Tasks,
		statsService, exec, logger,
	)

	return app
}
