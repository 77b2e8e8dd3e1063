package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	tc "go.temporal.io/sdk/client"

	"github.com/stanstork/taskwatch/internal/app"
	"github.com/stanstork/taskwatch/internal/authz"
	"github.com/stanstork/taskwatch/internal/config"
	"github.com/stanstork/taskwatch/internal/engine"
	"github.com/stanstork/taskwatch/internal/models"
	"github.com/stanstork/taskwatch/internal/temporal"
	"github.com/stanstork/taskwatch/internal/temporal/workflows"
)

var rootCmd = &cobra.Command{
	Use:   "taskwatch",
	Short: "Task risk and incident resolution engine",
	Long: `taskwatch keeps event tasks honest: it recomputes risk from due dates,
escalates overdue work, raises at most one alert per recipient per day, and
reactivates paused tasks once the incident blocking them is resolved.`,
	SilenceUsage: true,
}

func main() {
	addPersistentFlags()
	registerCommands()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("no-migrate", false, "do not apply pending migrations before running")
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("no-migrate", rootCmd.PersistentFlags().Lookup("no-migrate"))
}

func registerCommands() {
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(dispatchCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(incidentCmd())
	rootCmd.AddCommand(tokenCmd())
}

func sweepCmd() *cobra.Command {
	var dispatch, remote bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one risk sweep over all open tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote {
				return triggerRemoteSweep(cmd.Context())
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.RunSweep(ctx, engine.TriggerCLI)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if err := printJSON(res); err != nil {
						return err
					}
				} else {
					renderSweep(os.Stdout, res)
				}
				if !dispatch {
					return nil
				}
				drained, err := a.Outbox.DrainAll(ctx)
				if err != nil {
					return err
				}
				if !viper.GetBool("json") {
					renderDrain(os.Stdout, drained)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dispatch, "dispatch", false, "deliver queued notifications after the sweep")
	cmd.Flags().BoolVar(&remote, "temporal", false, "start the sweep workflow on Temporal instead of running locally")
	return cmd
}

func runsCmd() *cobra.Command {
	var limit, days int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				runs, err := a.Engine.SweepHistory(ctx, limit, 0)
				if err != nil {
					return err
				}
				stat, err := a.Engine.SweepStats(ctx, days)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]interface{}{"runs": runs, "stats": stat})
				}
				renderRuns(os.Stdout, runs, stat)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	cmd.Flags().IntVar(&days, "days", 7, "days covered by the statistics")
	return cmd
}

func dispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Deliver every queued notification once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Outbox.DrainAll(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				renderDrain(os.Stdout, res)
				return nil
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, logger, true)
			if err != nil {
				return err
			}
			defer a.Close()
			logger.Info().Str("dialect", string(a.Dialect)).Msg("database is up to date")
			return nil
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Change task state"}
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskCompleteCmd())
	task.AddCommand(taskReportCmd())
	return task
}

func taskAssignCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "assign <task-id>",
		Short: "Assign a task to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			if userID <= 0 {
				return fmt.Errorf("--user required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				task, err := a.Engine.AssignTask(ctx, taskID, userID)
				if err != nil {
					return err
				}
				return printResult(task, func() { renderTasks(os.Stdout, []models.Task{task}) })
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "assignee user id")
	return cmd
}

func taskCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Complete a task and resolve incidents it solves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.CompleteTask(ctx, taskID)
				if err != nil {
					return err
				}
				return printResult(res, func() {
					fmt.Printf("task %d completed=%t, %d incident(s) resolved\n", res.TaskID, res.Completed, res.IncidentsResolved)
				})
			})
		},
	}
}

func taskReportCmd() *cobra.Command {
	var (
		reporter    int64
		description string
	)
	cmd := &cobra.Command{
		Use:   "report <task-id>",
		Short: "Report an incident that blocks a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			var reporterID *int64
			if reporter > 0 {
				reporterID = &reporter
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.ReportIncident(ctx, taskID, reporterID, description)
				if err != nil {
					return err
				}
				return printResult(res, func() {
					fmt.Printf("incident %d reported, task paused=%t\n", res.Incident.ID, res.TaskPaused)
				})
			})
		},
	}
	cmd.Flags().Int64Var(&reporter, "reporter", 0, "reporting user id")
	cmd.Flags().StringVarP(&description, "description", "d", "", "what is blocking the task")
	return cmd
}

func incidentCmd() *cobra.Command {
	inc := &cobra.Command{Use: "incident", Short: "Manage incidents"}
	inc.AddCommand(incidentLinkCmd())
	inc.AddCommand(incidentResolveCmd())
	return inc
}

func incidentLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <incident-id> <solution-task-id>",
		Short: "Link the task whose completion resolves an incident",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			incidentID, err := parseID(args[0])
			if err != nil {
				return err
			}
			solutionID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				incident, err := a.Engine.LinkSolutionTask(ctx, incidentID, solutionID)
				if err != nil {
					return err
				}
				return printResult(incident, func() {
					fmt.Printf("incident %d is %s\n", incident.ID, incident.Status)
				})
			})
		},
	}
}

func incidentResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <incident-id>",
		Short: "Resolve an incident and reactivate its task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			incidentID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				out, err := a.Engine.ResolveIncident(ctx, incidentID)
				if err != nil {
					return err
				}
				return printResult(out, func() {
					fmt.Printf("incident %d resolved, task %d reactivated=%t (%s)\n",
						out.Incident.ID, out.OriginTask.ID, out.Reactivated, out.OriginTask.Status)
				})
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		userID int64
		roles  string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("jwt_secret is not configured")
			}
			if userID <= 0 {
				return fmt.Errorf("--user required")
			}
			var parsed []models.UserRole
			for _, r := range strings.Split(roles, ",") {
				role := models.UserRole(strings.TrimSpace(r))
				if role == "" {
					continue
				}
				if !models.IsValidRole(role) {
					return fmt.Errorf("unknown role %q", role)
				}
				parsed = append(parsed, role)
			}
			token, err := authz.NewAuthenticator(cfg.JWTSecret).IssueToken(userID, parsed, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	cmd.Flags().StringVar(&roles, "roles", string(models.RoleMember), "comma separated roles")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func triggerRemoteSweep(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := tc.Dial(tc.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporal.NewZerologAdapter(logger),
	})
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	defer c.Close()

	taskQueue := cfg.Temporal.TaskQueue
	if taskQueue == "" {
		taskQueue = temporal.DefaultTaskQueue
	}
	run, err := c.ExecuteWorkflow(ctx, tc.StartWorkflowOptions{
		ID:        temporal.SweepWorkflowIDPrefix + strconv.FormatInt(time.Now().Unix(), 10),
		TaskQueue: taskQueue,
	}, workflows.SweepWorkflow, temporal.SweepParams{Trigger: temporal.TriggerManual})
	if err != nil {
		return err
	}
	fmt.Printf("sweep workflow started: %s (run %s)\n", run.GetID(), run.GetRunID())
	return nil
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Logger{}, err
	}
	return cfg, app.NewLogger(cfg.Log, os.Stderr), nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, logger, !viper.GetBool("no-migrate"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func printResult(v any, human func()) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	human()
	return nil
}
