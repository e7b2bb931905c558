package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"planline/internal/app"
	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pl",
	Short: "Planline CLI",
	Long: `Planline turns a floor plan drawing into a low-current installation design.
The pipeline has four stages:
- ingest: parse the drawing (JSON or DXF) into rooms, openings and an optional hub.
- place: put devices into rooms (quotas split by area, fixtures sized by the lumen method).
- route: cable every device to the hub along room walls, penalizing wall crossings.
- export: write deliverables (dxf, svg, pdf, json).
Every run is recorded as a job; stage failures land on the job record, not on stderr.
Tunables live in planline.yml in the workspace.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PLANLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().StringP("project", "p", "default", "project id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(placeCmd())
	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

// prefFlags collects the placement and export preferences shared by the
// stage commands.
type prefFlags struct {
	quotas          []string
	perRoom         []string
	autoFixtures    bool
	targetLux       float64
	efficacy        float64
	includeAllRooms bool
	note            string
	formats         []string
}

func (f *prefFlags) add(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.quotas, "quota", []string{}, "device quota, type=count (repeatable)")
	cmd.Flags().StringArrayVar(&f.perRoom, "per-room", []string{}, "per-room count, room:type=count (repeatable)")
	cmd.Flags().BoolVar(&f.autoFixtures, "auto-fixtures", false, "size fixture counts from the lumen method")
	cmd.Flags().Float64Var(&f.targetLux, "target-lux", 0, "illuminance target in lux")
	cmd.Flags().Float64Var(&f.efficacy, "efficacy", 0, "fixture efficacy in lm/W")
	cmd.Flags().BoolVar(&f.includeAllRooms, "include-all-rooms", false, "also place devices in corridor and utility rooms")
	cmd.Flags().StringVar(&f.note, "note", "", "free-form preferences note, parsed for lighting hints")
}

func (f *prefFlags) addFormats(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.formats, "format", []string{}, "export format (repeatable, default all)")
}

func (f *prefFlags) prefs() (engine.Preferences, error) {
	quotas, err := parseCounts(f.quotas)
	if err != nil {
		return engine.Preferences{}, fmt.Errorf("--quota: %w", err)
	}
	perRoom, err := parsePerRoom(f.perRoom)
	if err != nil {
		return engine.Preferences{}, fmt.Errorf("--per-room: %w", err)
	}
	prefs := engine.Preferences{
		Quotas:          quotas,
		PerRoom:         perRoom,
		AutoFixtures:    f.autoFixtures,
		IncludeAllRooms: f.includeAllRooms,
		Formats:         f.formats,
		Text:            f.note,
	}
	prefs.Lighting.TargetLux = f.targetLux
	prefs.Lighting.EfficacyLmPerW = f.efficacy
	return prefs, nil
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a floor plan drawing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				job, err := e.Run(ctx, engine.RunOptions{
					ProjectID: viper.GetString("project"),
					Stages:    []string{domain.StageIngest},
					Filename:  filepath.Base(args[0]),
					Content:   content,
				})
				if err != nil {
					return err
				}
				return printJob(job)
			})
		},
	}
	return cmd
}

func placeCmd() *cobra.Command {
	var flags prefFlags
	cmd := &cobra.Command{
		Use:   "place",
		Short: "Place devices into the ingested plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, err := flags.prefs()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				job, err := e.Run(ctx, engine.RunOptions{
					ProjectID: viper.GetString("project"),
					Stages:    []string{domain.StagePlace},
					Prefs:     prefs,
				})
				if err != nil {
					return err
				}
				return printJob(job)
			})
		},
	}
	flags.add(cmd)
	return cmd
}

func routeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Route cabling from every device to the hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				job, err := e.Run(ctx, engine.RunOptions{
					ProjectID: viper.GetString("project"),
					Stages:    []string{domain.StageRoute},
				})
				if err != nil {
					return err
				}
				return printJob(job)
			})
		},
	}
	return cmd
}

func exportCmd() *cobra.Command {
	var flags prefFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export deliverables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				job, err := e.Run(ctx, engine.RunOptions{
					ProjectID: viper.GetString("project"),
					Stages:    []string{domain.StageExport},
					Prefs:     engine.Preferences{Formats: flags.formats},
				})
				if err != nil {
					return err
				}
				return printJob(job)
			})
		},
	}
	flags.addFormats(cmd)
	return cmd
}

func runCmd() *cobra.Command {
	var flags prefFlags
	var stages []string
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run the full pipeline on a drawing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, err := flags.prefs()
			if err != nil {
				return err
			}
			opts := engine.RunOptions{
				ProjectID: viper.GetString("project"),
				Stages:    stages,
				Prefs:     prefs,
			}
			if len(args) == 1 {
				content, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				opts.Filename = filepath.Base(args[0])
				opts.Content = content
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				job, err := e.Run(ctx, opts)
				if err != nil {
					return err
				}
				return printJob(job)
			})
		},
	}
	flags.add(cmd)
	flags.addFormats(cmd)
	cmd.Flags().StringArrayVar(&stages, "stage", []string{}, "stage to run (repeatable, default all)")
	return cmd
}

func jobCmd() *cobra.Command {
	job := &cobra.Command{Use: "job", Short: "Inspect jobs"}
	job.AddCommand(jobShowCmd())
	job.AddCommand(jobListCmd())
	job.AddCommand(jobEventsCmd())
	return job
}

func jobEventsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events <id>",
		Short: "Show a job's event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				evts, err := e.JobEvents(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Payload"})
				for _, ev := range evts {
					tw.AppendRow(table.Row{ev.TS, ev.Type, string(ev.Payload)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "max events")
	return cmd
}

func jobShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				j, err := e.GetJob(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	return cmd
}

func jobListCmd() *cobra.Command {
	var limit int
	var allProjects bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID := viper.GetString("project")
				if allProjects {
					projectID = ""
				}
				jobs, err := e.ListJobs(ctx, projectID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Project", "Status", "Stages", "Error", "Updated"})
				for _, j := range jobs {
					tw.AppendRow(table.Row{j.ID, j.ProjectID, j.Status, strings.Join(j.Stages, ","), j.ErrorKind, j.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max jobs to list")
	cmd.Flags().BoolVar(&allProjects, "all", false, "list jobs across all projects")
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Inspect projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectStateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project and its job history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if err := e.DeleteProject(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("project %s deleted\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Projects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Source", "Created"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Source, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the project's pipeline state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID := viper.GetString("project")
				st, ok := e.ProjectState(projectID)
				if !ok {
					return fmt.Errorf("project %s has no pipeline state, run ingest first", projectID)
				}
				return printJSONOrTable(st)
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect planline.yml",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

// loadConfigArg reads the given config file, or the workspace planline.yml
// when no file is named.
func loadConfigArg(args []string) (*config.Config, error) {
	if len(args) == 1 {
		return config.FromFile(args[0])
	}
	return config.Load(viper.GetString("workspace"))
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [file]",
		Short: "Show loaded config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigArg(args)
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigArg(args)
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(sctx)
				}()
				fmt.Printf("Serving Planline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func printJob(j domain.Job) error {
	if viper.GetBool("json") {
		return printJSON(j)
	}
	fmt.Printf("Job %s (%s): %s\n", j.ID, strings.Join(j.Stages, ","), j.Status)
	if j.Status == domain.JobError {
		fmt.Printf("  %s: %s\n", j.ErrorKind, j.ErrorText)
	}
	for _, stage := range j.Stages {
		out, ok := j.Outputs[stage]
		if !ok {
			continue
		}
		fmt.Printf("  %s: %s\n", stage, string(out))
	}
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseCounts(values []string) (map[string]int, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]int, len(values))
	for _, v := range values {
		key, raw, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("%q is not type=count", v)
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not type=count", v)
		}
		out[key] = n
	}
	return out, nil
}

func parsePerRoom(values []string) (map[string]map[string]int, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]map[string]int)
	for _, v := range values {
		room, rest, ok := strings.Cut(v, ":")
		if !ok {
			return nil, fmt.Errorf("%q is not room:type=count", v)
		}
		devType, raw, ok := strings.Cut(rest, "=")
		if !ok {
			return nil, fmt.Errorf("%q is not room:type=count", v)
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not room:type=count", v)
		}
		if out[room] == nil {
			out[room] = make(map[string]int)
		}
		out[room][devType] = n
	}
	return out, nil
}
