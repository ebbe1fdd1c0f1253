package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"permitline/internal/config"
	"permitline/internal/db"
	"permitline/internal/engine"
	"permitline/internal/genai"
	"permitline/internal/migrate"
	"permitline/internal/repo"
	"permitline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pl",
	Short: "Permitline CLI",
	Long: `Permitline generates permitting, licensing and code-enforcement
configurations for municipalities from their historical data exports.

Typical flow:
- pl project create --name "City of Springfield"  creates a project
- pl upload <project-id> permits.csv              profiles and records CSV exports
- pl research <project-id> --url https://...      gathers public permitting info
- pl analyze <project-id>                         generates the configuration
- pl configuration <project-id>                   prints the result
- pl serve                                        exposes the HTTP API`,
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
	viper.SetEnvPrefix("PERMITLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(uploadCmd())
	rootCmd.AddCommand(researchCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(configurationCmd())
	rootCmd.AddCommand(deployCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Customer", "Status", "Progress", "Created"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.CustomerName, p.Status, p.AnalysisProgress, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var name, customer, product, communityURL string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, name, customer, product, communityURL)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&customer, "customer", "", "customer name")
	cmd.Flags().StringVar(&product, "product", "", "product type")
	cmd.Flags().StringVar(&communityURL, "community-url", "", "community website URL")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var name, customer, product, status string
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Update project fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd := repo.ProjectUpdate{}
			if cmd.Flags().Changed("name") {
				upd.Name = &name
			}
			if cmd.Flags().Changed("customer") {
				upd.CustomerName = &customer
			}
			if cmd.Flags().Changed("product") {
				upd.ProductType = &product
			}
			if cmd.Flags().Changed("status") {
				upd.Status = &status
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProject(ctx, args[0], upd)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&customer, "customer", "", "customer name")
	cmd.Flags().StringVar(&product, "product", "", "product type")
	cmd.Flags().StringVar(&status, "status", "", "project status")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteProject(ctx, args[0])
			})
		},
	}
}

func uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <project-id> <file.csv>...",
		Short: "Upload CSV exports to a project",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var uploads []engine.Upload
				for _, path := range args[1:] {
					f, err := os.Open(path)
					if err != nil {
						return err
					}
					defer f.Close()
					info, err := f.Stat()
					if err != nil {
						return err
					}
					uploads = append(uploads, engine.Upload{
						Filename: filepath.Base(path),
						Size:     info.Size(),
						Data:     f,
					})
				}
				recorded, err := e.UploadFiles(ctx, args[0], uploads)
				for _, f := range recorded {
					fmt.Printf("recorded %s: %d rows, %d columns\n", f.Filename, f.RowCount, len(f.Columns))
				}
				return err
			})
		},
	}
}

func researchCmd() *cobra.Command {
	var url, name string
	cmd := &cobra.Command{
		Use:   "research <project-id>",
		Short: "Fetch community permitting research",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.StartResearch(ctx, args[0], url, name)
				if err != nil {
					return err
				}
				return printJSON(doc)
			})
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "community website URL")
	cmd.Flags().StringVar(&name, "name", "", "community name")
	return cmd
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <project-id>",
		Short: "Generate the configuration from uploaded data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cfg, err := e.RunAnalysis(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("configured: %d record types, %d departments, %d roles\n",
					len(cfg.RecordTypes), len(cfg.Departments), len(cfg.UserRoles))
				if viper.GetBool("json") {
					return printJSON(cfg)
				}
				return nil
			})
		},
	}
}

func configurationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configuration <project-id>",
		Short: "Show the generated configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cfg, err := e.Repo.GetConfiguration(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cfg)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Record Type", "Category", "Fields", "Steps", "Fees", "Docs"})
				for _, rt := range cfg.RecordTypes {
					tw.AppendRow(table.Row{rt.Name, rt.Category, len(rt.FormFields), len(rt.WorkflowSteps), len(rt.Fees), len(rt.RequiredDocuments)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func deployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy <project-id>",
		Short: "Request deployment of the configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Deploy(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var projectID string
	var limit int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Events.List(ctx, projectID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Entity ID"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind, evt.EntityID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events to show")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if addr == "" {
					addr = strings.TrimPrefix(e.Config.Server.Addr, "http://")
				}
				if basePath == "" {
					basePath = e.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
				if err != nil {
					return err
				}
				defer handler.Close()
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Permitline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	e := engine.New(conn, cfg, newGenAIClient(cfg, log), log)
	return fn(ctx, e)
}

// newGenAIClient picks the OpenAI client when a credential is present
// and the canned mock otherwise, so every command works offline.
func newGenAIClient(cfg *config.Config, log *slog.Logger) genai.Client {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = viper.GetString("openai-api-key")
	}
	if apiKey == "" {
		log.Info("no OpenAI credential configured, using canned mock payload")
		return genai.Mock{}
	}
	return genai.NewOpenAI(apiKey, cfg.Generation.Model, cfg.Generation.Timeout, log)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
