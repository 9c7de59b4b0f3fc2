package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"canvass/internal/app"
	"canvass/internal/config"
	"canvass/internal/db"
	"canvass/internal/domain"
	"canvass/internal/engine"
	"canvass/internal/invite"
	"canvass/internal/migrate"
	"canvass/internal/repo"
	"canvass/internal/server"
	"canvass/internal/survey"
)

var rootCmd = &cobra.Command{
	Use:   "canvass",
	Short: "Canvass CLI",
	Long: `Canvass runs in-product surveys and manages the organization around them.
- Workspace: your .canvass directory with only the database; configs are stored in the DB and imported explicitly.
- Organization: owns members, invites, surveys, OAuth apps and integrations.
- Members: levels are ordinal (member=1, admin=8, owner=15); a higher level contains the lower ones.
- Invites: sent in batches; inviting a new owner asks for a typed confirmation.
- Surveys: drafts with questions, targeting and appearance; launch -> stop -> resume or archive.
- Event log: diary of changes, view with 'canvass log tail'.`,
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
	viper.SetEnvPrefix("CANVASS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "acting user identifier")
	rootCmd.PersistentFlags().String("org", "", "organization id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
	_ = viper.BindPFlag("org", rootCmd.PersistentFlags().Lookup("org"))
}

func registerCommands() {
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(inviteCmd())
	rootCmd.AddCommand(surveyCmd())
	rootCmd.AddCommand(appCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(integrationCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage organizations"}
	org.AddCommand(orgListCmd())
	org.AddCommand(orgCreateCmd())
	org.AddCommand(orgShowCmd())
	org.AddCommand(orgStatusCmd())
	org.AddCommand(orgUseCmd())
	org.AddCommand(orgDeleteCmd())
	org.AddCommand(orgConfigCmd())
	return org
}

func orgListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListOrgs(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func orgCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg := config.Default(id)
			e := engine.New(conn, cfg)
			o, err := e.InitOrg(cmd.Context(), id, name, viper.GetString("user-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(o)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "organization id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func orgShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.Repo.GetOrg(ctx, e.Config.Org.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	return cmd
}

func orgStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show survey counts, members and pending invites",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				orgID := e.Config.Org.ID
				counts, err := e.Repo.CountSurveysByStatus(ctx, orgID)
				if err != nil {
					return err
				}
				members, err := e.Repo.ListMembers(ctx, orgID)
				if err != nil {
					return err
				}
				invites, err := e.Repo.ListInvites(ctx, orgID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"org_id":          orgID,
					"survey_counts":   counts,
					"member_count":    len(members),
					"pending_invites": len(invites),
				})
			})
		},
	}
	return cmd
}

func orgUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Set current organization for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID := strings.TrimSpace(args[0])
			if orgID == "" {
				return fmt.Errorf("organization id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "CANVASS_ORG", orgID); err != nil {
				return err
			}
			fmt.Printf("Set CANVASS_ORG=%s in %s/.env\n", orgID, workspace)
			return nil
		},
	}
	return cmd
}

func orgDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an organization and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete %s without --yes", args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteOrg(ctx, args[0], viper.GetString("user-id"))
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func orgConfigCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage organization config",
	}
	cfg.AddCommand(orgConfigShowCmd())
	cfg.AddCommand(orgConfigInitCmd())
	cfg.AddCommand(orgConfigImportCmd())
	cfg.AddCommand(orgConfigValidateCmd())
	return cfg
}

func orgConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show organization config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func orgConfigInitCmd() *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default canvass.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(orgID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&orgID, "id", "default-org", "organization id")
	return cmd
}

func orgConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import organization config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			orgID := cfg.Org.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if orgID == "" {
					orgID = e.Config.Org.ID
				}
				if err := e.Repo.UpsertOrgConfig(ctx, orgID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func orgConfigValidateCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a YAML config file (defaults to the workspace canvass.yml)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if filePath != "" {
				_, err = config.FromFile(filePath)
			} else {
				_, err = config.Load(viper.GetString("workspace"))
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	return cmd
}

func memberCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "member", Short: "Manage organization members"}
	cmd.AddCommand(memberListCmd())
	cmd.AddCommand(memberSetLevelCmd())
	cmd.AddCommand(memberRemoveCmd())
	return cmd
}

func memberListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListMembers(ctx, e.Config.Org.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Email", "Level", "Joined"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.UserID, m.Email, domain.LevelName(m.Level), m.JoinedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func memberSetLevelCmd() *cobra.Command {
	var userID, level string
	cmd := &cobra.Command{
		Use:   "set-level",
		Short: "Change a member's level",
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := parseLevel(level)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.SetMemberLevel(ctx, e.Config.Org.ID, userID, lvl, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "target user id")
	cmd.Flags().StringVar(&level, "level", "", "member, admin or owner")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("level")
	return cmd
}

func memberRemoveCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveMember(ctx, e.Config.Org.ID, userID, viper.GetString("user-id"))
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "target user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func inviteCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "invite", Short: "Manage invites"}
	cmd.AddCommand(inviteCreateCmd())
	cmd.AddCommand(inviteListCmd())
	cmd.AddCommand(inviteDeleteCmd())
	cmd.AddCommand(inviteAcceptCmd())
	return cmd
}

func inviteCreateCmd() *cobra.Command {
	var emails []string
	var level, confirm, message string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Send a batch of invites",
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := parseLevel(level)
			if err != nil {
				return err
			}
			batch := invite.Batch{Confirmation: confirm}
			for _, email := range emails {
				batch.Rows = append(batch.Rows, invite.Row{
					TargetEmail: email,
					Level:       lvl,
					Message:     message,
				})
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sent, err := e.CreateInvites(ctx, e.Config.Org.ID, batch, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(sent)
			})
		},
	}
	cmd.Flags().StringSliceVar(&emails, "email", nil, "target email (repeatable)")
	cmd.Flags().StringVar(&level, "level", "member", "member, admin or owner")
	cmd.Flags().StringVar(&confirm, "confirm", "", `confirmation phrase, required when inviting an owner ("send invites")`)
	cmd.Flags().StringVar(&message, "message", "", "optional invite message")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func inviteListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending invites",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListInvites(ctx, e.Config.Org.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Email", "Level", "Expires"})
				for _, inv := range items {
					tw.AppendRow(table.Row{inv.ID, inv.TargetEmail, domain.LevelName(inv.Level), inv.ExpiresAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func inviteDeleteCmd() *cobra.Command {
	var id, email string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Revoke a pending invite by id or email",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (id == "") == (email == "") {
				return fmt.Errorf("exactly one of --id or --email is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if email != "" {
					return e.RevokeInviteByEmail(ctx, e.Config.Org.ID, email, viper.GetString("user-id"))
				}
				return e.DeleteInvite(ctx, e.Config.Org.ID, id, viper.GetString("user-id"))
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "invite id")
	cmd.Flags().StringVar(&email, "email", "", "invited email")
	return cmd
}

func inviteAcceptCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "accept",
		Short: "Accept an invite as the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.AcceptInvite(ctx, id, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "invite id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func surveyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "survey", Short: "Manage surveys"}
	cmd.AddCommand(surveyCreateCmd())
	cmd.AddCommand(surveyListCmd())
	cmd.AddCommand(surveyShowCmd())
	cmd.AddCommand(surveyGateCmd())
	cmd.AddCommand(surveyStatusCmd("launch", engine.SurveyStatusLaunched, "Launch a draft or resume a stopped survey"))
	cmd.AddCommand(surveyStatusCmd("stop", engine.SurveyStatusStopped, "Stop a launched survey"))
	cmd.AddCommand(surveyStatusCmd("archive", engine.SurveyStatusArchived, "Archive a survey"))
	cmd.AddCommand(surveyDeleteCmd())
	return cmd
}

func surveyCreateCmd() *cobra.Command {
	var name, kind, schedule, question, questionType, filePath string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a survey",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := survey.NewDraft()
			if filePath != "" {
				data, err := os.ReadFile(filePath)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &d); err != nil {
					return fmt.Errorf("decode draft: %w", err)
				}
			}
			if name != "" {
				d.Name = name
			}
			if kind != "" {
				d.Kind = survey.SurveyKind(kind)
			}
			if schedule != "" {
				d.Schedule = survey.ScheduleKind(schedule)
			}
			if question != "" {
				d.Questions = append(d.Questions, survey.Question{
					Type:     survey.QuestionType(questionType),
					Question: question,
				})
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateSurvey(ctx, e.Config.Org.ID, d, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "survey name")
	cmd.Flags().StringVar(&kind, "kind", "", "popover, widget, api or announcement")
	cmd.Flags().StringVar(&schedule, "schedule", "", "once, recurring or always")
	cmd.Flags().StringVar(&question, "question", "", "first question text")
	cmd.Flags().StringVar(&questionType, "question-type", "open", "open, link, rating, single_choice or multiple_choice")
	cmd.Flags().StringVar(&filePath, "file", "", "path to a JSON draft")
	return cmd
}

func surveyListCmd() *cobra.Command {
	var status, kind, search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List surveys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListSurveys(ctx, repo.SurveyFilters{
					OrgID:  e.Config.Org.ID,
					Status: status,
					Kind:   kind,
					Search: search,
					Limit:  200,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Kind", "Schedule"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.Name, s.Status, s.Kind, s.Schedule})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&kind, "kind", "", "kind filter")
	cmd.Flags().StringVar(&search, "search", "", "name search")
	return cmd
}

func surveyShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a survey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Repo.GetSurvey(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func surveyGateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate <id>",
		Short: "Check whether a survey passes the submission gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Repo.GetSurvey(ctx, args[0])
				if err != nil {
					return err
				}
				d, err := engine.DraftOf(s)
				if err != nil {
					return err
				}
				if reason := d.BlockedReason(); reason != "" {
					fmt.Println(reason)
					return nil
				}
				fmt.Println("survey is submittable")
				return nil
			})
		},
	}
	return cmd
}

func surveyStatusCmd(use, status, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.SetSurveyStatus(ctx, args[0], status, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func surveyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a survey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteSurvey(ctx, args[0], viper.GetString("user-id"))
			})
		},
	}
	return cmd
}

func appCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "app", Short: "Manage OAuth applications"}
	cmd.AddCommand(appCreateCmd())
	cmd.AddCommand(appListCmd())
	cmd.AddCommand(appRotateCmd())
	cmd.AddCommand(appDeleteCmd())
	return cmd
}

func appCreateCmd() *cobra.Command {
	var name string
	var redirectURIs []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an OAuth application",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				app, secret, err := e.CreateOAuthApp(ctx, e.Config.Org.ID, name, redirectURIs, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				// The plaintext secret is only shown here; a hash is stored.
				return printJSONOrTable(map[string]any{
					"app":           app,
					"client_secret": secret,
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "application name")
	cmd.Flags().StringSliceVar(&redirectURIs, "redirect-uri", nil, "redirect URI (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func appListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List OAuth applications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListOAuthApps(ctx, e.Config.Org.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Client ID", "Created"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Name, a.ClientID, a.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func appRotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate-secret <id>",
		Short: "Rotate an application secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				secret, err := e.RotateOAuthAppSecret(ctx, args[0], viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"client_secret": secret})
			})
		},
	}
	return cmd
}

func appDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an OAuth application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteOAuthApp(ctx, args[0], viper.GetString("user-id"))
			})
		},
	}
	return cmd
}

func keyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "key", Short: "Manage personal API keys"}
	cmd.AddCommand(keyCreateCmd())
	cmd.AddCommand(keyListCmd())
	cmd.AddCommand(keyDeleteCmd())
	return cmd
}

func keyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a personal API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, value, err := e.CreatePersonalAPIKey(ctx, viper.GetString("user-id"), name)
				if err != nil {
					return err
				}
				// The plaintext key is only shown here; a hash is stored.
				return printJSONOrTable(map[string]any{
					"id":         key.ID,
					"name":       key.Name,
					"key":        value,
					"created_at": key.CreatedAt,
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func keyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List personal API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAPIKeys(ctx, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func keyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a personal API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func integrationCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "integration", Short: "Manage integrations"}
	cmd.AddCommand(integrationAddCmd())
	cmd.AddCommand(integrationListCmd())
	cmd.AddCommand(integrationUpdateCmd())
	cmd.AddCommand(integrationRemoveCmd())
	return cmd
}

func integrationAddCmd() *cobra.Command {
	var kind, configJSON string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Connect an integration",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg map[string]any
			if configJSON != "" {
				if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
					return fmt.Errorf("decode config: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := e.CreateIntegration(ctx, e.Config.Org.ID, kind, cfg, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(in)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "integration kind (e.g. slack)")
	cmd.Flags().StringVar(&configJSON, "config", "", "JSON config object")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func integrationListCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List integrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListIntegrations(ctx, e.Config.Org.ID, kind)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "kind filter")
	return cmd
}

func integrationUpdateCmd() *cobra.Command {
	var configJSON string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace an integration's config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg map[string]any
			if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
				return fmt.Errorf("decode config: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := e.UpdateIntegration(ctx, args[0], cfg, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(in)
			})
		},
	}
	cmd.Flags().StringVar(&configJSON, "config", "", "JSON config object")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func integrationRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Disconnect an integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteIntegration(ctx, args[0], viper.GetString("user-id"))
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: surveys, invites, membership changes and more.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Org.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveOrgAndConfig(cmd.Context(), workspace, viper.GetString("org"), viper.GetString("user-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("CANVASS_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("CANVASS_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Canvass API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

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
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveOrgAndConfig(ctx, workspace, viper.GetString("org"), viper.GetString("user-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
}

func parseLevel(in string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(in)) {
	case "member", "1":
		return domain.LevelMember, nil
	case "admin", "8":
		return domain.LevelAdmin, nil
	case "owner", "15":
		return domain.LevelOwner, nil
	default:
		return 0, fmt.Errorf("unknown level %q (member, admin or owner)", in)
	}
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

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
