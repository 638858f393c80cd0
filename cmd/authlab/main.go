package main

import (
	"os"

	"github.com/pterm/pterm"

	"github.com/brizzai/authlab/internal/auth/providers"
	"github.com/brizzai/authlab/internal/config"
	"github.com/brizzai/authlab/internal/logger"
	"github.com/brizzai/authlab/internal/requester"
	"github.com/brizzai/authlab/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	Execute()
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "authlab",
	Short: "OAuth 2.0 sign-in and session lifecycle lab",
	Long: `authlab signs you in with Discord, GitHub or Google using the authorization code flow,
keeps the resulting session fresh, and logs you out after a period of inactivity.

Run "authlab serve" to start the token service and "authlab login" to sign in.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the token service (POST /oauth/token, POST /oauth/verify)",
	RunE:  runServe,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and open the session dashboard",
	RunE:  runLogin,
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List supported providers and their configuration state",
	RunE:  runProviders,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		pterm.Info.Println(config.GetVersionInfo())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	// Place version check in PreRun to ensure flags are parsed first
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			pterm.Info.Println(config.GetVersionInfo())
			os.Exit(0)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	config.InitFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version information")

	serveCmd.Flags().Bool("embedded-store", false, "Serve an in-memory users/tokens store under /store")
	loginCmd.Flags().Bool("local", false, "Run the token exchange in-process instead of calling session.token_service_url")
	loginCmd.Flags().Bool("no-browser", false, "Print the authorization URL instead of opening a browser")

	rootCmd.AddCommand(serveCmd, loginCmd, providersCmd, versionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	if embedded, _ := cmd.Flags().GetBool("embedded-store"); embedded {
		cfg.Store.Embedded = true
	}
	if err := logger.InitLogger(&cfg.Logging); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	app := fx.New(
		fx.WithLogger(logger.FxLogger),
		fx.Supply(cfg),
		requester.Module,
		server.Module,
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func runProviders(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	data := pterm.TableData{{"ID", "Name", "Client ID", "Secret", "Scopes", "Token URL"}}
	for _, p := range providers.NewRegistry(cfg).List() {
		data = append(data, []string{
			string(p.ID),
			p.Name,
			configured(p.ClientID != ""),
			configured(p.HasCredentials()),
			p.ScopeString(),
			p.TokenURL,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	pterm.Info.Printfln("Redirect URL: %s", cfg.RedirectURL())
	if missing := cfg.MissingCredentials(); len(missing) > 0 {
		pterm.Warning.Printfln("%s provider(s) cannot exchange codes until credentials are set", pterm.Yellow(len(missing)))
	}
	return nil
}

func configured(ok bool) string {
	if ok {
		return pterm.LightGreen("set")
	}
	return pterm.Red("missing")
}
