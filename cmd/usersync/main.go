// Command usersync drives the user sync hook from the command line.
package main

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ovaphlow/scanner-portal/internal/usersync"
	"github.com/ovaphlow/scanner-portal/pkg/utilities"
)

var (
	baseURL string
	timeout time.Duration
	verbose bool
	logger  *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "usersync",
	Short: "Sync a signed-in identity provider user into the portal database",
	Long: `usersync plays the part of the browser sync hook.

Example usage:
  usersync sync --token $SESSION_TOKEN --user-id user_123
  printf 'signin user_123 TOKEN\nrerender\nsignout\n' | usersync watch`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadSettings(cmd); err != nil {
			return err
		}
		cfg := utilities.ConfigFromEnv()
		cfg.File = ""
		if verbose {
			cfg.Level = "debug"
		}
		lg, err := utilities.Init(cfg)
		if err != nil {
			return err
		}
		logger = lg.Sugar()
		return nil
	},
}

var (
	token  string
	userID string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fire one sync for a signed-in user and wait for it",
	RunE: func(cmd *cobra.Command, args []string) error {
		if token == "" {
			return fmt.Errorf("--token is required")
		}
		w := newWatcher()
		w.OnSessionChange(usersync.SessionState{
			SignedIn: true,
			User:     &usersync.SessionUser{ID: userID},
			Token:    token,
		})
		w.Wait()
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Read session events from stdin and sync on sign-in",
	Long: `watch reads one session event per line:

  signin <user_id> <token>   a new session with a new user object
  rerender                   the current session observed again
  signout                    the session ended`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := newWatcher()
		session := usersync.NewSession()
		defer w.Attach(session)()
		if err := replay(cmd.InOrStdin(), session); err != nil {
			return err
		}
		w.Wait()
		logger.Infow("watch finished", "fired", w.Fired())
		return nil
	},
}

// settings are the environment defaults for flags the user did not pass.
type settings struct {
	BaseURL string        `env:"PORTAL_BASE_URL" envDefault:"http://localhost:8431"`
	Timeout time.Duration `env:"PORTAL_SYNC_TIMEOUT" envDefault:"10s"`
}

// loadSettings reads .env and the environment, then fills in every flag that
// was not set on the command line.
func loadSettings(cmd *cobra.Command) error {
	_ = godotenv.Load()
	var s settings
	if err := env.Parse(&s); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	if !cmd.Flags().Changed("base-url") {
		baseURL = s.BaseURL
	}
	if !cmd.Flags().Changed("timeout") {
		timeout = s.Timeout
	}
	return nil
}

func newWatcher() *usersync.Watcher {
	return usersync.NewWatcher(usersync.Config{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}, logger)
}

func replay(r io.Reader, session *usersync.Session) error {
	var current usersync.SessionState
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "signin":
			if len(fields) != 3 {
				return fmt.Errorf("signin wants <user_id> <token>, got %q", sc.Text())
			}
			current = usersync.SessionState{
				SignedIn: true,
				User:     &usersync.SessionUser{ID: fields[1]},
				Token:    fields[2],
			}
		case "rerender":
		case "signout":
			current = usersync.SessionState{}
		default:
			return fmt.Errorf("unknown session event %q", fields[0])
		}
		session.Set(current)
	}
	return sc.Err()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "portal base URL (default $PORTAL_BASE_URL or http://localhost:8431)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "request timeout (default $PORTAL_SYNC_TIMEOUT or 10s)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	syncCmd.Flags().StringVar(&token, "token", "", "session token (bearer)")
	syncCmd.Flags().StringVar(&userID, "user-id", "", "user id, for logging")

	rootCmd.AddCommand(syncCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
