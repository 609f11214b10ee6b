// Package main provides the sdgfeed CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sdgstory/sdgfeed/internal/api"
	"github.com/sdgstory/sdgfeed/internal/composer"
	"github.com/sdgstory/sdgfeed/internal/config"
	"github.com/sdgstory/sdgfeed/internal/display"
	"github.com/sdgstory/sdgfeed/internal/feed"
	"github.com/sdgstory/sdgfeed/internal/feedcache"
	"github.com/sdgstory/sdgfeed/internal/mutate"
	"github.com/sdgstory/sdgfeed/internal/viewstate"
	"github.com/sdgstory/sdgfeed/pkg/browser"
	"github.com/sdgstory/sdgfeed/pkg/session"
)

// version is injected at build time via
// -ldflags="-X main.version=$(git describe --tags --always --dirty)".
var version = "dev"

const profile = "default"

// resolveVersion prefers the ldflags-injected version and falls back
// to module build info so binaries installed via `go install ...@vX`
// still report the right version.
func resolveVersion(ldflagsVersion string, info *debug.BuildInfo) string {
	if ldflagsVersion != "dev" {
		return ldflagsVersion
	}
	if info == nil || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// getAPIURL returns the API base URL (overridable for testing).
func getAPIURL(cfg *config.Config) string {
	if url := os.Getenv("SDGFEED_API_URL"); url != "" {
		return url
	}
	return cfg.API.BaseURL
}

// newEnv loads config and builds the session manager plus transport
// the commands share.
func newEnv() (*config.Config, *session.Manager, *api.Client, error) {
	cfg, err := config.Load(config.Dir())
	if err != nil {
		return nil, nil, nil, err
	}
	baseURL := getAPIURL(cfg)
	storage := session.NewStorage(config.Dir())
	flow := session.NewFlow(baseURL)
	manager := session.NewManager(flow, storage, profile)
	client := api.NewClient(baseURL, manager, api.WithTimeout(cfg.API.Timeout))
	return cfg, manager, client, nil
}

// newRootCmd creates the root command for the sdgfeed CLI.
func newRootCmd() *cobra.Command {
	info, _ := debug.ReadBuildInfo()
	rootCmd := &cobra.Command{
		Use:     "sdgfeed",
		Short:   "Browse and interact with The SDG Story feeds",
		Long:    "sdgfeed pages through The SDG Story feeds (posts, videos, reports, jobs, articles, events) and performs like/bookmark/follow actions from the terminal.",
		Version: resolveVersion(version, info),
	}

	rootCmd.SetVersionTemplate("sdgfeed version {{.Version}}\n")

	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newFeedCmd())
	rootCmd.AddCommand(newBookmarksCmd())
	rootCmd.AddCommand(newActCmd("like", "Like an item", mutate.ActionLike))
	rootCmd.AddCommand(newActCmd("unlike", "Remove a like", mutate.ActionUnlike))
	rootCmd.AddCommand(newActCmd("bookmark", "Bookmark an item", mutate.ActionBookmark))
	rootCmd.AddCommand(newActCmd("unbookmark", "Remove a bookmark", mutate.ActionUnbookmark))
	rootCmd.AddCommand(newActCmd("follow", "Follow an item's author", mutate.ActionFollow))
	rootCmd.AddCommand(newActCmd("unfollow", "Unfollow an item's author", mutate.ActionUnfollow))
	rootCmd.AddCommand(newCommentCmd())
	rootCmd.AddCommand(newOpenCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// newAuthCmd creates the auth subcommand tree.
func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the API session",
		Long:  "Log in, refresh, inspect or end the session used for API requests.",
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthRefreshCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthLogoutCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("SDGFEED_PASSWORD")
			}
			if email == "" || password == "" {
				return fmt.Errorf("missing credentials: pass --email and --password (or set SDGFEED_PASSWORD)")
			}

			cfg, manager, _, err := newEnv()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			flow := session.NewFlow(getAPIURL(cfg))
			sess, err := flow.Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := manager.Set(sess); err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as user %s\n", sess.UserID)
			fmt.Fprintf(cmd.OutOrStdout(), "Session saved to: %s\n", config.Dir())
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (or SDGFEED_PASSWORD)")

	return cmd
}

func newAuthRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rotate the session token pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, manager, _, err := newEnv()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			sess, err := manager.Refresh(ctx, "")
			if err != nil {
				if errors.Is(err, session.ErrSessionNotFound) {
					return fmt.Errorf("not logged in (run 'sdgfeed auth login')")
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Session rotated for user %s\n", sess.UserID)
			return nil
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			storage := session.NewStorage(config.Dir())
			sess, err := storage.Load(profile)
			if err != nil {
				if errors.Is(err, session.ErrSessionNotFound) {
					fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
					return nil
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "User: %s\n", sess.UserID)
			fmt.Fprintf(cmd.OutOrStdout(), "Session: %s\n", sess.SessionID)
			if exp, err := sess.AccessExpiry(); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Access token expires: %s\n", exp.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and remove the stored tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, manager, _, err := newEnv()
			if err != nil {
				return err
			}

			storage := session.NewStorage(config.Dir())
			sess, err := storage.Load(profile)
			if err != nil {
				if errors.Is(err, session.ErrSessionNotFound) {
					fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
					return nil
				}
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			flow := session.NewFlow(getAPIURL(cfg))
			if err := flow.Logout(ctx, sess); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: server-side logout failed: %v\n", err)
			}
			if err := manager.Clear(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

// newFeedCmd creates the feed subcommand.
func newFeedCmd() *cobra.Command {
	var kind string
	var category string
	var tab string
	var pages int

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Display a feed",
		Long:  "Page through one of The SDG Story feeds and print the items.",
		RunE: func(cmd *cobra.Command, args []string) error {
			feedKind := feed.Kind(kind)
			if !feedKind.Valid() {
				return fmt.Errorf("invalid kind %q: must be one of post, video, report, job, article, event", kind)
			}

			cfg, _, client, err := newEnv()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			tabs := []composer.Tab{{
				Name:    kind,
				Kind:    feedKind,
				Filters: feed.Filters{Category: category, Tab: tab},
			}}
			view, err := composer.New(client, tabs, composer.WithPageSize(cfg.Feed.PageSize))
			if err != nil {
				return err
			}
			defer view.Close()

			for i := 0; i < pages; i++ {
				merged, err := view.Advance(ctx)
				if err != nil {
					return feedError(err)
				}
				if !merged {
					break
				}
			}

			formatter := display.NewTerminalFormatter()
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatFeed(view.Items()))
			if !view.HasMore() {
				fmt.Fprintln(cmd.OutOrStdout(), "\n-- end of content --")
			}

			rememberView(kind)
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "post", "Feed kind (post, video, report, job, article, event)")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Filter by category")
	cmd.Flags().StringVarP(&tab, "tab", "t", "", "Feed tab (e.g. bookmarks)")
	cmd.Flags().IntVarP(&pages, "pages", "n", 1, "Number of pages to fetch")

	return cmd
}

// newBookmarksCmd creates the bookmarks subcommand.
func newBookmarksCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "bookmarks",
		Short: "Display bookmarks across all feed kinds",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, client, err := newEnv()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			items, err := composer.AggregateBookmarks(ctx, client, nil, limit)
			if err != nil {
				return feedError(err)
			}

			formatter := display.NewTerminalFormatter()
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatFeed(items))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of items to display")

	return cmd
}

// newActCmd creates a mutation subcommand of the form
// `sdgfeed <verb> <kind> <id>`.
func newActCmd(use, short string, action mutate.Action) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <kind> <id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runMutation(feed.Kind(args[0]), args[1], action, nil)
			if err != nil {
				return err
			}
			reportMutation(cmd, result)
			return nil
		},
	}
}

// newCommentCmd creates the comment subcommand.
func newCommentCmd() *cobra.Command {
	var text string

	cmd := &cobra.Command{
		Use:   "comment <kind> <id>",
		Short: "Comment on an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" {
				return fmt.Errorf("missing comment text: pass --text")
			}
			payload := map[string]string{"text": text}
			result, err := runMutation(feed.Kind(args[0]), args[1], mutate.ActionComment, payload)
			if err != nil {
				return err
			}
			reportMutation(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&text, "text", "m", "", "Comment text")

	return cmd
}

// getWebURL returns the public site base URL for item links.
func getWebURL() string {
	if url := os.Getenv("SDGFEED_WEB_URL"); url != "" {
		return url
	}
	return "https://thesdgstory.com"
}

// newOpenCmd creates the open subcommand.
func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <kind> <id>",
		Short: "Open an item on the website",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := feed.Kind(args[0])
			if !kind.Valid() {
				return fmt.Errorf("invalid kind %q: must be one of post, video, report, job, article, event", args[0])
			}
			url := fmt.Sprintf("%s/%s/%s", strings.TrimRight(getWebURL(), "/"), kind.Resource(), args[1])
			if err := browser.Open(url); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opening %s\n", url)
			return nil
		},
	}
}

// runMutation performs a one-shot mutation outside any composed view.
func runMutation(kind feed.Kind, itemID string, action mutate.Action, payload any) (*mutate.Result, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid kind %q: must be one of post, video, report, job, article, event", kind)
	}

	_, _, client, err := newEnv()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dispatcher := mutate.NewDispatcher(client, feedcache.New())
	key := feedcache.NewKey(kind, feed.Filters{})
	result, err := dispatcher.Dispatch(ctx, key, itemID, action, payload)
	if err != nil {
		return nil, feedError(err)
	}
	return result, nil
}

func reportMutation(cmd *cobra.Command, result *mutate.Result) {
	if result.Message != "" {
		fmt.Fprintln(cmd.OutOrStdout(), result.Message)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Done.")
}

// feedError rewrites auth failures into a hint the user can act on.
func feedError(err error) error {
	if api.IsUnauthorized(err) {
		return fmt.Errorf("not authenticated (run 'sdgfeed auth login'): %w", err)
	}
	return err
}

// openViewState opens the configured view-state store. Callers work
// against the storage interface; the close func releases the backing
// file.
func openViewState(cfg *config.Config) (viewstate.Adapter, func() error, error) {
	bolt, err := viewstate.OpenBolt(cfg.State.Path, cfg.State.TTL)
	if err != nil {
		return nil, nil, err
	}
	return bolt, bolt.Close, nil
}

// rememberView persists the last viewed feed so the next invocation
// can offer to resume it. Persistence failures are not worth failing
// the command over.
func rememberView(tab string) {
	cfg, err := config.Load(config.Dir())
	if err != nil {
		return
	}
	store, closeStore, err := openViewState(cfg)
	if err != nil {
		return
	}
	defer func() { _ = closeStore() }()
	_ = store.Save("feed", &viewstate.State{View: "feed", ActiveTab: tab})
}

// newConfigCmd creates the config subcommand.
func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.Dir())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config directory: %s\n", config.Dir())
			fmt.Fprintf(cmd.OutOrStdout(), "API base URL: %s\n", getAPIURL(cfg))
			fmt.Fprintf(cmd.OutOrStdout(), "Page size: %d\n", cfg.Feed.PageSize)
			fmt.Fprintf(cmd.OutOrStdout(), "View state: %s (ttl %s)\n", cfg.State.Path, cfg.State.TTL)

			store, closeStore, err := openViewState(cfg)
			if err == nil {
				defer func() { _ = closeStore() }()
				if st, err := store.Load("feed"); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Last viewed feed: %s\n", st.ActiveTab)
				}
			}
			return nil
		},
	}
}
