package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/internal/session"
	"github.com/parley-ai/parley/internal/storage"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect persisted conversation state",
	Long:  `Inspect and manage the conversation sessions parley has persisted.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known sessions",
	RunE:  runSessionsList,
}

var sessionsShowLimit int

var sessionsShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show one session's metadata and transcript tail",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear <key>",
	Short: "Delete a session's transcript and metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsClear,
}

func init() {
	sessionsShowCmd.Flags().IntVar(&sessionsShowLimit, "limit", 20, "Max transcript turns to print (0 = all)")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsClearCmd)
}

// openSessionStore builds a read-write store over the configured data dir.
func openSessionStore() (*session.Store, error) {
	workDir, err := GetWorkDir("")
	if err != nil {
		return nil, err
	}
	appConfig, err := config.Load(workDir)
	if err != nil {
		return nil, err
	}

	st := storage.New(config.ResolveDataDir(appConfig.DataDir))
	return session.NewStore(st, sessionOptions(appConfig)), nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, err := openSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	metas := store.ListMetas(context.Background())
	if len(metas) == 0 {
		fmt.Println("No sessions.")
		return nil
	}

	fmt.Printf("%-50s %9s %12s  %s\n", "KEY", "MESSAGES", "COMPACTIONS", "LAST ACTIVITY")
	for _, meta := range metas {
		fmt.Printf("%-50s %9d %12d  %s\n",
			meta.Key,
			meta.MessageCount,
			meta.CompactionCount,
			time.UnixMilli(meta.LastActivityAt).Format(time.RFC3339),
		)
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store, err := openSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	key := args[0]

	meta, ok := store.Meta(ctx, key)
	if !ok {
		return fmt.Errorf("no session for key %q", key)
	}

	fmt.Printf("Key:          %s\n", meta.Key)
	fmt.Printf("Created:      %s\n", time.UnixMilli(meta.CreatedAt).Format(time.RFC3339))
	fmt.Printf("Last active:  %s\n", time.UnixMilli(meta.LastActivityAt).Format(time.RFC3339))
	fmt.Printf("Messages:     %d\n", meta.MessageCount)
	fmt.Printf("Compactions:  %d\n", meta.CompactionCount)

	if expired, reason := store.CheckExpiry(ctx, key); expired {
		fmt.Printf("Expired:      yes (%s)\n", reason)
	}

	turns := store.History(ctx, key, sessionsShowLimit)
	if len(turns) == 0 {
		return nil
	}

	fmt.Println()
	for _, turn := range turns {
		line := turn.Content
		if len(turn.Images) > 0 {
			line = fmt.Sprintf("%s [%d image(s)]", line, len(turn.Images))
		}
		fmt.Printf("%-10s %s\n", turn.Role+":", line)
	}
	return nil
}

func runSessionsClear(cmd *cobra.Command, args []string) error {
	store, err := openSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	key := args[0]
	if err := store.Clear(context.Background(), key); err != nil {
		return err
	}

	fmt.Printf("Cleared %s\n", key)
	return nil
}
