package cli

import (
	"fmt"
	"time"

	"github.com/harun/convoy/internal/config"
	"github.com/harun/convoy/pkg/session"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored transcripts",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored transcripts",
	RunE:  runSessionsList,
}

var sessionsCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete transcripts older than the configured cleanup age",
	RunE:  runSessionsClean,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCleanCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openStore() (*session.Store, *config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	store, err := session.NewStore(cfg.Session.Dir)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	keys, err := store.List()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println("no transcripts")
		return nil
	}

	for _, key := range keys {
		info, err := store.Stat(key)
		if err != nil {
			fmt.Printf("%s\t(unreadable: %v)\n", key, err)
			continue
		}
		fmt.Printf("%s\t%d bytes\t%s\n", info.Key, info.Size, info.LastModified.Format(time.RFC3339))
	}
	return nil
}

func runSessionsClean(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	cleanup := session.NewCleanup(store, time.Duration(cfg.Session.CleanupAgeHours)*time.Hour)
	return cleanup.CleanupNow()
}
