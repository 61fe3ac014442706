package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage libraries",
}

var libraryAddCmd = &cobra.Command{
	Use:   "add <name> <path>...",
	Short: "Create a library over one or more directories",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runLibraryAdd,
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List libraries",
	Args:  cobra.NoArgs,
	RunE:  runLibraryList,
}

var libraryRemoveCmd = &cobra.Command{
	Use:   "remove <library-id>",
	Short: "Remove a library and its catalogued books",
	Args:  cobra.ExactArgs(1),
	RunE:  runLibraryRemove,
}

func init() {
	libraryCmd.AddCommand(libraryAddCmd)
	libraryCmd.AddCommand(libraryListCmd)
	libraryCmd.AddCommand(libraryRemoveCmd)
	rootCmd.AddCommand(libraryCmd)
}

func runLibraryAdd(cmd *cobra.Command, args []string) error {
	if libraryStore == nil {
		return errors.New("library store not configured")
	}

	name := args[0]
	var paths []domain.LibraryPath
	for _, p := range args[1:] {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", p, err)
		}
		paths = append(paths, domain.LibraryPath{Path: abs, Enabled: true})
	}

	now := time.Now()
	library := domain.Library{
		ID:        uuid.New().String(),
		Name:      name,
		Paths:     paths,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := libraryStore.Save(context.Background(), library); err != nil {
		return fmt.Errorf("save library: %w", err)
	}

	cmd.Printf("Created library %s (%s) with %d path(s).\n", name, library.ID, len(paths))
	return nil
}

func runLibraryList(cmd *cobra.Command, _ []string) error {
	if libraryStore == nil {
		return errors.New("library store not configured")
	}

	libraries, err := libraryStore.List(context.Background())
	if err != nil {
		return fmt.Errorf("list libraries: %w", err)
	}
	if len(libraries) == 0 {
		cmd.Println("No libraries configured. Use 'lectern library add' to create one.")
		return nil
	}

	for _, lib := range libraries {
		state := "enabled"
		if !lib.Enabled {
			state = "disabled"
		}
		lastScan := "never"
		if !lib.LastScan.IsZero() {
			lastScan = lib.LastScan.Format(time.RFC3339)
		}
		cmd.Printf("%s  %s (%s, last scan %s)\n", lib.ID, lib.Name, state, lastScan)
		for _, p := range lib.Paths {
			marker := " "
			if !p.Enabled {
				marker = "-"
			}
			cmd.Printf("  %s %s\n", marker, p.Path)
		}
	}
	return nil
}

func runLibraryRemove(cmd *cobra.Command, args []string) error {
	if libraryStore == nil {
		return errors.New("library store not configured")
	}

	id := args[0]
	if err := libraryStore.Delete(context.Background(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("library %s not found", id)
		}
		return fmt.Errorf("delete library: %w", err)
	}

	cmd.Printf("Removed library %s.\n", id)
	return nil
}
