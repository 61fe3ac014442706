package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	readBuffer int
	readPage   int
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read cached book text",
	Long: `Serves chapter listings and text from the canonical cache.
The first read of a file builds its cache; later reads are instant.`,
}

var readTocCmd = &cobra.Command{
	Use:   "toc <file>",
	Short: "Show the chapter listing for a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runReadToc,
}

var readChapterCmd = &cobra.Command{
	Use:   "chapter <file> <index>",
	Short: "Print a chapter (plus buffered neighbours) by index",
	Args:  cobra.ExactArgs(2),
	RunE:  runReadChapter,
}

var readPageCmd = &cobra.Command{
	Use:   "page <file>",
	Short: "Print one page of a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runReadPage,
}

func init() {
	readChapterCmd.Flags().IntVar(&readBuffer, "buffer", 0,
		"number of neighbouring chapters to include on each side")
	readPageCmd.Flags().IntVar(&readPage, "page", 1, "page number (1-based)")
	readCmd.AddCommand(readTocCmd)
	readCmd.AddCommand(readChapterCmd)
	readCmd.AddCommand(readPageCmd)
	rootCmd.AddCommand(readCmd)
}

func runReadToc(cmd *cobra.Command, args []string) error {
	if bookReader == nil {
		return errors.New("reader service not configured")
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	toc, err := bookReader.TableOfContents(context.Background(), path)
	if err != nil {
		return fmt.Errorf("table of contents: %w", err)
	}

	cmd.Printf("%s: %d chapters, %d chars, %d pages\n",
		filepath.Base(path), len(toc.Chapters), toc.TotalLength, toc.TotalPages)
	for i, ch := range toc.Chapters {
		cmd.Printf("%4d  %s (chars %d-%d)\n", i, ch.Title, ch.StartOffset, ch.EndOffset)
	}
	return nil
}

func runReadChapter(cmd *cobra.Command, args []string) error {
	if bookReader == nil {
		return errors.New("reader service not configured")
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	var index int
	if _, err := fmt.Sscanf(args[1], "%d", &index); err != nil {
		return fmt.Errorf("invalid chapter index %q", args[1])
	}

	window, err := bookReader.ChapterWindow(context.Background(), path, index, readBuffer)
	if err != nil {
		return fmt.Errorf("chapter window: %w", err)
	}

	for _, ch := range window.Chapters {
		cmd.Printf("== %s (chapter %d of %d) ==\n", ch.Title, ch.Index, window.TotalChapters)
		cmd.Println(ch.Content)
	}
	return nil
}

func runReadPage(cmd *cobra.Command, args []string) error {
	if bookReader == nil {
		return errors.New("reader service not configured")
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	page, err := bookReader.Page(context.Background(), path, readPage)
	if err != nil {
		return fmt.Errorf("page: %w", err)
	}

	cmd.Printf("== page %d of %d ==\n", page.Page, page.TotalPages)
	cmd.Println(page.Content)
	if page.HasMore {
		cmd.Printf("(continues on page %d)\n", page.Page+1)
	}
	return nil
}
