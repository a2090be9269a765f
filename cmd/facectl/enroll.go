package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/your-org/faceid/internal/recognition"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <dir>",
	Short: "Bulk-register photos laid out as <dir>/<person name>/<image>",
	Long: `Enroll every image found one level below dir. Each subdirectory name is
used as the person name; files directly in dir are ignored.

Example:
  facectl enroll ./people
  facectl enroll --dry-run ./people`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	enrollCmd.Flags().Bool("dry-run", false, "List what would be enrolled without touching the stores")
}

type enrollItem struct {
	Name string
	Path string
}

// collectEnrollment lists <root>/<name>/<file> entries whose extension is
// in allowed. Entries come back grouped by person in directory order.
func collectEnrollment(root string, allowed []string) ([]enrollItem, error) {
	dirs, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("cannot read folder %s: %w", root, err)
	}

	var items []enrollItem
	for _, d := range dirs {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, d.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("cannot read folder %s: %w", dir, err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(f.Name()))
			if !slices.Contains(allowed, ext) {
				continue
			}
			items = append(items, enrollItem{Name: d.Name(), Path: filepath.Join(dir, f.Name())})
		}
	}
	return items, nil
}

type enrollStats struct {
	registered int
	noFace     int
	failed     []string
}

func runEnroll(cmd *cobra.Command, args []string) error {
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	items, err := collectEnrollment(args[0], cfg.Recognition.AllowedExtensions)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No image files found.")
		return nil
	}

	if dryRun {
		for _, it := range items {
			fmt.Printf("%s\t%s\n", it.Name, it.Path)
		}
		fmt.Printf("%d image(s) would be enrolled\n", len(items))
		return nil
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	bar := progressbar.NewOptions(len(items),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var stats enrollStats
	for _, it := range items {
		if ctx.Err() != nil {
			break
		}
		stats.add(it, enrollOne(cmd, a, it))
		_ = bar.Add(1)
	}
	fmt.Println()

	for _, msg := range stats.failed {
		fmt.Printf("Failed: %s\n", msg)
	}
	fmt.Printf("Registered %d, no face %d, failed %d\n", stats.registered, stats.noFace, len(stats.failed))
	return ctx.Err()
}

func enrollOne(cmd *cobra.Command, a *app, it enrollItem) error {
	data, err := os.ReadFile(it.Path)
	if err != nil {
		return err
	}
	outcome, err := a.svc.Process(cmd.Context(), recognition.Upload{FileName: filepath.Base(it.Path), Data: data}, it.Name)
	if err != nil {
		return err
	}
	if !outcome.Success {
		return errNoFace
	}
	return nil
}

var errNoFace = errors.New(recognition.MsgNoFace)

func (s *enrollStats) add(it enrollItem, err error) {
	switch {
	case err == nil:
		s.registered++
	case errors.Is(err, errNoFace):
		s.noFace++
	default:
		s.failed = append(s.failed, fmt.Sprintf("%s (%s): %v", it.Path, it.Name, err))
	}
}
