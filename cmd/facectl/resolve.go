package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/recognition"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image>",
	Short: "Identify the face in an image against the stored gallery",
	Long: `Identify the most confident face in an image. An accepted match is
enrolled as an additional signature of the matched person unless
re-enrollment is disabled in the config.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResolve(cmd, args[0], "")
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <name> <image>",
	Short: "Register the face in an image under a name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResolve(cmd, args[1], args[0])
	},
}

func init() {
	rootCmd.AddCommand(identifyCmd, registerCmd)
}

func runResolve(cmd *cobra.Command, path, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	outcome, err := a.svc.Process(ctx, recognition.Upload{FileName: filepath.Base(path), Data: data}, name)
	if err != nil {
		return err
	}
	return printOutcome(outcome)
}

func printOutcome(o *models.Outcome) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(o)
}
