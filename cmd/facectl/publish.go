package main

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/queue"
)

var publishCmd = &cobra.Command{
	Use:   "publish <image>",
	Short: "Publish an image.received event for the worker",
	Long: `Publish an image.received event carrying the image as base64. With --name
the worker registers the face under that name instead of identifying it.`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().String("name", "", "Register the face under this name")
	publishCmd.Flags().String("user", "", "user_id to attach to the event")
}

// imageReceived builds the event payload for one local image file.
func imageReceived(path string, data []byte, name, userID string) models.ImageReceivedData {
	fileName := filepath.Base(path)
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName)))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return models.ImageReceivedData{
		ImageID:   uuid.NewString(),
		ImageData: base64.StdEncoding.EncodeToString(data),
		FileName:  fileName,
		FileSize:  int64(len(data)),
		MimeType:  mimeType,
		UserID:    userID,
		Name:      name,
	}
}

func runPublish(cmd *cobra.Command, args []string) error {
	name, err := cmd.Flags().GetString("name")
	if err != nil {
		return err
	}
	userID, err := cmd.Flags().GetString("user")
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	conn, err := queue.Connect(cfg.NATS, "facectl")
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := cmd.Context()
	if err := conn.EnsureTopology(ctx); err != nil {
		return err
	}

	payload := imageReceived(args[0], data, name, userID)
	eventID, err := queue.NewPublisher(conn).Publish(ctx, models.RoutingImageReceived, payload)
	if err != nil {
		return err
	}
	fmt.Printf("Published %s event_id=%s image_id=%s\n", models.RoutingImageReceived, eventID, payload.ImageID)
	return nil
}
