package actions

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/taskplan/internal/ctxlog"
	"github.com/vk/taskplan/internal/taskgraph"
)

// S3Upload PUTs a local file to a pre-signed S3 upload URL. Grounded on
// modules/s3's OnRunS3/handleUpload; only the upload action is carried over,
// since download has no typed Output to return it through in this action
// shape.
func S3Upload(ctx context.Context, task *taskgraph.Task) error {
	args := task.Args()
	logger := ctxlog.FromContext(ctx).With("action", "s3_upload", "task", task.ID())

	action := strings.ToLower(stringArg(args, "action"))
	if action != "" && action != "upload" {
		return fmt.Errorf("s3 action %q is not supported, only upload is", action)
	}

	sourcePath := stringArg(args, "source_path")
	uploadURL := stringArg(args, "upload_url")

	file, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file %q: %w", sourcePath, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file stats for %q: %w", sourcePath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, file)
	if err != nil {
		return fmt.Errorf("failed to create s3 upload request: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(sourcePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()

	logger.Info("Uploading file to S3", "source", sourcePath, "size", stat.Size(), "contentType", contentType)

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute s3 upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("s3 upload failed with status: %s", resp.Status)
	}

	logger.Info("Successfully uploaded file", "status", resp.Status)
	return nil
}
