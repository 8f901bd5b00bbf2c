package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Srjnnnn/blendgate/pkg/batch"
	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/config"
	"github.com/Srjnnnn/blendgate/pkg/gateway"
	"github.com/Srjnnnn/blendgate/pkg/logger"
	"github.com/Srjnnnn/blendgate/pkg/schema"
)

const (
	resultSuffix = ".result.json"
	errorSuffix  = ".error.json"

	// batchPollInterval paces the watcher's wait for a submitted batch.
	batchPollInterval = 25 * time.Millisecond
)

// FileWatchChannel polls a drop directory for request envelopes. Each
// *.json file is validated against the envelope schema, dispatched, and
// answered with a sibling .result.json or .error.json; the input file is
// removed either way. Unlike HTTP and WebSocket, the watcher is a blocking
// transport: a dropped batch is polled to completion before its result
// file is written.
type FileWatchChannel struct {
	*BaseChannel
	gw       *gateway.Gateway
	dir      string
	interval time.Duration
	waitMax  time.Duration
	stop     context.CancelFunc
	done     chan struct{}
}

// NewFileWatchChannel builds the watcher for cfg's directory and poll
// interval. dir and waitMax come from the resolved workspace config.
func NewFileWatchChannel(cfg config.FileWatchConfig, dir string, waitMax time.Duration, gw *gateway.Gateway) *FileWatchChannel {
	return &FileWatchChannel{
		BaseChannel: NewBaseChannel("filewatch", nil),
		gw:          gw,
		dir:         dir,
		interval:    time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		waitMax:     waitMax,
	}
}

// Start begins polling until ctx is cancelled or Stop is called.
func (c *FileWatchChannel) Start(ctx context.Context) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create watch dir %s: %w", c.dir, err)
	}

	ctx, c.stop = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.setRunning(true)
	logger.InfoCF("filewatch", "watching", map[string]interface{}{
		"dir":         c.dir,
		"interval_ms": c.interval.Milliseconds(),
	})

	go func() {
		defer close(c.done)
		defer c.setRunning(false)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Scan(ctx)
			}
		}
	}()
	return nil
}

// Stop halts polling and waits for an in-flight scan to finish.
func (c *FileWatchChannel) Stop() error {
	if c.stop != nil {
		c.stop()
	}
	if c.done != nil {
		<-c.done
	}
	c.setRunning(false)
	return nil
}

// Scan processes every pending envelope file once. Exposed so tests can
// drive the watcher without the ticker.
func (c *FileWatchChannel) Scan(ctx context.Context) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		logger.WarnCF("filewatch", "scan_failed", map[string]interface{}{
			"dir":   c.dir,
			"error": err,
		})
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if strings.HasSuffix(name, resultSuffix) || strings.HasSuffix(name, errorSuffix) {
			continue
		}
		c.processFile(ctx, filepath.Join(c.dir, name))
	}
}

func (c *FileWatchChannel) processFile(ctx context.Context, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.WarnCF("filewatch", "read_failed", map[string]interface{}{
			"file":  path,
			"error": err,
		})
		return
	}

	base := strings.TrimSuffix(path, ".json")
	logger.InfoCF("filewatch", "processing", map[string]interface{}{
		"file": filepath.Base(path),
	})

	if _, err := schema.ParseEnvelope(raw); err != nil {
		c.writeResponse(base+errorSuffix, errorBody(err))
		os.Remove(path)
		return
	}

	resp, err := dispatchEnvelope(ctx, c.gw, raw)
	if err != nil {
		c.writeResponse(base+errorSuffix, errorBody(err))
		os.Remove(path)
		return
	}

	// Batches and templates come back as submissions; the file caller
	// gets the finished result instead of a handle it cannot poll.
	if id, ok := resp["batch_id"].(string); ok {
		final, werr := c.waitForBatch(ctx, id)
		if werr != nil {
			c.writeResponse(base+errorSuffix, errorBody(werr))
			os.Remove(path)
			return
		}
		resp = final.Wire()
	}

	c.writeResponse(base+resultSuffix, resp)
	os.Remove(path)
}

// waitForBatch polls until the batch completes or the watcher's budget
// runs out.
func (c *FileWatchChannel) waitForBatch(ctx context.Context, id string) (*batch.Result, error) {
	deadline := time.Now().Add(c.waitMax)
	for {
		result, err := c.gw.PollBatch(ctx, id)
		if err != nil {
			return nil, err
		}
		if result.Status == batch.StatusCompleted {
			return result, nil
		}
		if time.Now().After(deadline) {
			return nil, command.NewError(command.KindTimeout,
				"batch %s still running after %s", id, c.waitMax)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(batchPollInterval):
		}
	}
}

func (c *FileWatchChannel) writeResponse(path string, body map[string]interface{}) {
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		logger.WarnCF("filewatch", "encode_failed", map[string]interface{}{
			"file":  path,
			"error": err,
		})
		return
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.WarnCF("filewatch", "write_failed", map[string]interface{}{
			"file":  path,
			"error": err,
		})
	}
}

func errorBody(err error) map[string]interface{} {
	ce, ok := command.AsError(err)
	if !ok {
		ce = command.NewError(command.KindBackendError, "%s", err.Error())
	}
	return map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"kind":    string(ce.Kind),
			"message": ce.Message,
		},
	}
}
