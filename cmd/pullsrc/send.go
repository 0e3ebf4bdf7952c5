package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jaywantadh/pullsrc/config"
	"github.com/jaywantadh/pullsrc/internal/channel"
	"github.com/jaywantadh/pullsrc/internal/metadata"
	"github.com/jaywantadh/pullsrc/internal/resource"
	"github.com/jaywantadh/pullsrc/internal/storage"
	"github.com/jaywantadh/pullsrc/internal/transfer"
	"github.com/jaywantadh/pullsrc/pkg/logging"
	"github.com/urfave/cli/v2"
)

// servedResource is a transfer resource that owns an open handle.
type servedResource interface {
	transfer.Resource
	Close() error
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Aliases:   []string{"s"},
		Usage:     "Connect to the puller and serve a file until it is done",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "base address of the puller (overrides server_url)"},
			&cli.StringFlag{Name: "path", Usage: "channel path (overrides upload_path)"},
			&cli.BoolFlag{Name: "secure", Usage: "force a secure channel"},
			&cli.StringFlag{Name: "id", Usage: "serve a staged resource instead of a file"},
			&cli.StringFlag{Name: "name", Usage: "name reported to the puller"},
			&cli.StringFlag{Name: "password", EnvVars: []string{"PULLSRC_PASSWORD"}, Usage: "password of a sealed staged resource"},
			&cli.BoolFlag{Name: "no-history", Usage: "do not record the transfer"},
		},
		Action: func(c *cli.Context) error {
			cfg := *config.Config
			if c.IsSet("url") {
				cfg.ServerURL = c.String("url")
			}
			if c.IsSet("path") {
				cfg.UploadPath = c.String("path")
			}
			if c.Bool("secure") {
				cfg.Secure = true
			}

			var ms *metadata.MetadataStore
			if !c.Bool("no-history") || c.IsSet("id") {
				var err error
				if ms, err = metadata.OpenMetadataStore(cfg.MetadataPath); err != nil {
					return err
				}
				defer ms.Close()
			}

			res, resourceID, err := openResource(c, &cfg, ms)
			if err != nil {
				return err
			}
			defer res.Close()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := &sender{cfg: &cfg, history: ms}
			if c.Bool("no-history") {
				s.history = nil
			}
			result, err := s.run(ctx, res, resourceID)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, string(result))
			return nil
		},
	}
}

func openResource(c *cli.Context, cfg *config.AppConfig, ms *metadata.MetadataStore) (servedResource, string, error) {
	if id := c.String("id"); id != "" {
		meta, err := ms.GetResource(id)
		if err != nil {
			return nil, "", fmt.Errorf("unknown staged resource %s: %w", id, err)
		}
		store, err := storage.NewLocalStorage(cfg.StoragePath)
		if err != nil {
			return nil, "", err
		}
		name := c.String("name")
		if name == "" {
			name = meta.Name
		}
		res, err := resource.OpenStaged(store, id, name, c.String("password"))
		if err != nil {
			return nil, "", err
		}
		return res, id, nil
	}

	if c.NArg() != 1 {
		return nil, "", errors.New("send needs exactly one file or --id")
	}
	res, err := resource.OpenFile(c.Args().First(), c.String("name"))
	if err != nil {
		return nil, "", err
	}
	return res, "", nil
}

// sender runs one transfer and keeps its history record current.
type sender struct {
	cfg     *config.AppConfig
	history *metadata.MetadataStore
}

func (s *sender) run(ctx context.Context, res transfer.Resource, resourceID string) ([]byte, error) {
	endpoint, err := channel.EndpointURL(s.cfg.ServerURL, s.cfg.Secure, s.cfg.UploadPath)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	log := logging.ForTransfer(id)
	record := metadata.TransferRecord{
		ID:         id,
		Endpoint:   endpoint,
		ResourceID: resourceID,
		Name:       res.Name(),
		Size:       res.Size(),
		Status:     string(transfer.StatusIdle),
		StartedAt:  time.Now(),
	}
	s.save(record)

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout+time.Second)
	conn, err := channel.Dial(dialCtx, endpoint,
		channel.WithHeader("X-Transfer-Id", id),
		channel.WithHandshakeTimeout(s.cfg.HandshakeTimeout),
		channel.WithWriteTimeout(s.cfg.WriteTimeout),
		channel.WithMaxFrameSize(s.cfg.MaxFrameSize),
		channel.WithLogger(log),
	)
	cancel()
	if err != nil {
		s.finish(record, transfer.StatusFailed, 0, nil, err)
		return nil, err
	}

	tracker := transfer.NewProgressTracker(log, time.Second)
	tracker.StartTracking(id, res.Name(), res.Size())
	record.Status = string(transfer.StatusActive)
	s.save(record)

	tr := transfer.StartTransfer(ctx, conn, res, tracker.Func(id),
		transfer.WithTransferID(id),
		transfer.WithReadTimeout(s.cfg.ReadTimeout),
		transfer.WithLogger(logging.Entry()),
	)
	result, err := tr.Wait(context.Background())

	final, _ := tracker.FinishTracking(id, tr.Status())
	log.Info("🏁 " + final.String())
	s.finish(record, tr.Status(), tr.Loaded(), result, err)
	return result, err
}

func (s *sender) save(record metadata.TransferRecord) {
	if s.history == nil {
		return
	}
	if err := s.history.PutTransfer(record); err != nil {
		logging.ForTransfer(record.ID).WithError(err).Warn("⚠️ Failed to record transfer")
	}
}

func (s *sender) finish(record metadata.TransferRecord, status transfer.TransferStatus, loaded int64, result []byte, err error) {
	record.Status = string(status)
	record.Loaded = loaded
	record.Result = result
	record.FinishedAt = time.Now()
	if err != nil {
		record.Status = string(transfer.StatusFailed)
		record.Error = err.Error()
	}
	s.save(record)
}
