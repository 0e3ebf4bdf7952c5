package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jaywantadh/pullsrc/config"
	"github.com/jaywantadh/pullsrc/internal/compressor"
	"github.com/jaywantadh/pullsrc/internal/metadata"
	"github.com/jaywantadh/pullsrc/internal/storage"
	"github.com/jaywantadh/pullsrc/pkg/logging"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// shortID abbreviates id for table output.
func shortID(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}

func openStores(cfg *config.AppConfig) (*storage.LocalStorage, *metadata.MetadataStore, error) {
	store, err := storage.NewLocalStorage(cfg.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	ms, err := metadata.OpenMetadataStore(cfg.MetadataPath)
	if err != nil {
		return nil, nil, err
	}
	return store, ms, nil
}

func stageCommand() *cli.Command {
	return &cli.Command{
		Name:      "stage",
		Usage:     "Pack a file into the staging area for a later send --id",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "name reported to the puller (defaults to the file name)"},
			&cli.StringFlag{Name: "password", EnvVars: []string{"PULLSRC_PASSWORD"}, Usage: "seal the staged copy"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("stage needs exactly one file")
			}
			path := c.Args().First()
			name := c.String("name")
			if name == "" {
				name = filepath.Base(path)
			}

			store, ms, err := openStores(config.Config)
			if err != nil {
				return err
			}
			defer ms.Close()

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open file: %w", err)
			}
			defer f.Close()

			opts := storage.PackOptions{
				Compress: config.Config.CompressionEnabled && !compressor.ShouldSkipCompression(name),
				Password: c.String("password"),
			}
			obj, err := store.Put(f, opts)
			if err != nil {
				return err
			}
			meta := metadata.NewResourceMetadata(obj.ID, name, obj.Size, obj.StoredSize, obj.Compressed, obj.Sealed)
			if err := ms.PutResource(meta); err != nil {
				return fmt.Errorf("failed to record staged resource: %w", err)
			}

			logging.Log.WithFields(logrus.Fields{
				"id":     obj.ID,
				"size":   obj.Size,
				"stored": obj.StoredSize,
			}).Infof("🧩 Staged %s", name)
			fmt.Fprintln(c.App.Writer, obj.ID)
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List staged resources",
		Action: func(c *cli.Context) error {
			ms, err := metadata.OpenMetadataStore(config.Config.MetadataPath)
			if err != nil {
				return err
			}
			defer ms.Close()

			resources, err := ms.ListResources()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSIZE\tSTORED\tFLAGS\tSTAGED")
			for _, r := range resources {
				flags := "-"
				switch {
				case r.Compressed && r.Sealed:
					flags = "lz4,sealed"
				case r.Compressed:
					flags = "lz4"
				case r.Sealed:
					flags = "sealed"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", shortID(r.ID, 12), r.Name,
					humanize.IBytes(uint64(r.Size)), humanize.IBytes(uint64(r.StoredSize)), flags,
					humanize.Time(time.Unix(r.CreatedAt, 0)))
			}
			return w.Flush()
		},
	}
}

func unstageCommand() *cli.Command {
	return &cli.Command{
		Name:      "unstage",
		Usage:     "Remove a staged resource",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("unstage needs exactly one id")
			}
			id := c.Args().First()

			store, ms, err := openStores(config.Config)
			if err != nil {
				return err
			}
			defer ms.Close()

			if err := store.Delete(id); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if err := ms.DeleteResource(id); err != nil {
				return err
			}
			logging.Log.Infof("🗑️ Unstaged %s", id)
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show past transfers",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "number of transfers to show"},
		},
		Action: func(c *cli.Context) error {
			ms, err := metadata.OpenMetadataStore(config.Config.MetadataPath)
			if err != nil {
				return err
			}
			defer ms.Close()

			records, err := ms.ListTransfers()
			if err != nil {
				return err
			}
			if limit := c.Int("limit"); limit > 0 && len(records) > limit {
				records = records[:limit]
			}
			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSERVED\tSTARTED\tOUTCOME")
			for _, r := range records {
				outcome := string(r.Result)
				if r.Error != "" {
					outcome = r.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s/%s\t%s\t%s\n", shortID(r.ID, 8), r.Name, r.Status,
					humanize.IBytes(uint64(r.Loaded)), humanize.IBytes(uint64(r.Size)),
					humanize.Time(r.StartedAt), outcome)
			}
			return w.Flush()
		},
	}
}
