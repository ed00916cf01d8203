package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/log"
	"github.com/urfave/cli"

	"github.com/sleetdl/sleet/download"
	"github.com/sleetdl/sleet/internal/logger"
	"github.com/sleetdl/sleet/internal/metainfo"
)

var (
	app = cli.NewApp()
	cfg = download.DefaultConfig
)

func main() {
	app.Version = download.Version
	app.Usage = "downloads files from a peer to peer swarm"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "read configuration from `FILE`",
			Value: "~/.sleet/config.yaml",
		},
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: "enable debug log",
		},
	}
	app.Before = handleBeforeCommand
	app.Commands = []cli.Command{
		{
			Name:      "download",
			Usage:     "download the torrent in FILE",
			ArgsUsage: "FILE",
			Action:    handleDownload,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "dest",
					Usage: "write files under `DIR`",
					Value: ".",
				},
				cli.IntFlag{
					Name:  "port",
					Usage: "TCP port number announced to trackers",
					Value: 6881,
				},
				cli.BoolFlag{
					Name:  "overwrite",
					Usage: "allow opening files that already exist on disk",
				},
				cli.BoolFlag{
					Name:  "seed",
					Usage: "keep announcing after the download completes",
				},
				cli.DurationFlag{
					Name:  "announce-interval",
					Usage: "announce every `DURATION` instead of obeying the tracker",
				},
				cli.IntSliceFlag{
					Name:  "file",
					Usage: "check only file number `N`, repeatable",
				},
			},
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func handleBeforeCommand(c *cli.Context) error {
	if c.GlobalBool("debug") {
		logger.SetDebug()
	}
	loaded, err := download.LoadConfig(c.GlobalString("config"))
	if err != nil {
		return err
	}
	cfg = *loaded
	return nil
}

func handleDownload(c *cli.Context) error {
	arg := c.Args().Get(0)
	if arg == "" {
		return errors.New("torrent file argument is required")
	}
	f, err := os.Open(arg)
	if err != nil {
		return err
	}
	mi, err := metainfo.New(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	m, err := download.New(&mi.Info, download.Options{
		Dest:                  c.String("dest"),
		Overwrite:             c.Bool("overwrite"),
		OnlyFiles:             c.IntSlice("file"),
		Port:                  c.Int("port"),
		Trackers:              mi.AnnounceList,
		ForceAnnounceInterval: c.Duration("announce-interval"),
	}, cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigC)

	completeC := m.NotifyComplete()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			printProgress(m.Stats())
		case <-completeC:
			fmt.Println()
			log.Infoln("download complete")
			if !c.Bool("seed") {
				return nil
			}
			completeC = nil
		case err := <-m.NotifyError():
			fmt.Println()
			return err
		case s := <-sigC:
			fmt.Println()
			log.Noticef("received %s, stopping", s)
			return nil
		}
	}
}

func printProgress(s download.Stats) {
	if !s.InitialCheckDone {
		fmt.Printf("\rchecking existing files: %d pieces done", s.CheckedPieces)
		return
	}
	var pct int64 = 100
	if s.TotalLength > 0 {
		pct = (s.TotalLength - s.BytesLeft) * 100 / s.TotalLength
	}
	fmt.Printf("\r%3d%%  down %5d KiB/s  up %5d KiB/s  peers %3d  left %d      ",
		pct, s.DownloadSpeed/1024, s.UploadSpeed/1024, s.Peers, s.BytesLeft)
}
