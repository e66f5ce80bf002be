package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/campusgate/gatelog/internal/engine"
	"github.com/campusgate/gatelog/internal/logging"
	"github.com/campusgate/gatelog/internal/netmon"
	"github.com/campusgate/gatelog/internal/scanwatch"
	"github.com/campusgate/gatelog/internal/statusd"
)

var serveOffline bool

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Run the gate daemon",
	Long: `Run the long-lived gate process.

The daemon watches the scanner drop directory for new payloads, drains
the pending queue on an interval while online, and serves live status
over HTTP and WebSocket.

Connectivity is toggled externally: SIGUSR1 marks the device online,
SIGUSR2 marks it offline.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := logging.NewFile("gatelog", cfg.LogFile)

		db := openStore(cmd)
		defer db.Close()

		mon := netmon.NewManual(cfg.StartOnline && !serveOffline)
		defer mon.Close()

		eng, err := engine.New(db, remoteClient(), mon, engine.Config{
			SyncInterval: cfg.SyncInterval,
			CallTimeout:  cfg.CallTimeout,
			Logger:       logging.NewFile("engine", cfg.LogFile),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating sync engine: %v\n", err)
			os.Exit(1)
		}
		eng.Start()
		defer eng.Stop()

		watcher, err := scanwatch.New(cfg.ScanDir, eng, logging.NewFile("scanwatch", cfg.LogFile))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating scan watcher: %v\n", err)
			os.Exit(1)
		}
		if err := watcher.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting scan watcher: %v\n", err)
			os.Exit(1)
		}
		defer watcher.Stop()

		srv := statusd.NewServer(eng, statusd.Config{
			Addr:   cfg.StatusAddr,
			Logger: logging.NewFile("statusd", cfg.LogFile),
		})
		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting status server: %v\n", err)
			os.Exit(1)
		}
		defer srv.Stop()

		logger.Printf("gate daemon up (device %s, status on %s, scans in %s)",
			eng.DeviceID(), srv.Addr(), cfg.ScanDir)

		connSig := make(chan os.Signal, 1)
		signal.Notify(connSig, syscall.SIGUSR1, syscall.SIGUSR2)
		go func() {
			for sig := range connSig {
				online := sig == syscall.SIGUSR1
				logger.Printf("connectivity signal: online=%v", online)
				mon.Set(online)
			}
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		logger.Printf("shutting down")
		signal.Stop(connSig)
		close(connSig)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveOffline, "offline", false, "start with connectivity marked offline")
	rootCmd.AddCommand(serveCmd)
}
