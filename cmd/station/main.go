package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/sort.station/internal/actuator"
	"github.com/banshee-data/sort.station/internal/api"
	"github.com/banshee-data/sort.station/internal/archive"
	"github.com/banshee-data/sort.station/internal/config"
	"github.com/banshee-data/sort.station/internal/db"
	"github.com/banshee-data/sort.station/internal/fsutil"
	"github.com/banshee-data/sort.station/internal/overlay"
	"github.com/banshee-data/sort.station/internal/serialmux"
	"github.com/banshee-data/sort.station/internal/station"
	"github.com/banshee-data/sort.station/internal/timeutil"
	"github.com/banshee-data/sort.station/internal/version"
)

var (
	configPath      = flag.String("config", "", "Path to the station JSON config (default "+config.DefaultConfigPath+" if present)")
	envFile         = flag.String("env-file", ".env", "Optional .env file with STATION_* overrides")
	devMode         = flag.Bool("dev", false, "Run with a simulated arm and replayed or synthetic frames")
	replayDir       = flag.String("replay-dir", "", "Directory of still images to use instead of the camera")
	listen          = flag.String("listen", "", "Listen address (overrides config)")
	port            = flag.String("port", "", "Serial port of the sorting arm (overrides config)")
	disableActuator = flag.Bool("disable-actuator", false, "Run without the sorting arm; every command is dropped")
	cameraDevice    = flag.String("camera", "", "Camera index or stream URL (overrides config)")
	inferenceURL    = flag.String("inference-url", "", "Detector endpoint (overrides config)")
	dbPath          = flag.String("db", "", "History database path (overrides config)")
	disableLive     = flag.Bool("disable-live", false, "Do not run the live overlay loop")
	showVersion     = flag.Bool("version", false, "Print version and exit")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n       %s [flags] migrate <up|down|status>\n\n", os.Args[0], os.Args[0])
	flag.PrintDefaults()
}

// Main
func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := config.LoadEnv(*envFile); err != nil {
		log.Fatalf("%v", err)
	}
	cfg, err := loadConfig(*configPath, os.Getenv, currentOverrides())
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if flag.NArg() > 0 {
		if flag.Arg(0) != "migrate" {
			usage()
			os.Exit(2)
		}
		if err := db.RunMigrateCommand(flag.Args()[1:], cfg.GetDBPath(), os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	log.Printf("starting %s", version.String())
	clock := timeutil.RealClock{}

	source, err := openSource(cfg, *devMode, *replayDir, clock)
	if err != nil {
		log.Fatalf("failed to open frame source: %v", err)
	}

	peer, armMux := openPeer(cfg, *devMode, *disableActuator)
	actions := cfg.GetActions()
	dispatcher := actuator.NewDispatcher(peer, actions)
	log.Printf("sorting arm: %s", dispatcher.Describe())

	history, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer history.Close()

	archiver := archive.New(fsutil.OSFileSystem{}, cfg.GetArchiveOptions())
	if err := archiver.Init(); err != nil {
		log.Fatalf("failed to prepare archive: %v", err)
	}

	st, err := station.New(station.Config{
		Source:         source,
		Detector:       newDetector(cfg, *devMode, *inferenceURL != ""),
		Actions:        actions,
		Dispatcher:     dispatcher,
		Archiver:       archiver,
		History:        history,
		Clock:          clock,
		NoticeDuration: cfg.GetNoticeDuration(),
	})
	if err != nil {
		log.Fatalf("failed to create station: %v", err)
	}

	// Create a wait group for the HTTP server, serial monitor, and overlay routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if armMux != nil {
		// run the monitor routine to manage IO on the serial port
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := armMux.Monitor(ctx); err != nil && err != context.Canceled {
				log.Printf("failed to monitor serial port: %v", err)
			}
			log.Print("monitor routine terminated")
		}()

		// log and count what the arm prints
		counter := &serialmux.LineCounter{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serialmux.Watch(ctx, armMux, serialmux.LogLine, counter.Handle)
			log.Printf("serial watch terminated, lines seen: %v", counter.Counts())
		}()
	} else {
		armMux = serialmux.NewDisabledSerialMux()
	}

	hub := api.NewLiveHub()
	if !*disableLive {
		loop := st.NewOverlay(hub, overlay.WithInterval(cfg.GetOverlayInterval()))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := loop.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("overlay loop stopped: %v", err)
			}
			log.Print("overlay routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(st, history, hub).ServeMux()
		armMux.AttachAdminRoutes(mux)
		history.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a shorter timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()

	// release the camera and close the serial port
	if err := st.Close(); err != nil {
		log.Printf("station close: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
