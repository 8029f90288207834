package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/2025-IA-x-AI-Hackathon/Hack-NaSa/internal/api"
	"github.com/2025-IA-x-AI-Hackathon/Hack-NaSa/internal/audio"
	"github.com/2025-IA-x-AI-Hackathon/Hack-NaSa/internal/config"
	"github.com/2025-IA-x-AI-Hackathon/Hack-NaSa/internal/hub"
	"github.com/2025-IA-x-AI-Hackathon/Hack-NaSa/internal/notify"
	"github.com/2025-IA-x-AI-Hackathon/Hack-NaSa/internal/transport"
	"github.com/2025-IA-x-AI-Hackathon/Hack-NaSa/internal/transport/live"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/nasa-hub/config.yaml)")
	simulate := flag.Bool("simulate", false, "use the simulated transport instead of the BLE adapter")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *simulate {
		cfg.BLE.Simulate = true
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetLogLoggerLevel(config.ParseLogLevel(cfg.LogLevel))

	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Transport
	var tr transport.Transport
	if cfg.BLE.Simulate {
		tr = transport.NewSimulated()
		log.Println("Using simulated transport")
	} else {
		lt := live.New()
		if err := lt.Enable(); err != nil {
			log.Fatalf("Failed to enable BLE adapter: %v", err)
		}
		tr = lt
		log.Println("BLE adapter enabled")
	}

	// Alarm player
	player, err := newPlayer(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize audio playback: %v", err)
	}
	defer player.Close()
	log.Println("Alarm playback ready")

	// Background indicator while a device is connected
	var task notify.Task
	if cfg.BLE.Simulate {
		task = notify.Nop{}
	} else {
		task = notify.NewDesktopTask("nasa-hub", "NASA IoT Hub", "Connected to a radio peripheral")
	}

	h := hub.New(tr, player, task, hub.Options{
		ServiceUUID:        cfg.BLE.ServiceUUID,
		CharacteristicUUID: cfg.BLE.CharacteristicUUID,
		ConnectTimeout:     cfg.BLE.ConnectTimeout(),
	})
	h.Start(ctx)
	defer h.Close()

	// HTTP + websocket surface
	server := api.NewServer(h)
	server.Run(ctx)
	httpSrv := &http.Server{Addr: cfg.Server.Addr, Handler: server.Handler()}
	go func() {
		log.Printf("Serving on %s", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server: %v", err)
		}
	}()

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("Received %s, shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	h.Close()
	cancel()
	log.Println("Goodbye!")
}

// newPlayer builds the alarm player from the configured WAV asset, falling
// back to the synthesized tone.
func newPlayer(cfg *config.Config) (*audio.Player, error) {
	if cfg.Audio.WAVPath != "" {
		p, err := audio.NewPlayerFromWAV(cfg.Audio.WAVPath)
		if err == nil {
			log.Printf("Alarm sound loaded from %s", cfg.Audio.WAVPath)
			return p, nil
		}
		log.Printf("WARNING: loading %s failed (%v), using tone", cfg.Audio.WAVPath, err)
	}
	return audio.NewPlayer(
		cfg.Audio.SampleRate,
		float64(cfg.Audio.ToneHz),
		time.Duration(cfg.Audio.ToneMs)*time.Millisecond,
	)
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== nasa-hub ===")
	fmt.Printf("  Service:   %s\n", cfg.BLE.ServiceUUID)
	fmt.Printf("  Char:      %s\n", cfg.BLE.CharacteristicUUID)
	fmt.Printf("  Timeout:   %s\n", cfg.BLE.ConnectTimeout())
	fmt.Printf("  Audio:     %dHz tone %dHz/%dms\n", cfg.Audio.SampleRate, cfg.Audio.ToneHz, cfg.Audio.ToneMs)
	fmt.Printf("  Server:    %s\n", cfg.Server.Addr)
	fmt.Printf("  Simulate:  %v\n", cfg.BLE.Simulate)
	fmt.Printf("  Log:       %s\n", cfg.LogLevel)
	fmt.Println("================")
}
