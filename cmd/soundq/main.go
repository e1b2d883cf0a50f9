package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/glebovdev/soundq/internal/api"
	"github.com/glebovdev/soundq/internal/cache"
	"github.com/glebovdev/soundq/internal/clock"
	"github.com/glebovdev/soundq/internal/config"
	"github.com/glebovdev/soundq/internal/manager"
	"github.com/glebovdev/soundq/internal/player"
	"github.com/glebovdev/soundq/internal/provider"
	"github.com/glebovdev/soundq/internal/ui"
	"github.com/gopxl/beep/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const finishedEvent = "finished"

var (
	versionFlag = flag.Bool("version", false, "Show version information")
	debugFlag   = flag.Bool("debug", false, "Enable debug logging")
	loopFlag    = flag.Uint64("loop", 1, "Number of times to play, 0 loops forever")
	startFlag   = flag.Float64("start", 0, "Start offset in seconds")
	rateFlag    = flag.Float64("rate", 0, "Playback rate multiplier (overrides config)")
	volumeFlag  = flag.Int("volume", -1, "Master volume 0-100 (overrides config)")
	streamFlag  = flag.Bool("stream", false, "Stream the asset even when it is short")
	toneFlag    = flag.Float64("tone", 0, "Play a generated sine tone of this frequency instead of a file")
	plainFlag   = flag.Bool("plain", false, "Play without the terminal monitor")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s v%s - %s\n\n", config.AppName, config.AppVersion, config.AppDescription)
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <file|url>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()

		configPath, err := config.GetConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Fprintf(os.Stderr, "\nConfig file: %s\n", configPath)
			} else {
				fmt.Fprintf(os.Stderr, "\nConfig file will be created on first use.\n")
			}
		}
	}
}

func setupLogging(plain bool) {
	if !*debugFlag {
		if plain {
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
			return
		}
		// Avoid TUI corruption by only logging errors to /dev/null
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		logFile, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0644)
		if err == nil {
			log.Logger = log.Output(logFile)
		}
		return
	}

	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	cacheDir, err := cache.GetCacheDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not get cache dir: %v\n", err)
		cacheDir = os.TempDir()
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log dir: %v\n", err)
	}
	logPath := filepath.Join(cacheDir, "debug.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log file: %v\n", err)
		logFile = os.Stderr
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: logFile, TimeFormat: "15:04:05"})
	fmt.Printf("Debug log: %s\n", logPath)
	log.Info().Msgf("Starting %s v%s (debug mode)", config.AppName, config.AppVersion)
}

func loadConfig() *config.Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to read .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.DefaultConfig()
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Warn().Err(err).Msg("Ignoring invalid environment override")
	}

	if *rateFlag > 0 {
		cfg.PlayRate = *rateFlag
	}
	if *volumeFlag >= 0 {
		cfg.Volume = *volumeFlag
	}
	cfg.Normalize()
	return cfg
}

func newSource(cfg *config.Config) (provider.Source, error) {
	if *toneFlag > 0 {
		return provider.NewTone(*toneFlag, 2, cfg.SampleRate), nil
	}
	if flag.NArg() != 1 {
		return nil, errors.New("expected exactly one file or URL")
	}

	client := api.NewClient()
	if disk, err := cache.NewCache(); err == nil {
		if err := disk.CleanExpired(); err != nil {
			log.Debug().Err(err).Msg("Failed to clean asset cache")
		}
		client = client.WithCache(disk)
	} else {
		log.Warn().Err(err).Msg("Asset cache disabled")
	}
	return provider.NewFile(flag.Arg(0), client), nil
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		fmt.Println(config.AppDescription)
		os.Exit(0)
	}

	setupLogging(*plainFlag)
	cfg := loadConfig()

	if *debugFlag {
		if configPath, err := config.GetConfigPath(); err == nil {
			log.Debug().Msgf("Config: %s", configPath)
		}
		if cacheDir, err := cache.GetCacheDir(); err == nil {
			log.Debug().Msgf("Cache: %s", cacheDir)
		}
	}

	src, err := newSource(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		flag.Usage()
		os.Exit(2)
	}

	dev, err := player.NewDevice(beep.SampleRate(cfg.SampleRate))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := manager.OptionsFromConfig(cfg)
	opts.ForceStream = *streamFlag
	mgr := manager.New(dev, clock.NewWall(), opts)

	done := make(chan struct{}, 1)
	mgr.OnEvent(func(name string) {
		if name == finishedEvent {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})

	id, snd, err := mgr.NewSound(src, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		dev.Close()
		os.Exit(1)
	}
	log.Debug().Str("id", id).Str("name", snd.Name()).Float64("length", snd.Length()).Msg("Sound loaded")

	mgr.Do(func() {
		snd.SetLoopCount(*loopFlag)
		snd.SetTime(*startFlag)
		snd.SetFinishedEvent(finishedEvent)
		snd.Play()
	})
	mgr.StartUpdates()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	if *plainFlag {
		select {
		case <-done:
			log.Debug().Msg("Playback finished")
		case <-sigChan:
			log.Debug().Msg("Received shutdown signal, cleaning up...")
		}
	} else {
		monitor := ui.NewMonitor(mgr, cfg)
		go func() {
			<-sigChan
			log.Debug().Msg("Received shutdown signal, cleaning up...")
			monitor.Shutdown()
		}()

		if err := monitor.Run(); err != nil {
			log.Error().Err(err).Msg("Error running monitor")
			exitCode = 1
		}
	}

	mgr.Shutdown()
	dev.Close()
	log.Debug().Msgf("%s stopped", config.AppName)
	os.Exit(exitCode)
}
