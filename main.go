package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	cm "github.com/ztkent/color-meter/internal/colormeter"
	"github.com/ztkent/color-meter/internal/discovery"
	"github.com/ztkent/color-meter/internal/notify"
	"github.com/ztkent/color-meter/internal/tools"
	"github.com/ztkent/color-meter/tcs34725"
)

/*
	This is the primary entry point for the Color Meter application.
	It should be running at startup, on a Raspberry Pi, with the TCS34725 sensor connected.
*/

func main() {
	configPath := flag.String("config", os.Getenv("COLORMETER_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := tools.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logCloser, err := tools.SetupLogging(cfg.Logging)
	if err != nil {
		logrus.Fatalf("Failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	pid := os.Getpid()
	logrus.Info("ColorMeter [" + fmt.Sprintf("%d", pid) + "]")

	// connect to the color sensor, the dashboard still runs without it
	device, err := connectSensor(cfg.Sensor)
	if err != nil {
		logrus.WithError(err).Error("Failed to connect to the TCS34725 sensor")
	} else {
		defer device.Close()
	}

	// connect to the sqlite database
	eventsDB, err := tools.ConnectSqlite(cfg.Database.Path)
	if err != nil {
		// Unlike connecting to the sensor, this should always work.
		logrus.Fatalf("Failed to connect to the sqlite database: %v", err)
	}
	defer eventsDB.Close()

	meter := cm.New(device, eventsDB, nil, pid)
	if cfg.MQTT.Enabled {
		publisher, err := notify.Connect(cfg.MQTT)
		if err != nil {
			logrus.WithError(err).Error("Failed to connect to the MQTT broker, threshold events will only be journaled")
		} else {
			defer publisher.Close()
			meter.Publisher = publisher
		}
	}

	// Initialize router
	r := chi.NewRouter()
	// Log requests and recover from panics
	r.Use(middleware.Logger)
	r.Use(handleServerPanic)
	if cfg.Server.LocalOnly {
		r.Use(tools.CheckInNetwork)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defineRoutes(ctx, r, meter)

	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: r}
	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down")
		server.Shutdown(context.Background())
	}()

	if cfg.Discovery.Enabled {
		advertiser, err := discovery.Advertise(cfg.Discovery, cfg.Server.Port, cfg.Server.SSL)
		if err != nil {
			logrus.WithError(err).Warn("Failed to advertise over mDNS")
		} else {
			defer advertiser.Shutdown()
		}
	}

	if cfg.Server.SSL {
		// Generate a self-signed certificate if one doesn't exist
		if err := tools.EnsureCertificate(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil {
			logrus.Fatalf("Failed to create certificate: %v", err)
		}
		logrus.Infof("Starting HTTPS server on port %d", cfg.Server.Port)
		err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
	} else {
		logrus.Infof("Starting HTTP server on port %d", cfg.Server.Port)
		err = server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		logrus.Errorf("Failed to start server: %v", err)
	}
}

func connectSensor(cfg tools.SensorConfig) (*tcs34725.TCS34725, error) {
	timing, err := tcs34725.ParseIntegrationTime(cfg.IntegrationTime)
	if err != nil {
		return nil, err
	}
	gain, err := tcs34725.ParseGain(cfg.Gain)
	if err != nil {
		return nil, err
	}
	opts := &tcs34725.Opts{IntegrationTime: timing, Gain: gain}

	// Pins are resolved through periph, regardless of the bus transport.
	if cfg.Transport == "periph" || cfg.InterruptPin != "" || cfg.LEDPin != "" {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize periph host: %w", err)
		}
	}
	if cfg.InterruptPin != "" {
		pin := gpioreg.ByName(cfg.InterruptPin)
		if pin == nil {
			return nil, fmt.Errorf("unknown interrupt pin %q", cfg.InterruptPin)
		}
		opts.InterruptPin = pin
	}
	if cfg.LEDPin != "" {
		pin := gpioreg.ByName(cfg.LEDPin)
		if pin == nil {
			return nil, fmt.Errorf("unknown led pin %q", cfg.LEDPin)
		}
		opts.LED = pin
	}

	var device *tcs34725.TCS34725
	switch cfg.Transport {
	case "periph":
		bus, err := i2creg.Open(cfg.Bus)
		if err != nil {
			return nil, fmt.Errorf("failed to open i2c bus %s: %w", cfg.Bus, err)
		}
		device, err = tcs34725.NewI2C(bus, opts)
		if err != nil {
			bus.Close()
			return nil, err
		}
	default:
		if opts.InterruptPin == nil && opts.LED == nil {
			device, err = tcs34725.NewTCS34725(gain, timing, cfg.Bus)
		} else {
			device, err = tcs34725.NewDevfs(cfg.Bus, opts)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := device.SetPersistence(tcs34725.Persistence(cfg.Persistence)); err != nil {
		device.Close()
		return nil, err
	}
	return device, nil
}

func defineRoutes(ctx context.Context, r *chi.Mux, meter *cm.CMeter) {
	// Keep each reading from our jobs in memory for the dashboard
	go meter.MonitorResults(ctx)

	// Color Meter Dashboard Controls
	r.Get("/", meter.ServeDashboard())
	r.Route("/colormeter", func(r chi.Router) {
		r.Get("/start", meter.Start())
		r.Get("/stop", meter.Stop())
		r.Get("/sample", meter.Sample())
		r.Get("/current-conditions", meter.CurrentConditions())
		r.Get("/led/on", meter.LED(true))
		r.Get("/led/off", meter.LED(false))
		r.Post("/interrupt", meter.ArmThresholds())
		r.Delete("/interrupt", meter.DisarmThresholds())
		r.Get("/events", meter.Events())
		r.Post("/graph", meter.ServeResultsGraph())
		r.Get("/controls", meter.ServeControls())
		r.Get("/status", meter.ServeSensorStatus())
		r.Post("/results", meter.ServeResultsTab())
		r.Get("/clear", meter.Clear())
	})

	// Color Meter API, these serve a JSON response
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/start", meter.Start())
		r.Get("/stop", meter.Stop())
		r.Get("/sample", meter.Sample())
		r.Get("/current-conditions", meter.CurrentConditions())
		r.Get("/led/on", meter.LED(true))
		r.Get("/led/off", meter.LED(false))
		r.Post("/interrupt", meter.ArmThresholds())
		r.Delete("/interrupt", meter.DisarmThresholds())
		r.Get("/events", meter.Events())
	})

	// Route for service identification
	r.Get("/id", func(w http.ResponseWriter, r *http.Request) {
		response := struct {
			ServiceName string `json:"service_name"`
		}{
			ServiceName: discovery.ServiceName,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	})
}

func handleServerPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logrus.Errorf("Recovered from panic: %v", err)
				cm.ServeResponse(w, r, fmt.Sprintf("%v", err), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
