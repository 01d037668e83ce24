package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"

	"github.com/ericogr/temprec/pkg/api"
	"github.com/ericogr/temprec/pkg/config"
	"github.com/ericogr/temprec/pkg/output"
	"github.com/ericogr/temprec/pkg/output/console"
	"github.com/ericogr/temprec/pkg/output/mqtt"
	"github.com/ericogr/temprec/pkg/sensor"
	"github.com/ericogr/temprec/pkg/store"
)

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.DateTime}))
	slog.SetDefault(logger)

	logger.Info("start temprec", "sensor_type", cfg.SensorType, "data_dir", cfg.DataDir, "interval", cfg.SampleInterval.Duration())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, ids, err := initSource(cfg)
	if err != nil {
		logger.Error("sensor source", "err", err)
		os.Exit(1)
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}
	for _, id := range ids {
		logger.Info("sensor", "id", id)
	}

	outs, err := initOutputs(cfg, ids)
	if err != nil {
		logger.Error("outputs", "err", err)
		os.Exit(1)
	}
	defer outs.Close()

	reg := store.NewRegistry(ids, store.Config{
		DataDir: cfg.DataDir,
		Source:  src,
		Options: store.Options{
			Threshold: cfg.Threshold,
			Interval:  cfg.SampleInterval.Duration(),
			Logger:    logger,
			Listener:  outs,
		},
	})
	reg.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewServer(reg, cfg.ContentDir, logger).NewEngine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "err", err)
		}
	}()

	logger.Info("listening", "addr", cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server", "err", err)
		stop()
	}
	reg.Wait()
	logger.Info("stopped")
}

// initSource returns the reading source and the sensor ids it serves.
func initSource(cfg config.Config) (sensor.Source, []string, error) {
	switch cfg.SensorType {
	case "simulation":
		return sensor.NewFakeSource(time.Now().UnixNano()), cfg.SimulatedIDs, nil
	case "real":
		ids, err := store.Discover(cfg.DeviceDir, cfg.FamilyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return sensor.NewW1Source(cfg.DeviceDir), ids, nil
	case "bus":
		bus, err := sensor.OpenBus(cfg.OneWireBus)
		if err != nil {
			return nil, nil, err
		}
		src := sensor.NewBusSource(bus)
		ids, err := src.Discover()
		if err != nil {
			_ = src.Close()
			return nil, nil, err
		}
		return src, ids, nil
	default:
		return nil, nil, fmt.Errorf("unknown sensor type %q", cfg.SensorType)
	}
}

func initOutputs(cfg config.Config, ids []string) (output.Fanout, error) {
	var outs output.Fanout
	for _, oc := range cfg.Outputs {
		switch strings.ToLower(oc.Type) {
		case "console":
			outs = append(outs, console.NewConsole())
		case "mqtt":
			mc := config.MQTTConfig{}
			if oc.MQTT != nil {
				mc = *oc.MQTT
			}
			o, err := mqtt.NewMQTT(mc, ids)
			if err != nil {
				_ = outs.Close()
				return nil, err
			}
			outs = append(outs, o)
		default:
			_ = outs.Close()
			return nil, fmt.Errorf("unknown output type %q", oc.Type)
		}
	}
	return outs, nil
}
