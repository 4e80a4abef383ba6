package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"harvest-iot-backend/internal/emitter"
	"harvest-iot-backend/internal/flow"
)

var (
	deviceServerURL string
	deviceInterval  time.Duration
	deviceProxy     string
	deviceLat       float64
	deviceLng       float64
)

// deviceCmd plays a physical sensor pushing readings for one device.
var deviceCmd = &cobra.Command{
	Use:   "device [historyCode]",
	Short: "Push jittered sensor readings for a device to a running server",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := "IOT-2024-001"
		if len(args) == 1 {
			id = args[0]
		}

		start := emitter.DefaultStart
		start.GPS = flow.GPS{Lat: deviceLat, Lng: deviceLng}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		emitter.New(emitter.Options{
			ServerURL: deviceServerURL,
			DeviceID:  id,
			Interval:  deviceInterval,
			HTTPProxy: deviceProxy,
			Start:     start,
		}, nil).Run(ctx)
	},
}

func init() {
	deviceCmd.Flags().StringVar(&deviceServerURL, "server", "http://localhost:8080/api", "API base URL")
	deviceCmd.Flags().DurationVar(&deviceInterval, "interval", 5*time.Second, "Time between readings")
	deviceCmd.Flags().StringVar(&deviceProxy, "proxy", "", "Optional HTTP proxy URL")
	deviceCmd.Flags().Float64Var(&deviceLat, "lat", emitter.DefaultStart.GPS.Lat, "Starting latitude")
	deviceCmd.Flags().Float64Var(&deviceLng, "lng", emitter.DefaultStart.GPS.Lng, "Starting longitude")
}
