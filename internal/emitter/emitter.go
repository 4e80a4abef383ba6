package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"harvest-iot-backend/internal/flow"
)

// Options configures an Emitter.
type Options struct {
	ServerURL string // API base, e.g. http://localhost:8080/api
	DeviceID  string
	Interval  time.Duration
	HTTPProxy string
	// Start is the reading the jitter walks around.
	Start Reading
}

// DefaultStart is the Berlin cold-chain baseline used when no start reading is given.
var DefaultStart = Reading{Temperature: 22, Humidity: 65, GPS: flow.GPS{Lat: 52.52, Lng: 13.40}}

// Reading is a full set of sensor values.
type Reading struct {
	Temperature float64  `json:"temperature"`
	Humidity    int      `json:"humidity"`
	Light       int      `json:"light"`
	GPS         flow.GPS `json:"gps"`
}

// Emitter plays an external sensor: it pushes jittered readings for one device to
// PUT /devices/:id on a fixed interval.
type Emitter struct {
	opts   Options
	client *http.Client
	rnd    flow.Random

	baseTemp     float64
	baseHumidity float64
	lat, lng     float64
}

// New creates an emitter. A nil rnd is replaced by a clock-seeded source.
func New(opts Options, rnd flow.Random) *Emitter {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Start == (Reading{}) {
		opts.Start = DefaultStart
	}
	if rnd == nil {
		rnd = flow.NewRandom(0)
	}

	var transport http.RoundTripper = &http.Transport{}
	if opts.HTTPProxy != "" {
		proxyURL, err := url.Parse(opts.HTTPProxy)
		if err != nil {
			logrus.WithError(err).WithField("proxy", opts.HTTPProxy).Warn("invalid proxy URL; sending without a proxy")
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Emitter{
		opts:         opts,
		client:       &http.Client{Transport: transport, Timeout: 30 * time.Second},
		rnd:          rnd,
		baseTemp:     opts.Start.Temperature,
		baseHumidity: float64(opts.Start.Humidity),
		lat:          opts.Start.GPS.Lat,
		lng:          opts.Start.GPS.Lng,
	}
}

// Run sends a reading immediately and then once per interval until ctx is done.
func (e *Emitter) Run(ctx context.Context) {
	logrus.WithFields(logrus.Fields{
		"device":   e.opts.DeviceID,
		"server":   e.opts.ServerURL,
		"interval": e.opts.Interval,
	}).Info("Starting device emitter...")

	e.sendAndLog(ctx)

	timer := time.NewTimer(e.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Device emitter shutting down.")
			return
		case <-timer.C:
			e.sendAndLog(ctx)
			timer.Reset(e.opts.Interval)
		}
	}
}

func (e *Emitter) sendAndLog(ctx context.Context) {
	r := e.Next()
	if _, err := e.Send(ctx, r); err != nil {
		logrus.WithError(err).WithField("device", e.opts.DeviceID).Error("failed to send reading")
		return
	}
	logrus.WithFields(logrus.Fields{
		"temperature": r.Temperature,
		"humidity":    r.Humidity,
		"light":       r.Light,
		"lat":         r.GPS.Lat,
		"lng":         r.GPS.Lng,
	}).Info("reading sent")
}

// Next produces the next reading: temperature within ±1°C and humidity within ±5% of
// the baseline, light in [400, 600) and a GPS position that drifts by up to 0.0005°
// per axis each call.
func (e *Emitter) Next() Reading {
	temperature := flow.Round(e.baseTemp+(e.rnd.Float64()-0.5)*2, 1)
	humidity := int(math.Round(e.baseHumidity + (e.rnd.Float64()-0.5)*10))
	light := int(math.Round(400 + e.rnd.Float64()*200))

	e.lat += (e.rnd.Float64() - 0.5) * 0.001
	e.lng += (e.rnd.Float64() - 0.5) * 0.001

	return Reading{
		Temperature: temperature,
		Humidity:    humidity,
		Light:       light,
		GPS:         flow.GPS{Lat: flow.Round(e.lat, 6), Lng: flow.Round(e.lng, 6)},
	}
}

// Send pushes one reading and returns the record the server stored.
func (e *Emitter) Send(ctx context.Context, r Reading) (flow.DeviceRecord, error) {
	jsonBody, err := json.Marshal(r)
	if err != nil {
		return flow.DeviceRecord{}, fmt.Errorf("failed to marshal reading: %w", err)
	}

	endpoint := strings.TrimRight(e.opts.ServerURL, "/") + "/devices/" + url.PathEscape(e.opts.DeviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return flow.DeviceRecord{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return flow.DeviceRecord{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return flow.DeviceRecord{}, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return flow.DeviceRecord{}, fmt.Errorf("received status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rec flow.DeviceRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return flow.DeviceRecord{}, fmt.Errorf("failed to unmarshal device record: %w", err)
	}
	return rec, nil
}
