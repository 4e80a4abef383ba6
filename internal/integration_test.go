package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvest-iot-backend/config"
	"harvest-iot-backend/internal/api"
	"harvest-iot-backend/internal/db"
	"harvest-iot-backend/internal/emitter"
	"harvest-iot-backend/internal/flow"
	"harvest-iot-backend/internal/model"
	"harvest-iot-backend/internal/notification"
	"harvest-iot-backend/internal/store"
	"harvest-iot-backend/internal/tracker"
)

// TestDeviceJourney follows one device from registration through every stage to a
// vending machine, driving the server over HTTP and checking the database after each step.
func TestDeviceJourney(t *testing.T) {
	// --- Test Setup ---
	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = "file:journey?mode=memory&cache=shared"
	cfg.Database.MaxOpenConns = 1
	cfg.Database.LogLevel = "silent"
	cfg.Simulator.SkipSeed = true
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000

	testDB, err := db.Init(&cfg.Database)
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	defer sqlDB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim := flow.NewSimulator(flow.NewRandom(11), flow.WithAdvanceProbability(1))
	hub := notification.NewHub(cfg.Push.ClientBuffer, cfg.Push.Keepalive)
	hub.Start(ctx)
	svc := tracker.NewService(cfg, sim, store.NewGormStore(testDB, 3), hub)
	require.NoError(t, svc.Bootstrap(ctx))

	server := httptest.NewServer(api.NewRouter(&cfg.Server, svc, hub))
	defer server.Close()

	post := func(path, body string) *http.Response {
		resp, err := http.Post(server.URL+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		return resp
	}

	// A four-station pipeline and one product.
	for _, body := range []string{
		`{"id":"GS-01","name":"Tokyo Farm","fixedLocation":true,"gps":{"lat":35.6595,"lng":139.7004}}`,
		`{"id":"SB-01","name":"London Cold Store","fixedLocation":true,"gps":{"lat":51.5074,"lng":-0.1278}}`,
		`{"id":"DB-01","name":"Express Van"}`,
		`{"id":"CL-01","name":"VM Osaka","fixedLocation":true,"gps":{"lat":34.6937,"lng":135.5023},"capacity":1}`,
	} {
		resp := post("/api/stations", body)
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	}
	resp := post("/api/products", `{"id":"TOM","name":"Tomato","glyph":"🍅","slot":1}`)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var stationRows int64
	testDB.Model(&model.Station{}).Count(&stationRows)
	assert.Equal(t, int64(4), stationRows)

	// --- Registration ---
	resp = post("/api/devices", `{"vegetableId":"TOM"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var device flow.DeviceRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&device))
	resp.Body.Close()
	assert.Equal(t, "GS-01", device.SourceID)

	var state model.DeviceState
	require.NoError(t, testDB.First(&state, "history_code = ?", device.HistoryCode).Error)
	assert.Equal(t, "disconnected", state.NowStatus)

	t.Run("External sensor push", func(t *testing.T) {
		e := emitter.New(emitter.Options{ServerURL: server.URL + "/api", DeviceID: device.HistoryCode}, flow.NewRandom(5))
		rec, err := e.Send(ctx, e.Next())
		require.NoError(t, err)
		assert.Equal(t, flow.StatusConnected, rec.NowStatus)
		assert.Equal(t, "GS-01", rec.SourceID)

		require.NoError(t, testDB.First(&state, "history_code = ?", device.HistoryCode).Error)
		assert.Equal(t, "connected", state.NowStatus)
		require.NotNil(t, state.Temperature)
	})

	t.Run("Ticks carry the device to the vending machine", func(t *testing.T) {
		seen := map[flow.Stage]bool{}
		for i := 0; i < 100 && !seen[flow.StageClient]; i++ {
			resp := post("/api/simulation/tick", "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var records []flow.DeviceRecord
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
			resp.Body.Close()
			require.Len(t, records, 1)
			assert.Equal(t, flow.StageOf(records[0].SourceID), records[0].ProcessStatus)
			seen[records[0].ProcessStatus] = true
		}
		assert.True(t, seen[flow.StageStorage])
		assert.True(t, seen[flow.StageDelivery])
		require.True(t, seen[flow.StageClient], "device never reached a vending machine")

		// Client is terminal.
		for i := 0; i < 5; i++ {
			resp := post("/api/simulation/tick", "")
			resp.Body.Close()
		}
		require.NoError(t, testDB.First(&state, "history_code = ?", device.HistoryCode).Error)
		assert.Equal(t, "CL-01", state.SourceID)
		assert.Equal(t, "Client", state.ProcessStatus)

		var samples int64
		testDB.Model(&model.DeviceSample{}).Where("history_code = ?", device.HistoryCode).Count(&samples)
		assert.Equal(t, int64(3), samples, "history is capped per device")
	})

	t.Run("A full vending machine rejects a second device", func(t *testing.T) {
		resp := post("/api/devices", `{"vegetableId":"TOM","sourceId":"DB-01"}`)
		var second flow.DeviceRecord
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&second))
		resp.Body.Close()

		resp = post("/api/devices/"+second.HistoryCode+"/transfer", `{"stationId":"CL-01"}`)
		resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, 1, svc.Simulator().DeviceCount("CL-01"))
	})
}
