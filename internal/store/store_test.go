package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"harvest-iot-backend/internal/db"
	"harvest-iot-backend/internal/flow"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: sqlDB,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func newSQLiteStore(t *testing.T, maxHistory int) Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gormDB, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(gormDB))
	return NewGormStore(gormDB, maxHistory)
}

func ptr[T any](v T) *T { return &v }

var baseTime = time.Date(2024, 5, 17, 8, 0, 0, 0, time.UTC)

func sampleRecord(id, station string, at time.Time) flow.DeviceRecord {
	return flow.DeviceRecord{
		HistoryCode:   id,
		VegetableID:   "TOM",
		Unit:          "Tomato",
		SourceID:      station,
		SourceName:    "Station " + station,
		ProcessStatus: flow.StageOf(station),
		NowStatus:     flow.StatusConnected,
		LastUpdate:    at,
		Light:         ptr(420),
		Humidity:      ptr(55),
		Temperature:   ptr(21.5),
		GPS:           &flow.GPS{Lat: 35.6595, Lng: 139.7005},
	}
}

func TestGormStore_CurrentDevice_NotFound(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB, 1000)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "device_states" WHERE history_code = $1`)).
		WithArgs("IOT-2024-404", 1).
		WillReturnRows(sqlmock.NewRows([]string{"history_code"}))

	_, err := s.CurrentDevice(context.Background(), "IOT-2024-404")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_DeleteDevice(t *testing.T) {
	testCases := []struct {
		name             string
		mockExpectations func(mock sqlmock.Sqlmock)
		expectedErr      error
	}{
		{
			name: "existing device is removed with its history",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "device_samples" WHERE history_code = $1`)).
					WithArgs("IOT-2024-001").
					WillReturnResult(sqlmock.NewResult(0, 12))
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "device_states" WHERE history_code = $1`)).
					WithArgs("IOT-2024-001").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "unknown device rolls back",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "device_samples"`)).
					WithArgs("IOT-2024-001").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "device_states"`)).
					WithArgs("IOT-2024-001").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectRollback()
			},
			expectedErr: ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newTestDB(t)
			s := NewGormStore(gormDB, 1000)
			tc.mockExpectations(mock)

			err := s.DeleteDevice(context.Background(), "IOT-2024-001")
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_SnapshotRoundTrip(t *testing.T) {
	s := newSQLiteStore(t, 1000)
	ctx := context.Background()

	lost := sampleRecord("IOT-2024-002", "DB-01", baseTime)
	lost.Temperature = nil
	lost.GPS = nil
	lost.NowStatus = flow.StatusDisconnected

	require.NoError(t, s.SaveSnapshot(ctx, []flow.DeviceRecord{sampleRecord("IOT-2024-001", "GS-01", baseTime), lost}))

	all, err := s.CurrentDevices(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, sampleRecord("IOT-2024-001", "GS-01", baseTime), all[0])
	assert.Equal(t, lost, all[1])

	got, err := s.CurrentDevice(ctx, "IOT-2024-002")
	require.NoError(t, err)
	assert.Nil(t, got.Temperature)
	assert.Nil(t, got.GPS)
	assert.Equal(t, flow.StageDelivery, got.ProcessStatus)

	_, err = s.CurrentDevice(ctx, "IOT-2024-404")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.SaveSnapshot(ctx, nil))
}

func TestGormStore_SnapshotReplacesStateAndAppendsHistory(t *testing.T) {
	s := newSQLiteStore(t, 1000)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, []flow.DeviceRecord{sampleRecord("IOT-2024-001", "GS-01", baseTime)}))
	require.NoError(t, s.SaveSnapshot(ctx, []flow.DeviceRecord{sampleRecord("IOT-2024-001", "SB-04", baseTime.Add(30*time.Minute))}))

	all, err := s.CurrentDevices(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "SB-04", all[0].SourceID)
	assert.Equal(t, flow.StageStorage, all[0].ProcessStatus)

	history, err := s.History(ctx, "IOT-2024-001", baseTime.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "GS-01", history[0].Data.SourceID)
	assert.Equal(t, baseTime, history[0].Timestamp)
	assert.Equal(t, "SB-04", history[1].Data.SourceID)
}

func TestGormStore_HistoryIsCapped(t *testing.T) {
	s := newSQLiteStore(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := sampleRecord("IOT-2024-001", "GS-01", baseTime.Add(time.Duration(i)*time.Minute))
		rec.Light = ptr(i)
		require.NoError(t, s.UpsertDevice(ctx, rec, true))
	}
	require.NoError(t, s.UpsertDevice(ctx, sampleRecord("IOT-2024-002", "GS-02", baseTime), true))

	history, err := s.History(ctx, "IOT-2024-001", time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 2, *history[0].Data.Light)
	assert.Equal(t, 4, *history[2].Data.Light)

	other, err := s.History(ctx, "IOT-2024-002", time.Time{})
	require.NoError(t, err)
	assert.Len(t, other, 1, "trimming is per device")
}

func TestGormStore_UpsertWithoutHistory(t *testing.T) {
	s := newSQLiteStore(t, 1000)
	ctx := context.Background()

	require.NoError(t, s.UpsertDevice(ctx, sampleRecord("IOT-2024-001", "CL-01", baseTime), false))

	got, err := s.CurrentDevice(ctx, "IOT-2024-001")
	require.NoError(t, err)
	assert.Equal(t, "CL-01", got.SourceID)

	history, err := s.History(ctx, "IOT-2024-001", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGormStore_HistoryRange(t *testing.T) {
	s := newSQLiteStore(t, 1000)
	ctx := context.Background()

	for _, offset := range []time.Duration{-48 * time.Hour, -2 * time.Hour, -10 * time.Minute} {
		require.NoError(t, s.UpsertDevice(ctx, sampleRecord("IOT-2024-001", "GS-01", baseTime.Add(offset)), true))
	}

	testCases := []struct {
		window   time.Duration
		expected int
	}{
		{time.Hour, 1},
		{24 * time.Hour, 2},
		{7 * 24 * time.Hour, 3},
	}
	for _, tc := range testCases {
		t.Run(tc.window.String(), func(t *testing.T) {
			history, err := s.History(ctx, "IOT-2024-001", baseTime.Add(-tc.window))
			require.NoError(t, err)
			assert.Len(t, history, tc.expected)
		})
	}
}

func TestGormStore_DeleteDeviceSQLite(t *testing.T) {
	s := newSQLiteStore(t, 1000)
	ctx := context.Background()

	require.NoError(t, s.UpsertDevice(ctx, sampleRecord("IOT-2024-001", "GS-01", baseTime), true))
	require.NoError(t, s.UpsertDevice(ctx, sampleRecord("IOT-2024-002", "GS-01", baseTime), true))

	require.NoError(t, s.DeleteDevice(ctx, "IOT-2024-001"))
	assert.ErrorIs(t, s.DeleteDevice(ctx, "IOT-2024-001"), ErrNotFound)

	history, err := s.History(ctx, "IOT-2024-001", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, history)

	all, err := s.CurrentDevices(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "IOT-2024-002", all[0].HistoryCode)
}

func TestGormStore_Registry(t *testing.T) {
	s := newSQLiteStore(t, 1000)
	ctx := context.Background()

	require.NoError(t, s.SaveStation(ctx, flow.Station{
		ID: "SB-11", Name: "Oslo Cold Room", Description: "Fjord-side storage",
		FixedLocation: true, GPS: &flow.GPS{Lat: 59.91, Lng: 10.75}, Order: 5,
	}))
	require.NoError(t, s.SaveStation(ctx, flow.Station{ID: "DB-11", Name: "Drone 11", Order: 6}))
	require.NoError(t, s.SaveProduct(ctx, flow.Product{ID: "PUM", Name: "Pumpkin", Glyph: "🎃", Slot: 3}))

	stations, err := s.Stations(ctx)
	require.NoError(t, err)
	require.Len(t, stations, 2)
	assert.Equal(t, flow.StageStorage, stations[0].Stage)
	assert.Equal(t, &flow.GPS{Lat: 59.91, Lng: 10.75}, stations[0].GPS)
	assert.Equal(t, 5, stations[0].Order)
	assert.Nil(t, stations[1].GPS)

	products, err := s.Products(ctx)
	require.NoError(t, err)
	assert.Equal(t, []flow.Product{{ID: "PUM", Name: "Pumpkin", Glyph: "🎃", Slot: 3}}, products)
}

func TestGormStore_DeleteStation(t *testing.T) {
	s := newSQLiteStore(t, 1000)
	ctx := context.Background()

	require.NoError(t, s.SaveStation(ctx, flow.Station{ID: "DB-11", Name: "Drone 11"}))
	require.NoError(t, s.DeleteStation(ctx, "DB-11"))
	require.NoError(t, s.DeleteStation(ctx, "GS-01"), "unpersisted stations delete as a no-op")

	stations, err := s.Stations(ctx)
	require.NoError(t, err)
	assert.Empty(t, stations)
}

func TestGormStore_InsertDeviceKeepsCreationTime(t *testing.T) {
	s := newSQLiteStore(t, 1000)
	ctx := context.Background()

	registered := baseTime.Add(-72 * time.Hour)
	d := flow.Device{ID: "IOT-2024-001", ProductID: "TOM", CreatedAt: registered}
	require.NoError(t, s.InsertDevice(ctx, d, sampleRecord(d.ID, "GS-01", baseTime)))
	require.NoError(t, s.InsertDevice(ctx, flow.Device{ID: "IOT-2024-002", ProductID: "CAR", CreatedAt: baseTime}, sampleRecord("IOT-2024-002", "GS-02", baseTime)))

	// Later writes must not move the creation time.
	require.NoError(t, s.SaveSnapshot(ctx, []flow.DeviceRecord{sampleRecord(d.ID, "SB-01", baseTime.Add(time.Minute))}))
	require.NoError(t, s.UpsertDevice(ctx, sampleRecord(d.ID, "DB-01", baseTime.Add(2*time.Minute)), true))

	devices, err := s.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "IOT-2024-001", devices[0].ID)
	assert.Equal(t, "TOM", devices[0].ProductID)
	assert.WithinDuration(t, registered, devices[0].CreatedAt, time.Second)
	assert.Equal(t, "IOT-2024-002", devices[1].ID)
	assert.WithinDuration(t, baseTime, devices[1].CreatedAt, time.Second)
}
