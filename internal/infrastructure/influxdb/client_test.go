package influxdb_test

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/sensorhub-core/internal/infrastructure/config"
	"github.com/nerrad567/sensorhub-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/sensorhub-core/internal/measurement"
)

// fakeInflux answers the ping and write endpoints of the InfluxDB v2 API and
// records every line-protocol body it receives.
type fakeInflux struct {
	mu           sync.Mutex
	writes       []string
	down         bool
	rejectWrites bool
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	down, reject := f.down, f.rejectWrites
	f.mu.Unlock()
	if down {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if reject && strings.HasSuffix(r.URL.Path, "/write") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":"invalid","message":"rejected"}`)
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, "/ping"):
		w.WriteHeader(http.StatusNoContent)
	case strings.HasSuffix(r.URL.Path, "/write"):
		body := io.Reader(r.Body)
		if r.Header.Get("Content-Encoding") == "gzip" {
			gz, err := gzip.NewReader(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			body = gz
		}
		data, _ := io.ReadAll(body)
		f.mu.Lock()
		f.writes = append(f.writes, string(data))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInflux) lines() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func startFake(t *testing.T) (*fakeInflux, config.InfluxDBConfig) {
	t.Helper()
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return fake, config.InfluxDBConfig{
		Enabled:       true,
		URL:           srv.URL,
		Token:         "test-token",
		Org:           "sensorhub",
		Bucket:        "readings",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	_, cfg := startFake(t)

	client, err := influxdb.Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, cfg := startFake(t)
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg, nil)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	fake, cfg := startFake(t)
	fake.mu.Lock()
	fake.down = true
	fake.mu.Unlock()

	_, err := influxdb.Connect(cfg, nil)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	_, cfg := startFake(t)
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect() with default batch settings")
	}
}

func TestClose(t *testing.T) {
	_, cfg := startFake(t)

	client, err := influxdb.Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	// Writes and flushes after close are no-ops.
	client.WriteMeasurement(measurement.Measurement{DeviceID: "d", Category: "c", Timestamp: time.Unix(1, 0)})
	client.Flush()

	var nilClient *influxdb.Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

// =============================================================================
// Health Check Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	fake, cfg := startFake(t)

	client, err := influxdb.Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	fake.mu.Lock()
	fake.down = true
	fake.mu.Unlock()

	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should fail when the server is down")
	}
}

func TestHealthCheck_Closed(t *testing.T) {
	_, cfg := startFake(t)

	client, err := influxdb.Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWriteMeasurement(t *testing.T) {
	fake, cfg := startFake(t)

	var writeErr error
	var mu sync.Mutex
	client, err := influxdb.Connect(cfg, func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	state := 1.0
	client.WriteMeasurement(measurement.Measurement{
		Timestamp:        time.Unix(1700000000, 0),
		DeviceID:         "station01",
		Category:         "temperaturec",
		CategoryOriginal: "Temperature(C)",
		Value:            21.5,
		State:            &state,
	})
	client.Flush()

	deadline := time.Now().Add(5 * time.Second)
	for fake.lines() == "" && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	got := fake.lines()
	for _, want := range []string{
		"sensor_readings,category=temperaturec,device_id=station01 ",
		"value=21.5",
		"state=1",
		"1700000000",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("line protocol %q missing %q", got, want)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Errorf("async write error = %v", writeErr)
	}
}

func TestWriteMeasurement_ReportsWriteErrors(t *testing.T) {
	fake, cfg := startFake(t)
	fake.mu.Lock()
	fake.rejectWrites = true
	fake.mu.Unlock()

	errs := make(chan error, 8)
	client, err := influxdb.Connect(cfg, func(err error) {
		select {
		case errs <- err:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteMeasurement(measurement.Measurement{
		Timestamp: time.Unix(1700000000, 0), DeviceID: "station01",
		Category: "temperaturec", CategoryOriginal: "Temperature(C)", Value: 21.5,
	})
	client.Flush()

	select {
	case err := <-errs:
		if err == nil {
			t.Error("onError called with nil")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write failure not reported to onError")
	}
}

func TestNewPoint(t *testing.T) {
	ts := time.Unix(1700000000, 0)

	tests := []struct {
		name    string
		m       measurement.Measurement
		want    []string
		notWant string
	}{
		{
			name: "without state",
			m: measurement.Measurement{
				Timestamp: ts, DeviceID: "station01", Category: "co2ppm",
				CategoryOriginal: "CO2 (ppm)", Value: 415,
			},
			want:    []string{"sensor_readings,category=co2ppm,device_id=station01", `label="CO2 (ppm)"`, "value=415"},
			notWant: "state=",
		},
		{
			name: "with state",
			m: func() measurement.Measurement {
				s := 0.0
				return measurement.Measurement{
					Timestamp: ts, DeviceID: "station02", Category: "pressurehpa",
					CategoryOriginal: "Pressure(hPa)", Value: 1013.2, State: &s,
				}
			}(),
			want: []string{"device_id=station02", "state=0", "value=1013.2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := write.PointToLineProtocol(influxdb.NewPoint(tt.m), time.Second)
			for _, want := range tt.want {
				if !strings.Contains(line, want) {
					t.Errorf("line %q missing %q", line, want)
				}
			}
			if tt.notWant != "" && strings.Contains(line, tt.notWant) {
				t.Errorf("line %q should not contain %q", line, tt.notWant)
			}
			if !strings.HasSuffix(strings.TrimSpace(line), "1700000000") {
				t.Errorf("line %q should end with second-precision timestamp", line)
			}
		})
	}
}
