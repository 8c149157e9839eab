package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gofreqmeter/pkg/channel"
	"github.com/itohio/gofreqmeter/pkg/config"
	"github.com/itohio/gofreqmeter/pkg/errcode"
	"github.com/itohio/gofreqmeter/pkg/pagestore"
	"github.com/itohio/gofreqmeter/pkg/telemetry"
)

// writeImage writes n pages of samples per channel to a fresh image with the
// default storage geometry.
func writeImage(t *testing.T, n, samples int) string {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Image = filepath.Join(t.TempDir(), "flash.img")
	pages, flash, err := openPages(cfg)
	require.NoError(t, err)
	defer flash.Close()

	for i := 0; i < n; i++ {
		p, err := pages.TryCreateNewPage(pagestore.Header{TimestampMs: uint64(1000 * i)})
		require.NoError(t, err)
		for s := 0; s < samples; s++ {
			p.Push(channel.Pressure, uint32(31000+s), true)
			p.Push(channel.Temperature, 30000, s%2 == 0)
		}
		_, err = pages.Write(p)
		require.NoError(t, err)
	}
	return cfg.Storage.Image
}

func baseArgs(image string) []string {
	return []string{"-config", filepath.Join(filepath.Dir(image), "missing.yaml"), "-image", image}
}

func TestDispatchUnknown(t *testing.T) {
	assert.Error(t, dispatch("bogus", nil, &bytes.Buffer{}))

	var out bytes.Buffer
	require.NoError(t, dispatch("help", nil, &out))
	assert.Contains(t, out.String(), "Commands:")
}

func TestDump(t *testing.T) {
	image := writeImage(t, 3, 20)

	tests := []struct {
		name    string
		args    []string
		pages   []int
		samples int
	}{
		{name: "all", pages: []int{0, 1, 2}, samples: 20},
		{name: "range", args: []string{"-from", "1", "-n", "1"}, pages: []int{1}, samples: 20},
		{name: "downsampled", args: []string{"-points", "5"}, pages: []int{0, 1, 2}, samples: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, dispatch("dump", append(tt.args, baseArgs(image)...), &out))

			var got []int
			sc := bufio.NewScanner(&out)
			for sc.Scan() {
				var rec struct {
					Index  int `json:"index"`
					Header struct {
						ThisID uint32 `json:"this_id"`
					} `json:"header"`
					Samples [channel.FreqCount][]pagestore.Value `json:"samples"`
				}
				require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
				got = append(got, rec.Index)
				assert.Len(t, rec.Samples[channel.Pressure], tt.samples)
				assert.Equal(t, uint32(rec.Index+1), rec.Header.ThisID)
			}
			assert.Equal(t, tt.pages, got)
		})
	}
}

func TestStatusAndErase(t *testing.T) {
	image := writeImage(t, 2, 1)

	status := func() map[string]any {
		var out bytes.Buffer
		require.NoError(t, dispatch("status", baseArgs(image), &out))
		var st struct {
			Memory map[string]any `json:"memory"`
		}
		require.NoError(t, json.Unmarshal(out.Bytes(), &st))
		return st.Memory
	}

	m := status()
	assert.Equal(t, 2.0, m["used_pages"])
	assert.Equal(t, 512.0, m["total_pages"])

	require.NoError(t, dispatch("erase", baseArgs(image), &bytes.Buffer{}))
	assert.Equal(t, 0.0, status()["used_pages"])
}

func fastConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Mode = config.ModeContinuous
	cfg.Measurement.PressureTimeMs = 10
	cfg.Measurement.TemperatureTimeMs = 10
	cfg.Measurement.AnalogPeriodMs = 50
	cfg.Write.BaseIntervalMs = 20
	cfg.Power.PressurePreheatMs = 20
	cfg.Power.TemperaturePreheatMs = 20
	cfg.Storage.Image = filepath.Join(t.TempDir(), "flash.img")
	cfg.Storage.PageSize = 128
	cfg.Storage.Pages = 64
	return cfg
}

func TestInstrumentRun(t *testing.T) {
	if testing.Short() {
		t.Skip("real-time simulation")
	}
	cfg := fastConfig(t)
	inst, err := newInstrument(cfg)
	require.NoError(t, err)
	pub := telemetry.NewFakePublisher()
	inst.attachTelemetry(pub)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, inst.Run(ctx))
	inst.Close()
	assert.True(t, pub.Closed)

	assert.NotEmpty(t, pub.Pages, "full pages are announced")

	pages, flash, err := openPages(cfg)
	require.NoError(t, err)
	defer flash.Close()
	valid := 0
	require.NoError(t, pages.Scan(func(_ int, rec *pagestore.Record, err error) bool {
		require.NoError(t, err)
		for _, v := range rec.Samples[channel.Pressure] {
			if v.Valid {
				valid++
				assert.NotZero(t, v.Raw)
			}
		}
		return true
	}))
	assert.Positive(t, valid)
}

func TestInstrumentUnderVoltage(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Mode = config.ModeDutyCycled
	cfg.Sim.BatteryRaw = 1551 // 2.5 V behind the divider

	inst, err := newInstrument(cfg)
	require.NoError(t, err)
	defer inst.Close()

	err = inst.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errcode.UnderVoltage, errcode.Of(err))
}
