package weather

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient("test-key", slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.SetBaseURL(server.URL)
	return c
}

func TestFindCity(t *testing.T) {
	t.Run("first match wins", func(t *testing.T) {
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/find", r.URL.Path)
			assert.Equal(t, "Lisbon", r.URL.Query().Get("q"))
			assert.Equal(t, "like", r.URL.Query().Get("type"))
			assert.Equal(t, "metric", r.URL.Query().Get("units"))
			assert.Equal(t, "test-key", r.URL.Query().Get("APPID"))
			_, _ = w.Write([]byte(`{"list":[
                {"name":"Lisbon","coord":{"lat":38.72,"lon":-9.13},
                 "main":{"temp":21.4,"feels_like":20.9},
                 "weather":[{"id":800,"description":"clear sky"}]},
                {"name":"Lisbon Falls","coord":{"lat":44.03,"lon":-70.06},
                 "main":{"temp":12.0,"feels_like":11.1},
                 "weather":[{"id":804,"description":"overcast clouds"}]}
            ]}`))
		})

		snap, err := c.FindCity(context.Background(), "Lisbon", "metric")
		require.NoError(t, err)
		assert.Equal(t, "Lisbon", snap.City)
		assert.Equal(t, 38.72, snap.Lat)
		assert.Equal(t, -9.13, snap.Lon)
		assert.Equal(t, 21.4, snap.Temp)
		assert.Equal(t, 20.9, snap.FeelsLike)
		assert.Equal(t, 800, snap.ConditionID)
		assert.Equal(t, "clear sky", snap.Description)
	})

	t.Run("empty result", func(t *testing.T) {
		c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"list":[]}`))
		})
		_, err := c.FindCity(context.Background(), "Nowhereville", "metric")
		assert.ErrorIs(t, err, ErrNoCity)
	})

	t.Run("provider failure", func(t *testing.T) {
		c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := c.FindCity(context.Background(), "Lisbon", "metric")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 502")
	})
}

func TestCurrent(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		assert.Equal(t, "38.72", r.URL.Query().Get("lat"))
		assert.Equal(t, "-9.13", r.URL.Query().Get("lon"))
		_, _ = w.Write([]byte(`{"name":"Lisbon","coord":{"lat":38.72,"lon":-9.13},
            "main":{"temp":19.6,"feels_like":19.0},
            "weather":[{"id":500,"description":"light rain"}]}`))
	})

	snap, err := c.Current(context.Background(), 38.72, -9.13, "metric")
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", snap.City)
	assert.Equal(t, 500, snap.ConditionID)
	assert.Equal(t, "light rain", snap.Description)
}

func TestExtended(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/onecall", r.URL.Path)
		assert.Equal(t, "minutely,hourly", r.URL.Query().Get("exclude"))
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		_, _ = w.Write([]byte(`{"timezone":"Europe/Lisbon","current":{
            "temp":19.6,"feels_like":19.0,"pressure":1018,"humidity":64,
            "uvi":3.2,"wind_speed":4.4,
            "weather":[{"id":800,"description":"clear sky"}]}}`))
	})

	d, err := c.Extended(context.Background(), 38.72, -9.13, "metric")
	require.NoError(t, err)
	assert.Equal(t, 1018, d.Pressure)
	assert.Equal(t, 64, d.Humidity)
	assert.Equal(t, 3.2, d.UVIndex)
	assert.Equal(t, 4.4, d.WindSpeed)
	assert.Equal(t, 800, d.ConditionID)
}

func TestForecast(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"timezone":"Europe/Lisbon",
            "current":{"temp":19.6,"feels_like":19.0,"weather":[{"id":800,"description":"clear sky"}]},
            "daily":[
                {"dt":1714132800,"temp":{"day":21.0},"weather":[{"id":800,"description":"clear sky"}]},
                {"dt":1714219200,"temp":{"day":18.5},"weather":[{"id":501,"description":"moderate rain"}]}
            ],
            "alerts":[{"start":1714132800,"end":1714150800,"description":"Yellow wind warning"}]}`))
	})

	fc, err := c.Forecast(context.Background(), 38.72, -9.13, "metric")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Lisbon", fc.Timezone)
	require.Len(t, fc.Days, 2)
	assert.Equal(t, 21.0, fc.Days[0].DayTemp)
	assert.Equal(t, 800, fc.Days[0].ConditionID)
	assert.Equal(t, time.Unix(1714132800, 0), fc.Days[0].Date)
	require.Len(t, fc.Alerts, 1)
	assert.Equal(t, "Yellow wind warning", fc.Alerts[0].Description)
	assert.Equal(t, time.Unix(1714150800, 0), fc.Alerts[0].End)
}
