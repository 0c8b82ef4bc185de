package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"Skycast/lib/sl"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5"

// Client talks to the OpenWeatherMap API. Plain request/response, no
// retries and no caching; failures propagate to the caller.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(apiKey string, log *slog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log.With(sl.Module("weather")),
	}
}

// SetBaseURL overrides the provider endpoint, used in tests.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

type owmConditions struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type owmMain struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
}

type owmCoord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type owmCity struct {
	Name    string          `json:"name"`
	Coord   owmCoord        `json:"coord"`
	Main    owmMain         `json:"main"`
	Weather []owmConditions `json:"weather"`
}

// FindCity resolves a free-text city query to its best match with
// current conditions included. Returns ErrNoCity on an empty result.
func (c *Client) FindCity(ctx context.Context, query, units string) (*Snapshot, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "like")
	params.Set("units", units)
	params.Set("APPID", c.apiKey)

	var payload struct {
		List []owmCity `json:"list"`
	}
	if err := c.get(ctx, c.baseURL+"/find", params, &payload); err != nil {
		return nil, err
	}
	if len(payload.List) == 0 {
		return nil, ErrNoCity
	}
	return snapshotFromCity(payload.List[0])
}

// Current fetches current conditions for the given coordinates.
func (c *Client) Current(ctx context.Context, lat, lon float64, units string) (*Snapshot, error) {
	params := coordParams(lat, lon)
	params.Set("units", units)
	params.Set("APPID", c.apiKey)

	var payload owmCity
	if err := c.get(ctx, c.baseURL+"/weather", params, &payload); err != nil {
		return nil, err
	}
	return snapshotFromCity(payload)
}

// Extended fetches current conditions plus detail fields (pressure,
// humidity, UV index, wind speed) for the given coordinates.
func (c *Client) Extended(ctx context.Context, lat, lon float64, units string) (*Details, error) {
	payload, err := c.oneCall(ctx, lat, lon, units)
	if err != nil {
		return nil, err
	}
	if len(payload.Current.Weather) == 0 {
		return nil, fmt.Errorf("onecall: empty current conditions")
	}
	return &Details{
		Snapshot: Snapshot{
			Lat:         lat,
			Lon:         lon,
			Temp:        payload.Current.Temp,
			FeelsLike:   payload.Current.FeelsLike,
			ConditionID: payload.Current.Weather[0].ID,
			Description: payload.Current.Weather[0].Description,
		},
		Pressure:  payload.Current.Pressure,
		Humidity:  payload.Current.Humidity,
		UVIndex:   payload.Current.UVI,
		WindSpeed: payload.Current.WindSpeed,
	}, nil
}

// Forecast fetches the daily forecast and any active alerts for the
// given coordinates.
func (c *Client) Forecast(ctx context.Context, lat, lon float64, units string) (*Forecast, error) {
	payload, err := c.oneCall(ctx, lat, lon, units)
	if err != nil {
		return nil, err
	}

	forecast := &Forecast{Timezone: payload.Timezone}
	for _, day := range payload.Daily {
		if len(day.Weather) == 0 {
			continue
		}
		forecast.Days = append(forecast.Days, Day{
			Date:        time.Unix(day.Dt, 0),
			DayTemp:     day.Temp.Day,
			ConditionID: day.Weather[0].ID,
			Description: day.Weather[0].Description,
		})
	}
	for _, alert := range payload.Alerts {
		forecast.Alerts = append(forecast.Alerts, Alert{
			Start:       time.Unix(alert.Start, 0),
			End:         time.Unix(alert.End, 0),
			Description: alert.Description,
		})
	}
	return forecast, nil
}

type owmOneCall struct {
	Timezone string `json:"timezone"`
	Current  struct {
		Temp      float64         `json:"temp"`
		FeelsLike float64         `json:"feels_like"`
		Pressure  int             `json:"pressure"`
		Humidity  int             `json:"humidity"`
		UVI       float64         `json:"uvi"`
		WindSpeed float64         `json:"wind_speed"`
		Weather   []owmConditions `json:"weather"`
	} `json:"current"`
	Daily []struct {
		Dt   int64 `json:"dt"`
		Temp struct {
			Day float64 `json:"day"`
		} `json:"temp"`
		Weather []owmConditions `json:"weather"`
	} `json:"daily"`
	Alerts []struct {
		Start       int64  `json:"start"`
		End         int64  `json:"end"`
		Description string `json:"description"`
	} `json:"alerts"`
}

func (c *Client) oneCall(ctx context.Context, lat, lon float64, units string) (*owmOneCall, error) {
	params := coordParams(lat, lon)
	params.Set("units", units)
	params.Set("exclude", "minutely,hourly")
	params.Set("appid", c.apiKey)

	var payload owmOneCall
	if err := c.get(ctx, c.baseURL+"/onecall", params, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("weather API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func snapshotFromCity(city owmCity) (*Snapshot, error) {
	if len(city.Weather) == 0 {
		return nil, fmt.Errorf("weather: empty conditions for %q", city.Name)
	}
	return &Snapshot{
		City:        city.Name,
		Lat:         city.Coord.Lat,
		Lon:         city.Coord.Lon,
		Temp:        city.Main.Temp,
		FeelsLike:   city.Main.FeelsLike,
		ConditionID: city.Weather[0].ID,
		Description: city.Weather[0].Description,
	}, nil
}

func coordParams(lat, lon float64) url.Values {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	return params
}
