package dialogue

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Skycast/core"
	"Skycast/holder"
	"Skycast/observability"
	"Skycast/render"
	"Skycast/storage"
	"Skycast/weather"
)

type sentMessage struct {
	op      string // text, buttons, menu, photo_url, photo_bytes, edit, edit_caption, delete
	chatID  int64
	id      int
	text    string
	buttons []core.Button
	url     string
	data    []byte
}

type fakeResponder struct {
	mu     sync.Mutex
	nextID int
	sent   []sentMessage
}

func (f *fakeResponder) record(m sentMessage) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m.id = f.nextID
	f.sent = append(f.sent, m)
	return m.id
}

func (f *fakeResponder) SendText(chatID int64, text string) (int, error) {
	return f.record(sentMessage{op: "text", chatID: chatID, text: text}), nil
}

func (f *fakeResponder) SendButtons(chatID int64, text string, buttons []core.Button) (int, error) {
	return f.record(sentMessage{op: "buttons", chatID: chatID, text: text, buttons: buttons}), nil
}

func (f *fakeResponder) SendMenu(chatID int64, text string) (int, error) {
	return f.record(sentMessage{op: "menu", chatID: chatID, text: text}), nil
}

func (f *fakeResponder) SendPhotoURL(chatID int64, url, caption string, buttons []core.Button) (int, error) {
	return f.record(sentMessage{op: "photo_url", chatID: chatID, url: url, text: caption, buttons: buttons}), nil
}

func (f *fakeResponder) SendPhotoBytes(chatID int64, name string, data []byte, caption string) (int, error) {
	return f.record(sentMessage{op: "photo_bytes", chatID: chatID, text: caption, data: data, url: name}), nil
}

func (f *fakeResponder) EditText(chatID int64, messageID int, text string, buttons []core.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{op: "edit", chatID: chatID, id: messageID, text: text, buttons: buttons})
	return nil
}

func (f *fakeResponder) EditCaption(chatID int64, messageID int, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{op: "edit_caption", chatID: chatID, id: messageID, text: caption})
	return nil
}

func (f *fakeResponder) DeleteMessage(chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{op: "delete", chatID: chatID, id: messageID})
	return nil
}

func (f *fakeResponder) AnswerCallback(string) error { return nil }

func (f *fakeResponder) last(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

func (f *fakeResponder) ofOp(op string) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.op == op {
			out = append(out, m)
		}
	}
	return out
}

type fakeWeather struct {
	findSnap    *weather.Snapshot
	findErr     error
	currentSnap *weather.Snapshot
	currentErr  error
	details     *weather.Details
	forecast    *weather.Forecast
	forecastErr error

	findCalls     int
	currentCalls  int
	forecastCalls int
	lastUnits     string
}

func (f *fakeWeather) FindCity(_ context.Context, _, units string) (*weather.Snapshot, error) {
	f.findCalls++
	f.lastUnits = units
	return f.findSnap, f.findErr
}

func (f *fakeWeather) Current(_ context.Context, _, _ float64, units string) (*weather.Snapshot, error) {
	f.currentCalls++
	f.lastUnits = units
	return f.currentSnap, f.currentErr
}

func (f *fakeWeather) Extended(context.Context, float64, float64, string) (*weather.Details, error) {
	return f.details, nil
}

func (f *fakeWeather) Forecast(context.Context, float64, float64, string) (*weather.Forecast, error) {
	f.forecastCalls++
	return f.forecast, f.forecastErr
}

type fakeRenderer struct {
	mu     sync.Mutex
	panels []string
}

func (f *fakeRenderer) Panel(_ context.Context, label string, _ int, conditionID int, _ string) (string, error) {
	if _, err := render.TemplateFor(conditionID); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panels = append(f.panels, label)
	return "https://img.example/" + label + ".png", nil
}

func (f *fakeRenderer) Composite(_ context.Context, urls []string) ([]byte, error) {
	return []byte{byte(len(urls))}, nil
}

type fixture struct {
	controller *Controller
	out        *fakeResponder
	provider   *fakeWeather
	renderer   *fakeRenderer
	users      *storage.MemoryStorage
	sessions   *holder.SessionManager
}

func newFixture() *fixture {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		out:      &fakeResponder{},
		provider: &fakeWeather{},
		renderer: &fakeRenderer{},
		users:    storage.NewMemoryStorage(),
		sessions: holder.NewSessionManager(time.Hour, clockwork.NewFakeClock(), log),
	}
	f.controller = NewController(
		log, f.users, f.provider, f.renderer, f.sessions, f.out,
		observability.NewMetricsForTesting(),
	)
	return f
}

func text(chatID int64, s string) core.Event {
	return core.Event{ChatID: chatID, Kind: core.EventText, Text: s}
}

func command(chatID int64, name string) core.Event {
	return core.Event{ChatID: chatID, Kind: core.EventCommand, Command: name}
}

func callback(chatID int64, messageID int, p Payload) core.Event {
	return core.Event{
		ChatID:       chatID,
		MessageID:    messageID,
		Kind:         core.EventCallback,
		CallbackID:   "cb",
		CallbackData: p.Encode(),
	}
}

func location(chatID int64, lat, lon float64) core.Event {
	return core.Event{ChatID: chatID, Kind: core.EventLocation, Latitude: lat, Longitude: lon}
}

var lisbon = &weather.Snapshot{
	City: "Lisbon", Lat: 38.72, Lon: -9.13,
	Temp: 21.4, FeelsLike: 20.6,
	ConditionID: 800, Description: "clear sky",
}

func TestCancel(t *testing.T) {
	t.Run("cancels an active flow", func(t *testing.T) {
		f := newFixture()
		f.controller.Handle(callback(1, 10, Payload{Kind: KindLookupCity}))
		require.Equal(t, holder.StateAwaitCityLookup, f.sessions.State(1))

		f.controller.Handle(command(1, "cancel"))
		assert.Equal(t, holder.StateIdle, f.sessions.State(1))
		assert.Equal(t, "Cancelled.", f.out.last(t).text)
	})

	t.Run("idempotent when idle", func(t *testing.T) {
		f := newFixture()
		f.controller.Handle(callback(1, 10, Payload{Kind: KindLookupCity}))
		f.controller.Handle(command(1, "cancel"))
		f.controller.Handle(command(1, "cancel"))
		assert.Equal(t, "Nothing to cancel.", f.out.last(t).text)
	})
}

func TestFlowOverwrite(t *testing.T) {
	f := newFixture()
	f.provider.forecast = &weather.Forecast{
		Days: []weather.Day{{Date: time.Unix(1714132800, 0), DayTemp: 20, ConditionID: 800}},
	}

	// a city-lookup flow is pending ...
	f.controller.Handle(callback(1, 10, Payload{Kind: KindLookupCity}))
	require.Equal(t, holder.StateAwaitCityLookup, f.sessions.State(1))

	// ... and a forecast flow silently replaces it
	f.controller.Handle(callback(1, 11, Payload{Kind: KindForecastGeo}))
	require.Equal(t, holder.StateAwaitGeoForecast, f.sessions.State(1))

	f.controller.Handle(location(1, 38.72, -9.13))
	assert.Equal(t, 1, f.provider.forecastCalls)
	assert.Equal(t, 0, f.provider.findCalls, "the replaced lookup flow must not run")
	assert.Equal(t, holder.StateIdle, f.sessions.State(1))
}

func TestLookupByCity(t *testing.T) {
	t.Run("happy path sends photo and saves first location", func(t *testing.T) {
		f := newFixture()
		f.provider.findSnap = lisbon

		f.controller.Handle(text(1, MenuCurrent))
		choice := f.out.last(t)
		assert.Equal(t, "buttons", choice.op)
		assert.Equal(t, "Choose option", choice.text)

		f.controller.Handle(callback(1, choice.id, Payload{Kind: KindLookupCity}))
		assert.Equal(t, "Type city", f.out.last(t).text)

		f.controller.Handle(text(1, "Lisbon"))
		photo := f.out.last(t)
		assert.Equal(t, "photo_url", photo.op)
		assert.Equal(t, "https://img.example/Lisbon.png", photo.url)
		assert.Contains(t, photo.text, "Current temp in Lisbon is 21 °C")
		assert.Contains(t, photo.text, "*Clear sky*")
		require.Len(t, photo.buttons, 1)
		assert.Equal(t, "Details", photo.buttons[0].Label)

		p, err := DecodePayload(photo.buttons[0].Data)
		require.NoError(t, err)
		assert.Equal(t, KindDetails, p.Kind)
		assert.Equal(t, 38.72, p.Lat)
		assert.Equal(t, "Lisbon", p.City)

		loc, err := f.users.SavedLocation(context.Background(), 1)
		require.NoError(t, err)
		require.NotNil(t, loc)
		assert.Equal(t, "Lisbon", loc.City)
		assert.Equal(t, holder.StateIdle, f.sessions.State(1))
	})

	t.Run("second lookup keeps the first saved location", func(t *testing.T) {
		f := newFixture()
		f.provider.findSnap = lisbon

		f.controller.Handle(callback(1, 10, Payload{Kind: KindLookupCity}))
		f.controller.Handle(text(1, "Lisbon"))

		f.provider.findSnap = &weather.Snapshot{
			City: "Porto", Lat: 41.15, Lon: -8.61,
			Temp: 18, FeelsLike: 17, ConditionID: 500, Description: "light rain",
		}
		f.controller.Handle(callback(1, 11, Payload{Kind: KindLookupCity}))
		f.controller.Handle(text(1, "Porto"))

		loc, err := f.users.SavedLocation(context.Background(), 1)
		require.NoError(t, err)
		require.NotNil(t, loc)
		assert.Equal(t, "Lisbon", loc.City, "implicit save must not overwrite")
	})

	t.Run("no city found", func(t *testing.T) {
		f := newFixture()
		f.provider.findErr = weather.ErrNoCity

		f.controller.Handle(callback(1, 10, Payload{Kind: KindLookupCity}))
		f.controller.Handle(text(1, "Xyzzy"))

		assert.Equal(t, "Sorry, no city found", f.out.last(t).text)
		assert.Equal(t, holder.StateIdle, f.sessions.State(1))
		loc, _ := f.users.SavedLocation(context.Background(), 1)
		assert.Nil(t, loc)
	})

	t.Run("uses the stored unit", func(t *testing.T) {
		f := newFixture()
		f.provider.findSnap = lisbon
		_, err := f.users.ToggleUnit(context.Background(), 1)
		require.NoError(t, err)

		f.controller.Handle(callback(1, 10, Payload{Kind: KindLookupCity}))
		f.controller.Handle(text(1, "Lisbon"))
		assert.Equal(t, "imperial", f.provider.lastUnits)
	})

	t.Run("unresolved condition degrades to text", func(t *testing.T) {
		f := newFixture()
		f.provider.findSnap = &weather.Snapshot{
			City: "Lisbon", Lat: 38.72, Lon: -9.13,
			Temp: 21, FeelsLike: 20, ConditionID: 999, Description: "mystery",
		}
		f.controller.Handle(callback(1, 10, Payload{Kind: KindLookupCity}))
		f.controller.Handle(text(1, "Lisbon"))

		last := f.out.last(t)
		assert.Equal(t, "buttons", last.op)
		assert.Contains(t, last.text, "Current temp in Lisbon")
		assert.Empty(t, f.out.ofOp("photo_url"))
	})
}

func TestWrongInputKind(t *testing.T) {
	t.Run("text while awaiting location", func(t *testing.T) {
		f := newFixture()
		f.controller.Handle(callback(1, 10, Payload{Kind: KindLookupGeo}))
		f.controller.Handle(text(1, "Lisbon"))

		assert.Equal(t, "Please share a location, or /cancel.", f.out.last(t).text)
		assert.Equal(t, holder.StateAwaitGeoLookup, f.sessions.State(1), "state is kept")
	})

	t.Run("location while awaiting city", func(t *testing.T) {
		f := newFixture()
		f.controller.Handle(callback(1, 10, Payload{Kind: KindLookupCity}))
		f.controller.Handle(location(1, 38.72, -9.13))

		assert.Equal(t, "Please type a city name, or /cancel.", f.out.last(t).text)
		assert.Equal(t, holder.StateAwaitCityLookup, f.sessions.State(1))
	})
}

func TestSaveLocation(t *testing.T) {
	t.Run("explicit save always overwrites", func(t *testing.T) {
		f := newFixture()
		ctx := context.Background()
		require.NoError(t, f.users.SetSavedLocation(ctx, 1, storage.Location{Lat: 1, Lon: 2, City: "Old"}))

		f.provider.findSnap = lisbon
		f.controller.Handle(callback(1, 10, Payload{Kind: KindSaveCity}))
		assert.Equal(t, holder.StateAwaitCitySave, f.sessions.State(1))

		f.controller.Handle(text(1, "Lisbon"))
		loc, err := f.users.SavedLocation(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Lisbon", loc.City)
		assert.Contains(t, f.out.last(t).text, "successfully saved")
	})

	t.Run("save by geo resolves a display name", func(t *testing.T) {
		f := newFixture()
		f.provider.currentSnap = lisbon

		f.controller.Handle(callback(1, 10, Payload{Kind: KindSaveGeo}))
		f.controller.Handle(location(1, 38.72, -9.13))

		loc, err := f.users.SavedLocation(context.Background(), 1)
		require.NoError(t, err)
		require.NotNil(t, loc)
		assert.Equal(t, "Lisbon", loc.City)
		assert.Equal(t, 38.72, loc.Lat)
	})
}

func TestToggleUnit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.controller.Handle(text(1, MenuSettings))
	settings := f.out.last(t)
	assert.Equal(t, "buttons", settings.op)
	assert.Contains(t, settings.text, "metric (°C)")

	f.controller.Handle(callback(1, settings.id, Payload{Kind: KindToggleUnit}))
	unit, err := f.users.Unit(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, storage.UnitFahrenheit, unit)

	edits := f.out.ofOp("edit")
	require.NotEmpty(t, edits)
	redraw := edits[len(edits)-1]
	assert.Equal(t, settings.id, redraw.id)
	assert.Contains(t, redraw.text, "imperial (°F)")
	require.Len(t, redraw.buttons, 2)
	assert.Equal(t, "Change metric (°F)", redraw.buttons[1].Label)

	// and back again
	f.controller.Handle(callback(1, settings.id, Payload{Kind: KindToggleUnit}))
	unit, err = f.users.Unit(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, storage.UnitCelsius, unit)
}

func TestDetails(t *testing.T) {
	f := newFixture()
	f.provider.details = &weather.Details{
		Snapshot: weather.Snapshot{
			Temp: 21, FeelsLike: 20, ConditionID: 800, Description: "clear sky",
		},
		Pressure: 1018, Humidity: 64, UVIndex: 1.2, WindSpeed: 4.9,
	}

	f.controller.Handle(callback(1, 33, Payload{Kind: KindDetails, Lat: 38.72, Lon: -9.13, City: "Lisbon"}))

	captions := f.out.ofOp("edit_caption")
	require.Len(t, captions, 1)
	assert.Equal(t, 33, captions[0].id)
	assert.Contains(t, captions[0].text, "Current temp in Lisbon")
	assert.Contains(t, captions[0].text, "Wind speed: 4.9m/s (Gentle breeze)")
	assert.NotContains(t, captions[0].text, "heightened")
}

func TestForecast(t *testing.T) {
	nineDays := func() *weather.Forecast {
		fc := &weather.Forecast{Timezone: "Europe/Lisbon"}
		base := time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 9; i++ {
			fc.Days = append(fc.Days, weather.Day{
				Date: base.AddDate(0, 0, i), DayTemp: 20, ConditionID: 800,
			})
		}
		return fc
	}

	t.Run("truncates to seven days and removes the status message", func(t *testing.T) {
		f := newFixture()
		fc := nineDays()
		fc.Alerts = []weather.Alert{{
			Start:       time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC),
			End:         time.Date(2024, 4, 26, 18, 0, 0, 0, time.UTC),
			Description: "Gusts *90 km/h*",
		}}
		f.provider.forecast = fc

		f.controller.Handle(callback(1, 10, Payload{Kind: KindForecastGeo}))
		f.controller.Handle(location(1, 38.72, -9.13))

		assert.Len(t, f.renderer.panels, 7)
		assert.Equal(t, "2024-04-26", f.renderer.panels[0])

		photos := f.out.ofOp("photo_bytes")
		require.Len(t, photos, 1)
		assert.Equal(t, []byte{7}, photos[0].data)
		assert.Contains(t, photos[0].text, "*National alerts*:")
		assert.Contains(t, photos[0].text, `Gusts \*90 km/h\*`)

		deletes := f.out.ofOp("delete")
		require.Len(t, deletes, 1, "the preparing message is removed")
	})

	t.Run("saved-location forecast edits the choice message", func(t *testing.T) {
		f := newFixture()
		f.provider.forecast = nineDays()

		f.controller.Handle(callback(1, 42, Payload{Kind: KindForecastSaved, Lat: 38.72, Lon: -9.13, City: "Lisbon"}))

		edits := f.out.ofOp("edit")
		require.NotEmpty(t, edits)
		assert.Equal(t, "Preparing your weather forecast...", edits[0].text)
		assert.Equal(t, 42, edits[0].id)

		deletes := f.out.ofOp("delete")
		require.Len(t, deletes, 1)
		assert.Equal(t, 42, deletes[0].id)
	})

	t.Run("skips unresolved panels", func(t *testing.T) {
		f := newFixture()
		fc := nineDays()
		fc.Days = fc.Days[:3]
		fc.Days[1].ConditionID = 999
		f.provider.forecast = fc

		f.controller.Handle(callback(1, 10, Payload{Kind: KindForecastGeo}))
		f.controller.Handle(location(1, 38.72, -9.13))

		assert.Len(t, f.renderer.panels, 2)
		photos := f.out.ofOp("photo_bytes")
		require.Len(t, photos, 1)
		assert.Equal(t, []byte{2}, photos[0].data)
	})

	t.Run("geo forecast saves first location with the timezone label", func(t *testing.T) {
		f := newFixture()
		f.provider.forecast = nineDays()

		f.controller.Handle(callback(1, 10, Payload{Kind: KindForecastGeo}))
		f.controller.Handle(location(1, 38.72, -9.13))

		loc, err := f.users.SavedLocation(context.Background(), 1)
		require.NoError(t, err)
		require.NotNil(t, loc)
		assert.Equal(t, "Europe/Lisbon", loc.City)
	})
}

func TestChooseTarget(t *testing.T) {
	t.Run("saved location offered first", func(t *testing.T) {
		f := newFixture()
		ctx := context.Background()
		require.NoError(t, f.users.SetSavedLocation(ctx, 1, storage.Location{Lat: 38.72, Lon: -9.13, City: "Lisbon"}))

		f.controller.Handle(text(1, MenuCurrent))
		choice := f.out.last(t)
		require.Len(t, choice.buttons, 2)
		assert.Equal(t, "Current location", choice.buttons[0].Label)

		p, err := DecodePayload(choice.buttons[0].Data)
		require.NoError(t, err)
		assert.Equal(t, KindLookupSaved, p.Kind)
		assert.Equal(t, 38.72, p.Lat)
		assert.Equal(t, -9.13, p.Lon)
	})

	t.Run("no saved location offers fresh input", func(t *testing.T) {
		f := newFixture()
		f.controller.Handle(text(1, MenuForecast))
		choice := f.out.last(t)
		require.Len(t, choice.buttons, 2)
		assert.Equal(t, "Send location", choice.buttons[0].Label)
		assert.Equal(t, "Type city", choice.buttons[1].Label)
	})

	t.Run("saved lookup runs immediately without a session", func(t *testing.T) {
		f := newFixture()
		f.provider.currentSnap = lisbon

		f.controller.Handle(callback(1, 10, Payload{Kind: KindLookupSaved, Lat: 38.72, Lon: -9.13, City: "Lisbon"}))
		assert.Equal(t, 1, f.provider.currentCalls)
		assert.Equal(t, holder.StateIdle, f.sessions.State(1))
		photos := f.out.ofOp("photo_url")
		require.Len(t, photos, 1)
	})
}

func TestStartAndHelp(t *testing.T) {
	f := newFixture()
	f.controller.Handle(command(1, "start"))
	assert.Equal(t, "menu", f.out.last(t).op)
	assert.Equal(t, "Hello!", f.out.last(t).text)

	user, err := f.users.GetOrCreate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, storage.UnitCelsius, user.Unit)

	f.controller.Handle(command(1, "help"))
	assert.Contains(t, f.out.last(t).text, MenuCurrent)
}
