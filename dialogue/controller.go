package dialogue

import (
	"context"
	"log/slog"
	"sync"

	"Skycast/core"
	"Skycast/holder"
	"Skycast/lib/sl"
	"Skycast/observability"
	"Skycast/storage"
	"Skycast/weather"
)

// Menu labels shown on the persistent reply keyboard.
const (
	MenuCurrent  = "Current weather"
	MenuForecast = "Weather forecast"
	MenuSettings = "Settings"
)

const (
	replyChoose    = "Choose option"
	replyTypeCity  = "Type city"
	replySendGeo   = "Send location"
	replyPreparing = "Preparing your weather forecast..."
	replyNoCity    = "Sorry, no city found"
	replyError     = "Sorry, something went wrong. Please try again later."
	replySaved     = "Your location was successfully saved. You can check all your settings with Settings button in menu."
)

// WeatherProvider is the slice of the weather client the controller needs.
type WeatherProvider interface {
	FindCity(ctx context.Context, query, units string) (*weather.Snapshot, error)
	Current(ctx context.Context, lat, lon float64, units string) (*weather.Snapshot, error)
	Extended(ctx context.Context, lat, lon float64, units string) (*weather.Details, error)
	Forecast(ctx context.Context, lat, lon float64, units string) (*weather.Forecast, error)
}

// Renderer produces hosted panel images and composite strips.
type Renderer interface {
	Panel(ctx context.Context, label string, temp int, conditionID int, symbol string) (string, error)
	Composite(ctx context.Context, urls []string) ([]byte, error)
}

// Controller is the per-chat dialogue state machine. It interprets
// inbound events against the chat's session state, drives the weather
// and render clients and the user store, and emits outbound messages.
type Controller struct {
	log      *slog.Logger
	users    storage.UserStorage
	weather  WeatherProvider
	renderer Renderer
	sessions *holder.SessionManager
	out      core.Responder
	metrics  *observability.Metrics

	locks sync.Map // chat id -> *sync.Mutex
}

func NewController(
	log *slog.Logger,
	users storage.UserStorage,
	provider WeatherProvider,
	renderer Renderer,
	sessions *holder.SessionManager,
	out core.Responder,
	metrics *observability.Metrics,
) *Controller {
	return &Controller{
		log:      log.With(sl.Module("dialogue")),
		users:    users,
		weather:  provider,
		renderer: renderer,
		sessions: sessions,
		out:      out,
		metrics:  metrics,
	}
}

// Handle processes one inbound event. Events for the same chat are
// serialized; different chats proceed concurrently.
func (c *Controller) Handle(e core.Event) {
	lock := c.chatLock(e.ChatID)
	lock.Lock()
	defer lock.Unlock()

	ctx := context.Background()

	switch e.Kind {
	case core.EventCommand:
		c.handleCommand(ctx, e)
	case core.EventText:
		c.handleText(ctx, e)
	case core.EventLocation:
		c.handleLocation(ctx, e)
	case core.EventCallback:
		c.handleCallback(ctx, e)
	}
}

func (c *Controller) chatLock(chatID int64) *sync.Mutex {
	v, _ := c.locks.LoadOrStore(chatID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (c *Controller) handleCommand(ctx context.Context, e core.Event) {
	switch e.Command {
	case "start":
		if _, err := c.users.GetOrCreate(ctx, e.ChatID); err != nil {
			c.fail(e.ChatID, "storage", err)
			return
		}
		c.send(e.ChatID, func() (int, error) { return c.out.SendMenu(e.ChatID, "Hello!") })
	case "help":
		text := "I can show you the weather:\n" +
			MenuCurrent + " - current conditions for a city or location\n" +
			MenuForecast + " - 7-day forecast\n" +
			MenuSettings + " - saved location and units\n" +
			"/cancel - abort the current question\n"
		c.sendText(e.ChatID, text)
	case "cancel":
		if c.setIdle(e.ChatID) {
			c.sendText(e.ChatID, "Cancelled.")
		} else {
			c.sendText(e.ChatID, "Nothing to cancel.")
		}
	default:
		c.log.Debug("unknown command", sl.Chat(e.ChatID), slog.String("command", e.Command))
	}
}

func (c *Controller) handleText(ctx context.Context, e core.Event) {
	switch e.Text {
	case MenuCurrent:
		c.chooseTarget(ctx, e.ChatID, KindLookupSaved, KindLookupCity, KindLookupGeo)
		return
	case MenuForecast:
		c.chooseTarget(ctx, e.ChatID, KindForecastSaved, KindForecastCity, KindForecastGeo)
		return
	case MenuSettings:
		c.showSettings(ctx, e.ChatID)
		return
	}

	state := c.sessions.State(e.ChatID)
	switch state {
	case holder.StateAwaitCityLookup:
		c.setState(e.ChatID, holder.StateIdle)
		c.lookupByCity(ctx, e.ChatID, e.Text)
	case holder.StateAwaitCitySave:
		c.setState(e.ChatID, holder.StateIdle)
		c.saveByCity(ctx, e.ChatID, e.Text)
	case holder.StateAwaitCityForecast:
		c.setState(e.ChatID, holder.StateIdle)
		c.forecastByCity(ctx, e.ChatID, e.Text)
	default:
		if state.AwaitsGeo() {
			// wrong input kind: keep waiting, remind gently
			c.sendText(e.ChatID, "Please share a location, or /cancel.")
			return
		}
		c.log.Debug("unhandled text", sl.Chat(e.ChatID))
	}
}

func (c *Controller) handleLocation(ctx context.Context, e core.Event) {
	state := c.sessions.State(e.ChatID)
	switch state {
	case holder.StateAwaitGeoLookup:
		c.setState(e.ChatID, holder.StateIdle)
		c.lookupByGeo(ctx, e.ChatID, e.Latitude, e.Longitude)
	case holder.StateAwaitGeoSave:
		c.setState(e.ChatID, holder.StateIdle)
		c.saveByGeo(ctx, e.ChatID, e.Latitude, e.Longitude)
	case holder.StateAwaitGeoForecast:
		c.setState(e.ChatID, holder.StateIdle)
		c.forecastByGeo(ctx, e.ChatID, e.Latitude, e.Longitude)
	default:
		if state.AwaitsCity() {
			c.sendText(e.ChatID, "Please type a city name, or /cancel.")
			return
		}
		c.log.Debug("unhandled location", sl.Chat(e.ChatID))
	}
}

func (c *Controller) handleCallback(ctx context.Context, e core.Event) {
	defer func() {
		if err := c.out.AnswerCallback(e.CallbackID); err != nil {
			c.log.Error("answering callback", sl.Chat(e.ChatID), sl.Err(err))
		}
	}()

	p, err := DecodePayload(e.CallbackData)
	if err != nil {
		c.log.Error("decoding callback", sl.Chat(e.ChatID), sl.Err(err))
		return
	}

	switch p.Kind {
	case KindLookupCity:
		c.prompt(e, holder.StateAwaitCityLookup, replyTypeCity)
	case KindLookupGeo:
		c.prompt(e, holder.StateAwaitGeoLookup, replySendGeo)
	case KindLookupSaved:
		c.lookupByGeo(ctx, e.ChatID, p.Lat, p.Lon)
	case KindForecastCity:
		c.prompt(e, holder.StateAwaitCityForecast, replyTypeCity)
	case KindForecastGeo:
		c.prompt(e, holder.StateAwaitGeoForecast, replySendGeo)
	case KindForecastSaved:
		c.forecastSaved(ctx, e, p.Lat, p.Lon)
	case KindDetails:
		c.details(ctx, e.ChatID, e.MessageID, p)
	case KindToggleUnit:
		c.toggleUnit(ctx, e.ChatID, e.MessageID)
	case KindChangeLocation:
		c.edit(e.ChatID, e.MessageID, "Choose option to set new location", []core.Button{
			{Label: replySendGeo, Data: Payload{Kind: KindSaveGeo}.Encode()},
			{Label: replyTypeCity, Data: Payload{Kind: KindSaveCity}.Encode()},
		})
	case KindSaveCity:
		c.prompt(e, holder.StateAwaitCitySave, replyTypeCity)
	case KindSaveGeo:
		c.prompt(e, holder.StateAwaitGeoSave, replySendGeo)
	default:
		c.log.Warn("unknown callback kind", sl.Chat(e.ChatID), slog.String("kind", string(p.Kind)))
	}
}

// prompt moves the chat into an await state and rewrites the choice
// message with the expected-input prompt.
func (c *Controller) prompt(e core.Event, state holder.State, text string) {
	c.setState(e.ChatID, state)
	c.edit(e.ChatID, e.MessageID, text, nil)
}

// chooseTarget presents the location choice for a flow: the saved
// location when one exists, otherwise a fresh city or geolocation.
func (c *Controller) chooseTarget(ctx context.Context, chatID int64, saved, city, geo PayloadKind) {
	loc, err := c.users.SavedLocation(ctx, chatID)
	if err != nil {
		c.fail(chatID, "storage", err)
		return
	}

	var buttons []core.Button
	if loc != nil {
		buttons = []core.Button{
			{Label: "Current location", Data: Payload{Kind: saved, Lat: loc.Lat, Lon: loc.Lon, City: loc.City}.Encode()},
			{Label: "Another city", Data: Payload{Kind: city}.Encode()},
		}
	} else {
		buttons = []core.Button{
			{Label: replySendGeo, Data: Payload{Kind: geo}.Encode()},
			{Label: replyTypeCity, Data: Payload{Kind: city}.Encode()},
		}
	}
	c.send(chatID, func() (int, error) { return c.out.SendButtons(chatID, replyChoose, buttons) })
}

func (c *Controller) showSettings(ctx context.Context, chatID int64) {
	text, buttons, err := c.settingsView(ctx, chatID)
	if err != nil {
		c.fail(chatID, "storage", err)
		return
	}
	c.send(chatID, func() (int, error) { return c.out.SendButtons(chatID, text, buttons) })
}

// toggleUnit flips the unit preference and redraws the settings view in
// place. The unit is re-read from the store, never reconstructed from
// button payloads.
func (c *Controller) toggleUnit(ctx context.Context, chatID int64, messageID int) {
	if _, err := c.users.ToggleUnit(ctx, chatID); err != nil {
		c.fail(chatID, "storage", err)
		return
	}
	text, buttons, err := c.settingsView(ctx, chatID)
	if err != nil {
		c.fail(chatID, "storage", err)
		return
	}
	c.edit(chatID, messageID, text, buttons)
}

func (c *Controller) settingsView(ctx context.Context, chatID int64) (string, []core.Button, error) {
	loc, err := c.users.SavedLocation(ctx, chatID)
	if err != nil {
		return "", nil, err
	}
	unit, err := c.users.Unit(ctx, chatID)
	if err != nil {
		return "", nil, err
	}

	locLabel := "Add saved location"
	if loc != nil {
		locLabel = "Change location"
	}
	buttons := []core.Button{
		{Label: locLabel, Data: Payload{Kind: KindChangeLocation}.Encode()},
		{Label: "Change metric (" + unit.Symbol() + ")", Data: Payload{Kind: KindToggleUnit}.Encode()},
	}
	return settingsText(loc, unit), buttons, nil
}

// setState updates the session slot and the active-sessions gauge.
func (c *Controller) setState(chatID int64, state holder.State) {
	c.sessions.Set(chatID, state)
	c.metrics.ActiveSessions.Set(float64(c.sessions.Len()))
}

func (c *Controller) setIdle(chatID int64) bool {
	cleared := c.sessions.Clear(chatID)
	c.metrics.ActiveSessions.Set(float64(c.sessions.Len()))
	return cleared
}
