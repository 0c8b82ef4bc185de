package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"Skycast/core"
	"Skycast/lib/sl"
	"Skycast/render"
	"Skycast/storage"
	"Skycast/weather"
)

func (c *Controller) lookupByCity(ctx context.Context, chatID int64, query string) {
	unit, ok := c.unit(ctx, chatID)
	if !ok {
		return
	}
	snap, err := c.weather.FindCity(ctx, query, unit.ApiUnits())
	if errors.Is(err, weather.ErrNoCity) {
		c.sendText(chatID, replyNoCity)
		return
	}
	if err != nil {
		c.fail(chatID, "weather", err)
		return
	}
	c.sendCurrent(ctx, chatID, snap, unit)
	c.saveFirstLocation(ctx, chatID, snap.Lat, snap.Lon, snap.City)
}

func (c *Controller) lookupByGeo(ctx context.Context, chatID int64, lat, lon float64) {
	unit, ok := c.unit(ctx, chatID)
	if !ok {
		return
	}
	snap, err := c.weather.Current(ctx, lat, lon, unit.ApiUnits())
	if err != nil {
		c.fail(chatID, "weather", err)
		return
	}
	c.sendCurrent(ctx, chatID, snap, unit)
	c.saveFirstLocation(ctx, chatID, snap.Lat, snap.Lon, snap.City)
}

// sendCurrent renders one panel and sends it with the conditions
// caption and a Details button. When no template matches the condition
// code the caption goes out as plain text instead.
func (c *Controller) sendCurrent(ctx context.Context, chatID int64, snap *weather.Snapshot, unit storage.Unit) {
	caption := currentCaption(snap.City, snap, unit.Symbol())
	buttons := []core.Button{{
		Label: "Details",
		Data:  Payload{Kind: KindDetails, Lat: snap.Lat, Lon: snap.Lon, City: snap.City}.Encode(),
	}}

	url, err := c.renderer.Panel(ctx, snap.City, roundTemp(snap.Temp), snap.ConditionID, unit.Symbol())
	if errors.Is(err, render.ErrUnresolved) {
		c.log.Warn("condition without template", sl.Chat(chatID), slog.Int("code", snap.ConditionID))
		c.send(chatID, func() (int, error) { return c.out.SendButtons(chatID, caption, buttons) })
		c.metrics.LookupsTotal.WithLabelValues("current").Inc()
		return
	}
	if err != nil {
		c.fail(chatID, "render", err)
		return
	}
	c.send(chatID, func() (int, error) { return c.out.SendPhotoURL(chatID, url, caption, buttons) })
	c.metrics.LookupsTotal.WithLabelValues("current").Inc()
}

func (c *Controller) details(ctx context.Context, chatID int64, messageID int, p Payload) {
	unit, ok := c.unit(ctx, chatID)
	if !ok {
		return
	}
	d, err := c.weather.Extended(ctx, p.Lat, p.Lon, unit.ApiUnits())
	if err != nil {
		c.fail(chatID, "weather", err)
		return
	}
	if err := c.out.EditCaption(chatID, messageID, detailsCaption(p.City, d, unit.Symbol())); err != nil {
		c.log.Error("editing caption", sl.Chat(chatID), sl.Err(err))
		return
	}
	c.metrics.LookupsTotal.WithLabelValues("details").Inc()
}

func (c *Controller) saveByCity(ctx context.Context, chatID int64, query string) {
	unit, ok := c.unit(ctx, chatID)
	if !ok {
		return
	}
	snap, err := c.weather.FindCity(ctx, query, unit.ApiUnits())
	if errors.Is(err, weather.ErrNoCity) {
		c.sendText(chatID, replyNoCity)
		return
	}
	if err != nil {
		c.fail(chatID, "weather", err)
		return
	}
	c.saveLocation(ctx, chatID, snap.Lat, snap.Lon, snap.City)
}

func (c *Controller) saveByGeo(ctx context.Context, chatID int64, lat, lon float64) {
	unit, ok := c.unit(ctx, chatID)
	if !ok {
		return
	}
	// resolve a display name for the coordinates
	snap, err := c.weather.Current(ctx, lat, lon, unit.ApiUnits())
	if err != nil {
		c.fail(chatID, "weather", err)
		return
	}
	c.saveLocation(ctx, chatID, lat, lon, snap.City)
}

// saveLocation overwrites the saved location unconditionally; explicit
// saves always win over whatever was stored before.
func (c *Controller) saveLocation(ctx context.Context, chatID int64, lat, lon float64, city string) {
	loc := storage.Location{Lat: lat, Lon: lon, City: city}
	if err := c.users.SetSavedLocation(ctx, chatID, loc); err != nil {
		c.fail(chatID, "storage", err)
		return
	}
	c.sendText(chatID, replySaved)
	c.metrics.LookupsTotal.WithLabelValues("save").Inc()
}

func (c *Controller) forecastByCity(ctx context.Context, chatID int64, query string) {
	unit, ok := c.unit(ctx, chatID)
	if !ok {
		return
	}
	statusID, err := c.out.SendText(chatID, replyPreparing)
	if err != nil {
		c.log.Error("sending status", sl.Chat(chatID), sl.Err(err))
	}

	snap, err := c.weather.FindCity(ctx, query, unit.ApiUnits())
	if errors.Is(err, weather.ErrNoCity) {
		c.deleteStatus(chatID, statusID)
		c.sendText(chatID, replyNoCity)
		return
	}
	if err != nil {
		c.deleteStatus(chatID, statusID)
		c.fail(chatID, "weather", err)
		return
	}
	if c.runForecast(ctx, chatID, statusID, snap.Lat, snap.Lon, unit) {
		c.saveFirstLocation(ctx, chatID, snap.Lat, snap.Lon, snap.City)
	}
}

func (c *Controller) forecastByGeo(ctx context.Context, chatID int64, lat, lon float64) {
	unit, ok := c.unit(ctx, chatID)
	if !ok {
		return
	}
	statusID, err := c.out.SendText(chatID, replyPreparing)
	if err != nil {
		c.log.Error("sending status", sl.Chat(chatID), sl.Err(err))
	}
	if fc := c.runForecastBundle(ctx, chatID, statusID, lat, lon, unit); fc != nil {
		c.saveFirstLocation(ctx, chatID, lat, lon, fc.Timezone)
	}
}

// forecastSaved reuses the choice message as the status message.
func (c *Controller) forecastSaved(ctx context.Context, e core.Event, lat, lon float64) {
	unit, ok := c.unit(ctx, e.ChatID)
	if !ok {
		return
	}
	c.edit(e.ChatID, e.MessageID, replyPreparing, nil)
	c.runForecast(ctx, e.ChatID, e.MessageID, lat, lon, unit)
}

func (c *Controller) runForecast(ctx context.Context, chatID int64, statusID int, lat, lon float64, unit storage.Unit) bool {
	return c.runForecastBundle(ctx, chatID, statusID, lat, lon, unit) != nil
}

// runForecastBundle fetches the forecast, renders up to 7 daily panels,
// composites them into one strip and sends it with the alerts caption.
// The status message is removed afterwards. Returns nil on failure.
func (c *Controller) runForecastBundle(ctx context.Context, chatID int64, statusID int, lat, lon float64, unit storage.Unit) *weather.Forecast {
	fc, err := c.weather.Forecast(ctx, lat, lon, unit.ApiUnits())
	if err != nil {
		c.deleteStatus(chatID, statusID)
		c.fail(chatID, "weather", err)
		return nil
	}

	days := fc.Days
	if len(days) > 7 {
		days = days[:7]
	}

	var urls []string
	for _, day := range days {
		label := day.Date.Format("2006-01-02")
		url, err := c.renderer.Panel(ctx, label, roundTemp(day.DayTemp), day.ConditionID, unit.Symbol())
		if errors.Is(err, render.ErrUnresolved) {
			c.log.Warn("skipping forecast panel", sl.Chat(chatID), slog.Int("code", day.ConditionID))
			c.metrics.PanelsSkipped.Inc()
			continue
		}
		if err != nil {
			c.deleteStatus(chatID, statusID)
			c.fail(chatID, "render", err)
			return nil
		}
		urls = append(urls, url)
	}
	if len(urls) == 0 {
		c.deleteStatus(chatID, statusID)
		c.sendText(chatID, replyError)
		return nil
	}

	data, err := c.renderer.Composite(ctx, urls)
	if err != nil {
		c.deleteStatus(chatID, statusID)
		c.fail(chatID, "render", err)
		return nil
	}

	name := fmt.Sprintf("%d.png", chatID)
	c.send(chatID, func() (int, error) {
		return c.out.SendPhotoBytes(chatID, name, data, alertsCaption(fc.Alerts))
	})
	c.deleteStatus(chatID, statusID)
	c.metrics.LookupsTotal.WithLabelValues("forecast").Inc()
	return fc
}

// saveFirstLocation persists the resolved location only when the user
// has none saved yet; first lookup wins, later lookups never overwrite.
func (c *Controller) saveFirstLocation(ctx context.Context, chatID int64, lat, lon float64, city string) {
	loc, err := c.users.SavedLocation(ctx, chatID)
	if err != nil {
		c.log.Error("reading saved location", sl.Chat(chatID), sl.Err(err))
		return
	}
	if loc != nil {
		return
	}
	if err := c.users.SetSavedLocation(ctx, chatID, storage.Location{Lat: lat, Lon: lon, City: city}); err != nil {
		c.log.Error("saving first location", sl.Chat(chatID), sl.Err(err))
	}
}

func (c *Controller) unit(ctx context.Context, chatID int64) (storage.Unit, bool) {
	unit, err := c.users.Unit(ctx, chatID)
	if err != nil {
		c.fail(chatID, "storage", err)
		return "", false
	}
	return unit, true
}

func (c *Controller) fail(chatID int64, service string, err error) {
	c.log.Error("upstream failure", sl.Chat(chatID), slog.String("service", service), sl.Err(err))
	c.metrics.UpstreamErrors.WithLabelValues(service).Inc()
	c.sendText(chatID, replyError)
}

func (c *Controller) sendText(chatID int64, text string) {
	c.send(chatID, func() (int, error) { return c.out.SendText(chatID, text) })
}

func (c *Controller) send(chatID int64, fn func() (int, error)) {
	if _, err := fn(); err != nil {
		c.log.Error("sending message", sl.Chat(chatID), sl.Err(err))
	}
}

func (c *Controller) edit(chatID int64, messageID int, text string, buttons []core.Button) {
	if err := c.out.EditText(chatID, messageID, text, buttons); err != nil {
		c.log.Error("editing message", sl.Chat(chatID), sl.Err(err))
	}
}

func (c *Controller) deleteStatus(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if err := c.out.DeleteMessage(chatID, messageID); err != nil {
		c.log.Error("deleting status message", sl.Chat(chatID), sl.Err(err))
	}
}

func roundTemp(t float64) int {
	return int(math.Round(t))
}
