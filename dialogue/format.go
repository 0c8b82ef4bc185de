package dialogue

import (
	"fmt"
	"strings"
	"unicode"

	"Skycast/storage"
	"Skycast/weather"
)

const alertTimeLayout = "01-02 15:04:05"

func currentCaption(city string, snap *weather.Snapshot, symbol string) string {
	return fmt.Sprintf(
		"Current temp in %s is %.0f %s \n*%s*\nFeels like %.0f %s\n",
		city, snap.Temp, symbol, capitalize(snap.Description), snap.FeelsLike, symbol,
	)
}

func detailsCaption(city string, d *weather.Details, symbol string) string {
	brief := fmt.Sprintf(
		"Current temp in %s is %.0f %s \n*%s*\nFeels like %.0f %s",
		city, d.Temp, symbol, capitalize(d.Description), d.FeelsLike, symbol,
	)
	details := fmt.Sprintf(
		"\nPressure: %d hPa\n"+
			"Humidity: %d%%\n"+
			"UV index: %g %s\n"+
			"Wind speed: %gm/s %s",
		d.Pressure, d.Humidity, d.UVIndex, uvNote(d.UVIndex), d.WindSpeed, windBand(d.WindSpeed),
	)
	return brief + details
}

func uvNote(uvi float64) string {
	if uvi > 2 {
		return "*UV index is heightened*"
	}
	return ""
}

// windBand buckets wind speed (m/s) into qualitative bands, boundaries
// inclusive on the lower band.
func windBand(speed float64) string {
	switch {
	case speed <= 5:
		return "(Gentle breeze)"
	case speed <= 8:
		return "(Moderate breeze)"
	case speed <= 11:
		return "(Fresh breeze)"
	default:
		return "*Strong breeze*"
	}
}

// alertsCaption renders active alerts, each prefixed with its time
// range. Returns the empty string when there are none.
func alertsCaption(alerts []weather.Alert) string {
	if len(alerts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("*National alerts*:\n")
	for _, alert := range alerts {
		b.WriteString(fmt.Sprintf(
			"%s - %s:\n %s\n",
			alert.Start.Format(alertTimeLayout),
			alert.End.Format(alertTimeLayout),
			escapeMarkdown(alert.Description),
		))
	}
	return b.String()
}

// escapeMarkdown masks emphasis markup in free-text alert descriptions
// so they cannot corrupt caption formatting.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

func settingsText(loc *storage.Location, unit storage.Unit) string {
	locText := "You don't have any saved location.\n"
	if loc != nil {
		locText = fmt.Sprintf("Your saved location: %s(%g, %g)\n", loc.City, loc.Lat, loc.Lon)
	}
	return locText + fmt.Sprintf("Your current weather units: %s (%s)\n", unit.ApiUnits(), unit.Symbol())
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
