package render

import (
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

//go:embed templates/*.html templates/weather.css
var templateFS embed.FS

// ErrUnresolved means no visual template matches the condition code.
// Callers degrade by skipping the panel.
var ErrUnresolved = errors.New("unresolved weather condition")

// Condition codes map to template families by ordered prefix matching,
// first rule wins: thunderstorm 2xx, rain 3xx/5xx, snow 60x, sleet
// 61x/62x, fog or haze 7xx, clear 800, clouds 801-804.
var conditionRules = []struct {
	pattern  *regexp.Regexp
	template string
}{
	{regexp.MustCompile(`^2..`), "chancetstorms"},
	{regexp.MustCompile(`^3..`), "chancerain"},
	{regexp.MustCompile(`^5..`), "chancerain"},
	{regexp.MustCompile(`^60.`), "snow"},
	{regexp.MustCompile(`^61.`), "sleet"},
	{regexp.MustCompile(`^62.`), "sleet"},
	{regexp.MustCompile(`^7..`), "fogorhazy"},
	{regexp.MustCompile(`^800`), "sunny"},
	{regexp.MustCompile(`^801`), "partlycloudy"},
	{regexp.MustCompile(`^802`), "mostlycloudy"},
	{regexp.MustCompile(`^803`), "mostlycloudy"},
	{regexp.MustCompile(`^804`), "cloudy"},
}

// TemplateFor resolves a condition code to the name of its template
// family.
func TemplateFor(conditionID int) (string, error) {
	code := strconv.Itoa(conditionID)
	for _, rule := range conditionRules {
		if rule.pattern.MatchString(code) {
			return rule.template, nil
		}
	}
	return "", fmt.Errorf("%w: code %s", ErrUnresolved, code)
}

func loadTemplate(name string) (string, error) {
	data, err := templateFS.ReadFile("templates/" + name + ".html")
	if err != nil {
		return "", fmt.Errorf("loading template %s: %w", name, err)
	}
	return string(data), nil
}

func loadStylesheet() (string, error) {
	data, err := templateFS.ReadFile("templates/weather.css")
	if err != nil {
		return "", fmt.Errorf("loading stylesheet: %w", err)
	}
	return string(data), nil
}
