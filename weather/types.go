package weather

import (
	"errors"
	"time"
)

// ErrNoCity is returned by FindCity when the search yields no match.
var ErrNoCity = errors.New("no city found")

// Snapshot is the normalized result of a current-conditions query.
type Snapshot struct {
	City        string
	Lat         float64
	Lon         float64
	Temp        float64
	FeelsLike   float64
	ConditionID int
	Description string
}

// Details extends a Snapshot with current-hour detail fields.
type Details struct {
	Snapshot
	Pressure  int
	Humidity  int
	UVIndex   float64
	WindSpeed float64
}

// Day is one daily forecast entry.
type Day struct {
	Date        time.Time
	DayTemp     float64
	ConditionID int
	Description string
}

// Alert is one active weather alert window.
type Alert struct {
	Start       time.Time
	End         time.Time
	Description string
}

// Forecast is the multi-day forecast for one location.
type Forecast struct {
	Timezone string
	Days     []Day
	Alerts   []Alert
}
