package storage

import (
	"context"
	"errors"
	"time"
)

// Unit is the user's preferred measurement system. Exactly two values
// exist; ToggleUnit flips between them.
type Unit string

const (
	UnitCelsius    Unit = "celsius"
	UnitFahrenheit Unit = "fahrenheit"
)

// Flip returns the other unit.
func (u Unit) Flip() Unit {
	if u == UnitFahrenheit {
		return UnitCelsius
	}
	return UnitFahrenheit
}

// ApiUnits is the units token understood by the weather provider.
func (u Unit) ApiUnits() string {
	if u == UnitFahrenheit {
		return "imperial"
	}
	return "metric"
}

// Symbol is the display symbol for temperatures in this unit.
func (u Unit) Symbol() string {
	if u == UnitFahrenheit {
		return "°F"
	}
	return "°C"
}

// Location is a saved user location.
type Location struct {
	Lat  float64 `bson:"lat" json:"lat"`
	Lon  float64 `bson:"lon" json:"lon"`
	City string  `bson:"city" json:"city"`
}

// User is one chat's persisted record.
type User struct {
	ChatID    int64     `bson:"chat_id"`
	Location  *Location `bson:"location,omitempty"`
	Unit      Unit      `bson:"unit"`
	CreatedAt time.Time `bson:"created_at"`
}

var ErrNotFound = errors.New("user not found")

// UserStorage is the persistence facade over the single user record.
// Every call is an independent atomic single-row operation; backends
// must be safe for concurrent use.
type UserStorage interface {
	GetOrCreate(ctx context.Context, chatID int64) (*User, error)
	SavedLocation(ctx context.Context, chatID int64) (*Location, error)
	SetSavedLocation(ctx context.Context, chatID int64, loc Location) error
	Unit(ctx context.Context, chatID int64) (Unit, error)
	ToggleUnit(ctx context.Context, chatID int64) (Unit, error)
	Close() error
}
