package dialogue

import (
	"fmt"
	"strconv"
	"strings"
)

// PayloadKind tags a callback button payload.
type PayloadKind string

const (
	KindLookupCity     PayloadKind = "lc"
	KindLookupGeo      PayloadKind = "lg"
	KindLookupSaved    PayloadKind = "ls"
	KindForecastCity   PayloadKind = "fc"
	KindForecastGeo    PayloadKind = "fg"
	KindForecastSaved  PayloadKind = "fs"
	KindDetails        PayloadKind = "dt"
	KindToggleUnit     PayloadKind = "un"
	KindChangeLocation PayloadKind = "cl"
	KindSaveCity       PayloadKind = "sc"
	KindSaveGeo        PayloadKind = "sg"
)

// Payload is the typed structure round-tripped through inline button
// callback data. Coordinates and city are only meaningful for the
// saved-location and details kinds.
type Payload struct {
	Kind PayloadKind
	Lat  float64
	Lon  float64
	City string
}

// Encode packs the payload into a compact string; Telegram limits
// callback data to 64 bytes.
func (p Payload) Encode() string {
	return strings.Join([]string{
		string(p.Kind),
		strconv.FormatFloat(p.Lat, 'f', -1, 64),
		strconv.FormatFloat(p.Lon, 'f', -1, 64),
		p.City,
	}, "|")
}

// DecodePayload parses callback data produced by Encode.
func DecodePayload(data string) (Payload, error) {
	parts := strings.SplitN(data, "|", 4)
	if len(parts) != 4 {
		return Payload{}, fmt.Errorf("malformed callback payload: %q", data)
	}
	lat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Payload{}, fmt.Errorf("malformed payload latitude: %q", parts[1])
	}
	lon, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Payload{}, fmt.Errorf("malformed payload longitude: %q", parts[2])
	}
	return Payload{
		Kind: PayloadKind(parts[0]),
		Lat:  lat,
		Lon:  lon,
		City: parts[3],
	}, nil
}
