package flight

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// StatusCode is the flight status reported by oracles.
type StatusCode uint8

const (
	StatusUnknown       StatusCode = 0
	StatusOnTime        StatusCode = 10
	StatusLateAirline   StatusCode = 20
	StatusLateWeather   StatusCode = 30
	StatusLateTechnical StatusCode = 40
	StatusLateOther     StatusCode = 50
)

// StatusCodes lists every code an oracle may report.
var StatusCodes = []StatusCode{
	StatusUnknown,
	StatusOnTime,
	StatusLateAirline,
	StatusLateWeather,
	StatusLateTechnical,
	StatusLateOther,
}

// Valid reports whether the code is one of the defined statuses.
func (c StatusCode) Valid() bool {
	switch c {
	case StatusUnknown, StatusOnTime, StatusLateAirline, StatusLateWeather, StatusLateTechnical, StatusLateOther:
		return true
	default:
		return false
	}
}

// AirlineFault reports whether the code makes policies on the flight pay out.
func (c StatusCode) AirlineFault() bool { return c == StatusLateAirline }

func (c StatusCode) String() string {
	switch c {
	case StatusUnknown:
		return "unknown"
	case StatusOnTime:
		return "on_time"
	case StatusLateAirline:
		return "late_airline"
	case StatusLateWeather:
		return "late_weather"
	case StatusLateTechnical:
		return "late_technical"
	case StatusLateOther:
		return "late_other"
	default:
		return fmt.Sprintf("status(%d)", uint8(c))
	}
}

// ParseStatusCode accepts the numeric code ("20") or its name
// ("late_airline").
func ParseStatusCode(raw string) (StatusCode, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if n, err := strconv.ParseUint(trimmed, 10, 8); err == nil {
		code := StatusCode(n)
		if code.Valid() {
			return code, nil
		}
		return 0, fmt.Errorf("flight: unknown status code %d", n)
	}
	for _, code := range StatusCodes {
		if code.String() == trimmed {
			return code, nil
		}
	}
	return 0, fmt.Errorf("flight: unknown status code %q", raw)
}

// Flight is an airline-published flight. Status is meaningful only once
// Finalized is set; both change exactly once.
type Flight struct {
	Key         [32]byte
	Airline     [20]byte
	Designator  string
	Timestamp   uint64
	Status      StatusCode
	Finalized   bool
	FinalizedAt uint64
}

// Clone returns a copy of the flight.
func (f *Flight) Clone() *Flight {
	if f == nil {
		return nil
	}
	clone := *f
	return &clone
}

// Key derives the flight key as keccak256(airline || designator || timestamp)
// with the timestamp encoded as 8 big-endian bytes.
func Key(airline [20]byte, designator string, timestamp uint64) [32]byte {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], timestamp)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(airline[:], []byte(designator), ts[:]))
	return out
}
