package basestation

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/wrauf/arlo/internal/core/jsonq"
)

// ErrInvalidRecord is returned when a statistic record has the wrong length.
var ErrInvalidRecord = errors.New("basestation: invalid statistic record")

// Ambient sensor channel names as reported by the history API.
const (
	ChannelTemperature = "temperature"
	ChannelHumidity    = "humidity"
	ChannelAirQuality  = "airQuality"
)

// statisticSentinel is the reserved "no recorded measurement" bit pattern.
const statisticSentinel = 0x8000

// Each history record is 22 bytes: a 4-byte timestamp at offset 0 and
// 2-byte statistics for temperature, humidity and air quality at offsets
// 8, 14 and 20.
const (
	recordSize       = 22
	temperatureOff   = 8
	humidityOff      = 14
	airQualityOff    = 20
	timestampSize    = 4
	statisticSize    = 2
)

// DecodeStatistic decodes a 2-byte big-endian ambient statistic into a
// fixed-point value with one decimal place. The second return is false for
// the sentinel pattern meaning no measurement was recorded.
func DecodeStatistic(data []byte) (float64, bool, error) {
	if len(data) != statisticSize {
		return 0, false, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidRecord, len(data), statisticSize)
	}
	raw := binary.BigEndian.Uint16(data)
	if raw == statisticSentinel {
		return 0, false, nil
	}
	return float64(int16(raw)) / 10, true, nil
}

// decodeTimestamp decodes the 4-byte big-endian seconds value of a record,
// applying the same sentinel convention the statistics use.
func decodeTimestamp(data []byte) (int64, bool) {
	if len(data) != timestampSize {
		return 0, false
	}
	raw := binary.BigEndian.Uint32(data)
	if raw == statisticSentinel {
		return 0, false
	}
	return int64(raw), true
}

// SensorReading is one decoded time bucket of ambient history. Channels the
// sensor did not record are nil.
type SensorReading struct {
	// TimestampMS is the bucket time in milliseconds since the epoch.
	TimestampMS int64    `json:"timestamp"`
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	AirQuality  *float64 `json:"airQuality,omitempty"`
}

// Statistic returns the reading for the named channel, nil when the channel
// is unknown or was not recorded in this bucket.
func (r SensorReading) Statistic(channel string) *float64 {
	switch channel {
	case ChannelTemperature:
		return r.Temperature
	case ChannelHumidity:
		return r.Humidity
	case ChannelAirQuality:
		return r.AirQuality
	}
	return nil
}

// decodeSensorHistory unpacks the history payload: a base64 string array
// concatenated, zlib-compressed, holding fixed-size binary records ordered
// oldest to newest.
func decodeSensorHistory(properties map[string]any) ([]SensorReading, error) {
	parts, ok := jsonq.Slice(properties, "payload")
	if !ok {
		return nil, fmt.Errorf("basestation: history payload missing")
	}

	var b64 bytes.Buffer
	for _, p := range parts {
		s, ok := p.(string)
		if !ok {
			return nil, fmt.Errorf("basestation: history payload is not a string array")
		}
		b64.WriteString(s)
	}

	compressed, err := base64.StdEncoding.DecodeString(b64.String())
	if err != nil {
		return nil, fmt.Errorf("basestation: decode history payload: %w", err)
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("basestation: decompress history payload: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("basestation: decompress history payload: %w", err)
	}

	readings := make([]SensorReading, 0, len(data)/recordSize)
	for i := 0; i+recordSize <= len(data); i += recordSize {
		rec := data[i : i+recordSize]

		var reading SensorReading
		if ts, ok := decodeTimestamp(rec[:timestampSize]); ok {
			reading.TimestampMS = ts * 1000
		}
		reading.Temperature = decodeChannel(rec[temperatureOff : temperatureOff+statisticSize])
		reading.Humidity = decodeChannel(rec[humidityOff : humidityOff+statisticSize])
		reading.AirQuality = decodeChannel(rec[airQualityOff : airQualityOff+statisticSize])

		readings = append(readings, reading)
	}
	return readings, nil
}

func decodeChannel(data []byte) *float64 {
	v, ok, err := DecodeStatistic(data)
	if err != nil || !ok {
		return nil
	}
	return &v
}
