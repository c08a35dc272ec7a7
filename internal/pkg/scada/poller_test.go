package scada

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestNewPollerParsesConfig(t *testing.T) {
	cfg := []byte(`{
        "IPAddr": "10.0.0.5", "Port": "502", "SlaveID": 1,
        "TimeoutMs": 250, "PollRateMs": 500,
        "Points": [
            {"AssetID": "TX1_400_220", "Field": "temperature",
             "Register": {"Address": 100, "DataType": "f32", "Endianness": "big"}}
        ]
    }`)

	p, err := NewPoller(cfg, nil)
	assert.NilError(t, err)
	assert.Equal(t, p.config.PollRateMs, 500)
	assert.Equal(t, len(p.config.Points), 1)
	assert.Equal(t, p.config.Points[0].Register.DataType, f32)
}

func TestNewPollerDefaults(t *testing.T) {
	p, err := NewPoller([]byte(`{"IPAddr": "10.0.0.5", "Port": "502"}`), nil)
	assert.NilError(t, err)
	assert.Equal(t, p.config.PollRateMs, 1000)
	assert.Equal(t, p.config.TimeoutMs, 1000)
}

func TestNewPollerRejectsMalformedConfig(t *testing.T) {
	_, err := NewPoller([]byte(`{not json`), nil)
	assert.Assert(t, err != nil)
}
