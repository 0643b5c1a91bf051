package xport_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xport"
)

func TestConfig_Getters(t *testing.T) {
	cfg := xport.Config{
		"name":    "orders",
		"empty":   "",
		"workers": "8",
		"batch":   64.0,
		"tls":     "true",
		"rps":     "2.5",
		"block":   "250ms",
		"nanos":   int64(time.Second),
		"topics":  "a, b,,c",
		"list":    []any{"x", 1, "y"},
	}
	assert.Equal(t, "orders", cfg.String("name", "d"))
	assert.Equal(t, "d", cfg.String("empty", "d"))
	assert.Equal(t, 8, cfg.Int("workers", 1))
	assert.Equal(t, 64, cfg.Int("batch", 1))
	assert.Equal(t, 1, cfg.Int("missing", 1))
	assert.True(t, cfg.Bool("tls", false))
	assert.Equal(t, 2.5, cfg.Float("rps", 0))
	assert.Equal(t, 250*time.Millisecond, cfg.Duration("block", 0))
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Strings("topics", nil))
	assert.Equal(t, []string{"x", "y"}, cfg.Strings("list", nil))
	assert.Equal(t, []string{"d"}, cfg.Strings("missing", []string{"d"}))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"http", "mqtt"}, xport.SplitList(" http ,, mqtt "))
	assert.Empty(t, xport.SplitList(""))
}

type ping struct {
	xport.Command
	N int `json:"n"`
}

func TestCodec(t *testing.T) {
	c, err := xport.NewCodec("json")
	require.NoError(t, err)
	raw, err := c.Marshal(ping{N: 4})
	require.NoError(t, err)

	got, err := xport.Decode[ping](c, raw)
	require.NoError(t, err)
	assert.Equal(t, 4, got.N)

	got, err = xport.Decode[ping](nil, []byte(`{"n":5}`))
	require.NoError(t, err)
	assert.Equal(t, 5, got.N)

	_, err = xport.Decode[ping](nil, []byte(`{`))
	assert.Error(t, err)

	_, err = xport.NewCodec("avro")
	assert.Error(t, err)
	assert.Error(t, xport.RegisterCodec("", func() xport.Codec { return xport.JSONCodec{} }))
	require.NoError(t, xport.RegisterCodec("json-alias", func() xport.Codec { return xport.JSONCodec{} }))
	c, err = xport.NewCodec("json-alias")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())
}

func TestMessageName(t *testing.T) {
	assert.Equal(t, "xport_test.ping", xport.MessageName(&ping{}))
	assert.Equal(t, "<nil>", xport.MessageName(nil))
	assert.Equal(t, xport.KindCommand, ping{}.MessageKind())
	assert.Equal(t, "command", xport.KindCommand.String())
}
