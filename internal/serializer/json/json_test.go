package json_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jsonserializer "github.com/riverrun/msgbus/internal/serializer/json"
	"github.com/riverrun/msgbus/pkg/bus"
)

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSerializer_SerializeDeserializeRoundTrip(t *testing.T) {
	s := jsonserializer.New()

	data, err := s.Serialize(&widget{Name: "bolt", Count: 3})
	require.NoError(t, err)

	decoded, err := s.Deserialize(data, func() any { return new(widget) })
	require.NoError(t, err)
	assert.Equal(t, &widget{Name: "bolt", Count: 3}, decoded)
}

func TestSerializer_ToPlainToClassRoundTrip(t *testing.T) {
	s := jsonserializer.New()

	plain, err := s.ToPlain(&widget{Name: "nut", Count: 7})
	require.NoError(t, err)
	assert.Equal(t, "nut", plain["name"])
	assert.Equal(t, float64(7), plain["count"])

	back, err := s.ToClass(plain, func() any { return new(widget) })
	require.NoError(t, err)
	assert.Equal(t, &widget{Name: "nut", Count: 7}, back)
}

func TestSerializer_DeserializeInvalidJSONReturnsSerializationError(t *testing.T) {
	s := jsonserializer.New()

	_, err := s.Deserialize("{not json", func() any { return new(widget) })
	require.Error(t, err)
}

var _ bus.Serializer = (*jsonserializer.Serializer)(nil)
