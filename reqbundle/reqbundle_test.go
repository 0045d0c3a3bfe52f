package reqbundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	plaintext := []byte(`{"carrier_id":"ctt","tracking_code":"RR123456789PT"}`)

	encoded, err := Encode(plaintext, "s3cr3t", false)
	require.NoError(t, err)

	decoded, err := Decode(encoded, "s3cr3t")
	require.NoError(t, err)
	assert.Equal(t, plaintext, decoded)
}

func TestEncodeDecodeWithFraming(t *testing.T) {
	plaintext := []byte("hello openparcel")

	encoded, err := Encode(plaintext, "another-secret", true)
	require.NoError(t, err)
	assert.Contains(t, encoded, beginMarker)
	assert.Contains(t, encoded, endMarker)

	decoded, err := Decode(encoded, "another-secret")
	require.NoError(t, err)
	assert.Equal(t, plaintext, decoded)
}

func TestDecodeWrongSecretProducesGarbage(t *testing.T) {
	encoded, err := Encode([]byte("top secret payload"), "right-secret", false)
	require.NoError(t, err)

	decoded, err := Decode(encoded, "wrong-secret")
	require.NoError(t, err) // CTR mode can't detect a wrong key by itself
	assert.NotEqual(t, []byte("top secret payload"), decoded)
}

func TestDecodeShortCiphertextErrors(t *testing.T) {
	_, err := Decode("dG9vc2hvcnQ=", "secret")
	require.Error(t, err)
}
