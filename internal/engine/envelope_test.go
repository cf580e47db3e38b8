package engine

import (
	"bytes"
	"errors"
	"testing"

	"github.com/FairForge/sal/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	cipher, err := crypto.NewAESGCMCipher(key)
	require.NoError(t, err)
	snappy := crypto.NewSnappyCompressor()

	data := bytes.Repeat([]byte("abc"), 500)

	tests := []struct {
		name       string
		compressor Compressor
		cipher     Cipher
	}{
		{"no transforms", nil, nil},
		{"compress", snappy, nil},
		{"encrypt", nil, cipher},
		{"compress and encrypt", snappy, cipher},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, env, err := seal(data, tt.compressor, tt.cipher)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(sealed, envelopeMagic))
			assert.Equal(t, tt.compressor != nil, env.compressed)
			assert.Equal(t, tt.cipher != nil, env.encrypted)

			opened, openedEnv, err := open(sealed, tt.compressor, tt.cipher)
			require.NoError(t, err)
			assert.Equal(t, data, opened)
			assert.Equal(t, env, openedEnv)
		})
	}
}

func TestEnvelope_HeaderNamesAlgorithms(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	cipher, err := crypto.NewXChaCha20Cipher(key)
	require.NoError(t, err)

	sealed, env, err := seal([]byte("x"), crypto.NewSnappyCompressor(), cipher)
	require.NoError(t, err)
	assert.Equal(t, crypto.CompressionSnappy, env.compression)
	assert.Equal(t, crypto.AlgorithmXChaCha20, env.encryption)

	header := append([]byte(nil), envelopeMagic...)
	header = append(header, flagCompressed|flagEncrypted, 6)
	header = append(header, "snappy"...)
	header = append(header, byte(len(crypto.AlgorithmXChaCha20)))
	header = append(header, crypto.AlgorithmXChaCha20...)
	assert.True(t, bytes.HasPrefix(sealed, header))

	plain, _, err := seal([]byte("x"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "SAL\x02\x00x", string(plain))
}

func TestEnvelope_AlgorithmMismatch(t *testing.T) {
	zstd, err := crypto.DefaultZstdCompressor()
	require.NoError(t, err)
	data := bytes.Repeat([]byte("abc"), 100)

	sealed, _, err := seal(data, zstd, nil)
	require.NoError(t, err)

	_, _, err = open(sealed, crypto.NewSnappyCompressor(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlgorithmMismatch))
	assert.True(t, errors.Is(err, ErrTransform))
	assert.Contains(t, err.Error(), "compressed with zstd, configured compressor is snappy")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	xchacha, err := crypto.NewXChaCha20Cipher(key)
	require.NoError(t, err)
	aes, err := crypto.NewAESGCMCipher(key)
	require.NoError(t, err)

	encrypted, _, err := seal(data, nil, xchacha)
	require.NoError(t, err)
	_, _, err = open(encrypted, nil, aes)
	assert.True(t, errors.Is(err, ErrAlgorithmMismatch))

	t.Run("truncated header", func(t *testing.T) {
		_, _, err := open(sealed[:len(envelopeMagic)+2], zstd, nil)
		assert.True(t, errors.Is(err, ErrTransform))
	})

	t.Run("unknown flags", func(t *testing.T) {
		bad := append(append([]byte(nil), envelopeMagic...), 0x80)
		_, _, err := open(bad, nil, nil)
		assert.True(t, errors.Is(err, ErrTransform))
	})
}

func TestEnvelope_OpenFailures(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	cipher, err := crypto.NewXChaCha20Cipher(key)
	require.NoError(t, err)

	sealed, _, err := seal([]byte("secret"), nil, cipher)
	require.NoError(t, err)

	t.Run("missing cipher", func(t *testing.T) {
		_, _, err := open(sealed, nil, nil)
		assert.True(t, errors.Is(err, ErrTransform))
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := crypto.GenerateKey()
		require.NoError(t, err)
		wrong, err := crypto.NewXChaCha20Cipher(other)
		require.NoError(t, err)

		_, _, err = open(sealed, nil, wrong)
		assert.True(t, errors.Is(err, ErrTransform))
	})

	t.Run("missing compressor", func(t *testing.T) {
		compressed, _, err := seal([]byte("x"), crypto.NewSnappyCompressor(), nil)
		require.NoError(t, err)
		_, _, err = open(compressed, nil, nil)
		assert.True(t, errors.Is(err, ErrTransform))
	})

	t.Run("unwrapped payload passes through", func(t *testing.T) {
		out, env, err := open([]byte("SAL"), nil, cipher)
		require.NoError(t, err)
		assert.Equal(t, []byte("SAL"), out)
		assert.False(t, env.encrypted)
	})
}
