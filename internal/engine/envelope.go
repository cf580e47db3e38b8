package engine

import (
	"bytes"
	"fmt"
)

// envelopeMagic prefixes every payload the manager writes. Blobs
// without it were written by someone else and are returned untouched.
var envelopeMagic = []byte("SAL\x02")

const (
	flagCompressed byte = 1 << iota
	flagEncrypted
)

// maxAlgorithmName bounds the length-prefixed algorithm names in the header
const maxAlgorithmName = 255

// envelope describes the transforms applied to one payload. The header
// is magic, a flags byte, then for each applied transform (compression
// first) a length byte and the algorithm name.
type envelope struct {
	compressed  bool
	encrypted   bool
	compression string
	encryption  string
}

// seal compresses then encrypts data. A nil compressor or cipher skips
// that step. The header is written even when nothing was applied.
func seal(data []byte, c Compressor, ci Cipher) ([]byte, envelope, error) {
	var env envelope

	payload := data
	if c != nil {
		compressed, err := c.Compress(payload)
		if err != nil {
			return nil, env, fmt.Errorf("%w: compress: %v", ErrTransform, err)
		}
		payload = compressed
		env.compressed = true
		env.compression = c.Algorithm()
	}
	if ci != nil {
		encrypted, err := ci.Encrypt(payload)
		if err != nil {
			return nil, env, fmt.Errorf("%w: encrypt: %v", ErrTransform, err)
		}
		payload = encrypted
		env.encrypted = true
		env.encryption = ci.Algorithm()
	}

	var flags byte
	if env.compressed {
		flags |= flagCompressed
	}
	if env.encrypted {
		flags |= flagEncrypted
	}

	out := make([]byte, 0, len(envelopeMagic)+3+len(env.compression)+len(env.encryption)+len(payload))
	out = append(out, envelopeMagic...)
	out = append(out, flags)
	var err error
	if env.compressed {
		if out, err = appendName(out, env.compression); err != nil {
			return nil, env, err
		}
	}
	if env.encrypted {
		if out, err = appendName(out, env.encryption); err != nil {
			return nil, env, err
		}
	}
	out = append(out, payload...)
	return out, env, nil
}

func appendName(out []byte, name string) ([]byte, error) {
	if name == "" || len(name) > maxAlgorithmName {
		return nil, fmt.Errorf("%w: invalid algorithm name %q", ErrTransform, name)
	}
	out = append(out, byte(len(name)))
	return append(out, name...), nil
}

func readName(raw []byte) (string, []byte, error) {
	if len(raw) < 1 || len(raw) < 1+int(raw[0]) || raw[0] == 0 {
		return "", nil, fmt.Errorf("%w: truncated envelope header", ErrTransform)
	}
	n := int(raw[0])
	return string(raw[1 : 1+n]), raw[1+n:], nil
}

// open reverses seal. The configured compressor and cipher must use the
// algorithms named in the header.
func open(raw []byte, c Compressor, ci Cipher) ([]byte, envelope, error) {
	var env envelope
	if len(raw) <= len(envelopeMagic) || !bytes.Equal(raw[:len(envelopeMagic)], envelopeMagic) {
		return raw, env, nil
	}

	flags := raw[len(envelopeMagic)]
	if flags&^(flagCompressed|flagEncrypted) != 0 {
		return nil, env, fmt.Errorf("%w: unknown envelope flags %#x", ErrTransform, flags)
	}
	env.compressed = flags&flagCompressed != 0
	env.encrypted = flags&flagEncrypted != 0
	rest := raw[len(envelopeMagic)+1:]

	var err error
	if env.compressed {
		if env.compression, rest, err = readName(rest); err != nil {
			return nil, env, err
		}
	}
	if env.encrypted {
		if env.encryption, rest, err = readName(rest); err != nil {
			return nil, env, err
		}
	}
	payload := rest

	if env.encrypted {
		if ci == nil {
			return nil, env, fmt.Errorf("%w: payload is encrypted with %s and no cipher is configured",
				ErrTransform, env.encryption)
		}
		if ci.Algorithm() != env.encryption {
			return nil, env, fmt.Errorf("%w: payload is encrypted with %s, configured cipher is %s",
				ErrAlgorithmMismatch, env.encryption, ci.Algorithm())
		}
		plain, err := ci.Decrypt(payload)
		if err != nil {
			return nil, env, fmt.Errorf("%w: decrypt: %v", ErrTransform, err)
		}
		payload = plain
	}
	if env.compressed {
		if c == nil {
			return nil, env, fmt.Errorf("%w: payload is compressed with %s and no compressor is configured",
				ErrTransform, env.compression)
		}
		if c.Algorithm() != env.compression {
			return nil, env, fmt.Errorf("%w: payload is compressed with %s, configured compressor is %s",
				ErrAlgorithmMismatch, env.compression, c.Algorithm())
		}
		plain, err := c.Decompress(payload)
		if err != nil {
			return nil, env, fmt.Errorf("%w: decompress: %v", ErrTransform, err)
		}
		payload = plain
	}
	return payload, env, nil
}
