package crypto

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecret_RoundTrip(t *testing.T) {
	blob, err := EncryptSecret("whsec_abc123", "correct horse")
	require.NoError(t, err)

	got, err := DecryptSecret(blob, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "whsec_abc123", got)
}

func TestDecryptSecret_WrongPasswordFails(t *testing.T) {
	blob, err := EncryptSecret("whsec_abc123", "correct horse")
	require.NoError(t, err)

	_, err = DecryptSecret(blob, "battery staple")
	assert.Error(t, err)
}

func TestEncryptSecret_RejectsEmptyInputs(t *testing.T) {
	_, err := EncryptSecret("", "pw")
	assert.Error(t, err)
	_, err = EncryptSecret("secret", "")
	assert.Error(t, err)
}

func TestLoadSigningKey_ResolutionOrder(t *testing.T) {
	blob, err := EncryptSecret("from-file", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "webhook.key")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	t.Run("raw secret wins", func(t *testing.T) {
		got, err := LoadSigningKey(SecretConfig{RawSecret: "raw", EncryptedPath: path, Password: "pw"})
		require.NoError(t, err)
		assert.Equal(t, "raw", got)
	})

	t.Run("encrypted file", func(t *testing.T) {
		got, err := LoadSigningKey(SecretConfig{EncryptedPath: path, Password: "pw"})
		require.NoError(t, err)
		assert.Equal(t, "from-file", got)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := LoadSigningKey(SecretConfig{})
		assert.Error(t, err)
	})
}

func TestWebhookSigner_SignAndVerify(t *testing.T) {
	s := NewWebhookSigner("whsec_abc123")
	body := []byte(`{"type":"dispute_resolved"}`)

	headers := s.Headers(body)
	require.Contains(t, headers, "X-Payrouter-Timestamp")
	require.Contains(t, headers, "X-Payrouter-Signature")

	ok := s.Verify(headers["X-Payrouter-Timestamp"], headers["X-Payrouter-Signature"], body, 5*time.Minute)
	assert.True(t, ok)
}

func TestWebhookSigner_VerifyRejections(t *testing.T) {
	s := NewWebhookSigner("whsec_abc123")
	body := []byte(`{"type":"selection"}`)
	headers := s.Headers(body)

	t.Run("tampered body", func(t *testing.T) {
		assert.False(t, s.Verify(headers["X-Payrouter-Timestamp"], headers["X-Payrouter-Signature"], []byte(`{}`), 5*time.Minute))
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewWebhookSigner("different")
		assert.False(t, other.Verify(headers["X-Payrouter-Timestamp"], headers["X-Payrouter-Signature"], body, 5*time.Minute))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		assert.False(t, s.Verify("1", headers["X-Payrouter-Signature"], body, 5*time.Minute))
	})

	t.Run("garbage timestamp", func(t *testing.T) {
		assert.False(t, s.Verify("yesterday", headers["X-Payrouter-Signature"], body, 5*time.Minute))
	})
}
