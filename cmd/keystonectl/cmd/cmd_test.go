package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/keystone-admin/keystone/internal/token"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	stdinFlag, subjectFlag, ttlFlag, retentionFlag = false, "", 0, 0

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHashPasswordFromArgAndStdin(t *testing.T) {
	out, err := execute(t, "", "hash-password", "s3cret-value")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("s3cret-value")))

	out, err = execute(t, "from-stdin\n", "hash-password", "--stdin")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("from-stdin")))

	_, err = execute(t, "", "hash-password")
	require.Error(t, err)
}

func TestIssueTokenDecodesWithConfiguredSecret(t *testing.T) {
	secret := strings.Repeat("z", 32)
	t.Setenv("JWT_SECRET", secret)
	subject := uuid.New()

	out, err := execute(t, "", "issue-token", "--user", subject.String(), "--ttl", "10m")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	codec, err := token.NewCodec(secret, time.Hour)
	require.NoError(t, err)
	claims, err := codec.Decode(lines[0], time.Now())
	require.NoError(t, err)
	require.Equal(t, subject, claims.Subject)
	require.WithinDuration(t, time.Now().Add(10*time.Minute), claims.ExpiresAt, 5*time.Second)
}

func TestIssueTokenRejectsBadSubject(t *testing.T) {
	_, err := execute(t, "", "issue-token", "--user", "nope")
	require.ErrorContains(t, err, "UUID")
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	ops, err := newQueueOps("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ops.Close() })

	_, err = ops.trigger(context.Background(), "reindex", time.Hour)
	require.ErrorContains(t, err, "unsupported job")

	_, err = ops.trigger(context.Background(), "purge", time.Minute)
	require.ErrorContains(t, err, "retention")
}
