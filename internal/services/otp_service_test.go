package services

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pwanotify/internal/metrics"
	"pwanotify/internal/models"
	"pwanotify/internal/repositories"
)

func newOTPFixture(t *testing.T, clock func() time.Time) (*OTPService, *repositories.Store, *models.User, *fakeOTPSender) {
	t.Helper()
	store := repositories.NewMemoryStore()
	user := &models.User{Role: "client", WhatsAppNumber: models.StringPtr("62811111111"), PasswordHash: "x"}
	require.NoError(t, store.Users.Create(context.Background(), user))
	sender := &fakeOTPSender{}
	svc := NewOTPService(store.OTPs, sender, nil, OTPConfig{TTL: 10 * time.Minute, Length: 6, MaxAttempts: 3}, nil, nil)
	if clock != nil {
		svc.WithClock(clock)
	}
	return svc, store, user, sender
}

func TestOTPExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, user, _ := newOTPFixture(t, func() time.Time { return now })
	ctx := context.Background()

	code, err := svc.Issue(ctx, user, IssueReasonRegister)
	require.NoError(t, err)

	now = now.Add(10*time.Minute + time.Second)
	_, err = svc.Verify(ctx, user.ID, code)
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestOTPLockedAfterMaxAttempts(t *testing.T) {
	svc, _, user, _ := newOTPFixture(t, nil)
	ctx := context.Background()

	code, err := svc.Issue(ctx, user, IssueReasonRegister)
	require.NoError(t, err)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := 0; i < 3; i++ {
		_, err := svc.Verify(ctx, user.ID, wrong)
		require.ErrorIs(t, err, ErrInvalidOTP)
	}
	_, err = svc.Verify(ctx, user.ID, code)
	assert.ErrorIs(t, err, ErrInvalidOTP, "code is burned after too many attempts")
}

func TestOTPIssueKeepsCodeWhenDeliveryFails(t *testing.T) {
	svc, _, user, sender := newOTPFixture(t, nil)
	sender.err = errors.New("whatsapp down")
	ctx := context.Background()

	code, err := svc.Issue(ctx, user, IssueReasonRegister)
	require.NoError(t, err)
	_, err = svc.Verify(ctx, user.ID, code)
	assert.NoError(t, err)
}

func TestOTPStoredHashed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, store, user, sender := newOTPFixture(t, func() time.Time { return now })
	ctx := context.Background()

	code, err := svc.Issue(ctx, user, IssueReasonRegister)
	require.NoError(t, err)
	assert.Equal(t, code, sender.last(t).code)

	stored, err := store.OTPs.LatestActive(ctx, user.ID, now)
	require.NoError(t, err)
	assert.NotEqual(t, code, stored.Code)
	assert.Len(t, stored.Code, 64)

	// тот же код другого пользователя даёт другой хеш
	assert.NotEqual(t, svc.hashCode(user.ID, code), svc.hashCode("other", code))

	_, err = svc.Verify(ctx, user.ID, stored.Code)
	assert.ErrorIs(t, err, ErrInvalidOTP, "the stored hash is not a valid code")
	_, err = svc.Verify(ctx, user.ID, code)
	assert.NoError(t, err)
}

func TestOTPCleanup(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, user, _ := newOTPFixture(t, func() time.Time { return now })
	ctx := context.Background()

	_, err := svc.Issue(ctx, user, IssueReasonRegister)
	require.NoError(t, err)

	n, err := svc.Cleanup(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.Cleanup(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := repositories.NewMemoryStore()
	user := &models.User{Role: "client", WhatsAppNumber: models.StringPtr("62811111111"), PasswordHash: "x"}
	require.NoError(t, store.Users.Create(context.Background(), user))
	svc := NewOTPService(store.OTPs, nil, nil, OTPConfig{}, nil, m)

	code, err := svc.Issue(context.Background(), user, IssueReasonLogin)
	require.NoError(t, err)
	_, err = svc.Verify(context.Background(), user.ID, code)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "pwanotify_otp_issued_total", "pwanotify_otp_verifications_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// fakeRedis implements RedisCounter over a map.
type fakeRedis struct {
	values  map[string]int64
	expires map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (r *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := r.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(strconv.FormatInt(v, 10), nil)
}

func (r *fakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	r.values[key]++
	return redis.NewIntResult(r.values[key], nil)
}

func (r *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	r.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func TestRedisRateLimiter(t *testing.T) {
	rdb := newFakeRedis()
	l := NewRedisRateLimiter(rdb, 2, 10*time.Minute)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "u1"))
	require.NoError(t, l.Record(ctx, "u1"))
	require.NoError(t, l.Allow(ctx, "u1"))
	require.NoError(t, l.Record(ctx, "u1"))

	err := l.Allow(ctx, "u1")
	require.ErrorIs(t, err, ErrRateLimited)
	assert.NoError(t, l.Allow(ctx, "u2"))
	assert.Equal(t, 10*time.Minute, rdb.expires["pwanotify:otp:issued:u1"])
}

func TestStoreRateLimiterDisabled(t *testing.T) {
	store := repositories.NewMemoryStore()
	l := NewStoreRateLimiter(store.OTPs, 0, time.Minute)
	assert.NoError(t, l.Allow(context.Background(), "anyone"))
}
