package otp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/db"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/mailer"
	"github.com/agaseke/agaseke-backend/pkg/migrate"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type stubLimiter struct {
	allow bool
	err   error
	calls int
}

func (l *stubLimiter) FixedWindowAllow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	l.calls++
	return l.allow, int64(l.calls), l.err
}

type memoryGrants struct {
	values map[string]time.Duration
}

func (g *memoryGrants) Set(_ context.Context, key string, _ any, ttl time.Duration) error {
	g.values[key] = ttl
	return nil
}

func (g *memoryGrants) Exists(_ context.Context, key string) (bool, error) {
	_, ok := g.values[key]
	return ok, nil
}

func (g *memoryGrants) OTPGrantKey(agentID, buyerID string) string {
	return "otp_grant:" + agentID + ":" + buyerID
}

var testPassword = config.PasswordConfig{ArgonMemoryKB: 64, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}

type otpEnv struct {
	db      *gorm.DB
	svc     *service
	mail    *captureMailer
	limiter *stubLimiter
	grants  *memoryGrants
	user    models.User
	codes   []string
	clock   time.Time
}

func newOTPEnv(t *testing.T) *otpEnv {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:otp_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migrate.ApplySQLite(conn))

	name := "Aline Uwase"
	user := models.User{ID: uuid.New(), Email: "aline@example.com", Username: "aline", FullName: &name, Role: enums.UserRoleUser, TotalSales: decimal.Zero, TotalPurchases: decimal.Zero}
	require.NoError(t, conn.Create(&user).Error)

	env := &otpEnv{
		db:      conn,
		mail:    &captureMailer{},
		limiter: &stubLimiter{allow: true},
		grants:  &memoryGrants{values: map[string]time.Duration{}},
		user:    user,
		clock:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(Deps{
		Repo:     NewRepository(conn),
		Tx:       db.NewFromConn(conn),
		Mailer:   env.mail,
		Limiter:  env.limiter,
		Grants:   env.grants,
		Config:   config.OTPConfig{TTL: 5 * time.Minute, CodeLength: 6, GrantTTL: 10 * time.Minute, IssueLimit: 3, IssueWindow: time.Minute},
		Password: testPassword,
		Logger:   logger.Nop(),
	})
	require.NoError(t, err)
	env.svc = svc.(*service)
	env.svc.now = func() time.Time { return env.clock }
	env.svc.newCode = func(int) (string, error) {
		if len(env.codes) == 0 {
			return "000000", nil
		}
		code := env.codes[0]
		env.codes = env.codes[1:]
		return code, nil
	}
	return env
}

func (e *otpEnv) unused(t *testing.T, purpose enums.OTPPurpose) []models.OTPChallenge {
	t.Helper()
	var rows []models.OTPChallenge
	require.NoError(t, e.db.Where("user_id = ? AND purpose = ? AND used = ?", e.user.ID, purpose, false).Find(&rows).Error)
	return rows
}

func requireReason(t *testing.T, err error, want VerifyReason) {
	t.Helper()
	var verr *VerifyError
	require.True(t, errors.As(err, &verr), "expected VerifyError, got %v", err)
	require.Equal(t, want, verr.Reason)
}

func TestIssueThenVerify(t *testing.T) {
	env := newOTPEnv(t)
	env.codes = []string{"482913"}
	ctx := context.Background()

	res, err := env.svc.Issue(ctx, IssueInput{UserID: env.user.ID, Purpose: enums.OTPPurposePurchaseConfirmation})
	require.NoError(t, err)
	require.Equal(t, env.clock.Add(5*time.Minute), res.ExpiresAt)
	require.Nil(t, res.SessionID)

	require.Len(t, env.mail.sent, 1)
	msg := env.mail.sent[0]
	require.Equal(t, "aline@example.com", msg.ToEmail)
	require.Contains(t, msg.PlainText, "482913")
	require.Contains(t, msg.HTML, "Purchase Verification Required")

	stored := env.unused(t, enums.OTPPurposePurchaseConfirmation)
	require.Len(t, stored, 1)
	require.NotContains(t, stored[0].CodeHash, "482913")

	require.NoError(t, env.svc.Verify(ctx, VerifyInput{UserID: env.user.ID, Code: "482913", Purpose: enums.OTPPurposePurchaseConfirmation}))
	require.Empty(t, env.unused(t, enums.OTPPurposePurchaseConfirmation))

	err = env.svc.Verify(ctx, VerifyInput{UserID: env.user.ID, Code: "482913", Purpose: enums.OTPPurposePurchaseConfirmation})
	requireReason(t, err, ReasonNotFound)
}

func TestIssueSupersedesOutstandingChallenge(t *testing.T) {
	env := newOTPEnv(t)
	env.codes = []string{"111111", "222222"}
	ctx := context.Background()

	_, err := env.svc.Issue(ctx, IssueInput{UserID: env.user.ID, Purpose: enums.OTPPurposePurchaseConfirmation})
	require.NoError(t, err)
	second, err := env.svc.Issue(ctx, IssueInput{UserID: env.user.ID, Purpose: enums.OTPPurposePurchaseConfirmation})
	require.NoError(t, err)
	require.Equal(t, int64(1), second.Superseded)

	live := env.unused(t, enums.OTPPurposePurchaseConfirmation)
	require.Len(t, live, 1)
	require.Equal(t, second.ChallengeID, live[0].ID)

	err = env.svc.Verify(ctx, VerifyInput{UserID: env.user.ID, Code: "111111", Purpose: enums.OTPPurposePurchaseConfirmation})
	requireReason(t, err, ReasonNotFound)
	require.NoError(t, env.svc.Verify(ctx, VerifyInput{UserID: env.user.ID, Code: "222222", Purpose: enums.OTPPurposePurchaseConfirmation}))
}

func TestVerifyExpiredLeavesChallengeUnused(t *testing.T) {
	env := newOTPEnv(t)
	env.codes = []string{"135790"}
	ctx := context.Background()

	_, err := env.svc.Issue(ctx, IssueInput{UserID: env.user.ID, Purpose: enums.OTPPurposePurchaseConfirmation})
	require.NoError(t, err)

	env.clock = env.clock.Add(5*time.Minute + time.Second)
	err = env.svc.Verify(ctx, VerifyInput{UserID: env.user.ID, Code: "135790", Purpose: enums.OTPPurposePurchaseConfirmation})
	requireReason(t, err, ReasonExpired)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Len(t, env.unused(t, enums.OTPPurposePurchaseConfirmation), 1)
}

func TestIssueDispatchFailureKeepsChallenge(t *testing.T) {
	env := newOTPEnv(t)
	env.mail.err = errors.New("sendgrid: 500")

	_, err := env.svc.Issue(context.Background(), IssueInput{UserID: env.user.ID, Purpose: enums.OTPPurposePurchaseConfirmation})
	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	live := env.unused(t, enums.OTPPurposePurchaseConfirmation)
	require.Len(t, live, 1)
	require.Equal(t, dispatchErr.ChallengeID, live[0].ID)

	env.mail.err = nil
	res, err := env.svc.Issue(context.Background(), IssueInput{UserID: env.user.ID, Purpose: enums.OTPPurposePurchaseConfirmation})
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Superseded)
}

func TestIssueRateLimited(t *testing.T) {
	env := newOTPEnv(t)
	env.limiter.allow = false

	_, err := env.svc.Issue(context.Background(), IssueInput{UserID: env.user.ID, Purpose: enums.OTPPurposeLogin})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRateLimit))
	require.Empty(t, env.mail.sent)

	env.limiter.err = errors.New("redis down")
	_, err = env.svc.Issue(context.Background(), IssueInput{UserID: env.user.ID, Purpose: enums.OTPPurposeLogin})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestLoginSessionScoping(t *testing.T) {
	env := newOTPEnv(t)
	env.codes = []string{"246810"}
	ctx := context.Background()

	res, err := env.svc.IssueForEmail(ctx, "ALINE@example.com", enums.OTPPurposeLogin, nil)
	require.NoError(t, err)
	require.NotNil(t, res.SessionID)
	require.True(t, strings.Contains(env.mail.sent[0].HTML, "Login Verification Required"))

	other := uuid.NewString()
	_, err = env.svc.VerifyForEmail(ctx, "aline@example.com", "246810", enums.OTPPurposeLogin, &other)
	requireReason(t, err, ReasonNotFound)

	user, err := env.svc.VerifyForEmail(ctx, "aline@example.com", "246810", enums.OTPPurposeLogin, res.SessionID)
	require.NoError(t, err)
	require.Equal(t, env.user.ID, user.ID)

	_, err = env.svc.VerifyForEmail(ctx, "nobody@example.com", "246810", enums.OTPPurposeLogin, nil)
	requireReason(t, err, ReasonNotFound)
}

func TestVerifyRecordsAgentGrant(t *testing.T) {
	env := newOTPEnv(t)
	env.codes = []string{"975310"}
	ctx := context.Background()
	agentID := uuid.New()

	ok, err := env.svc.HasGrant(ctx, agentID, env.user.ID)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = env.svc.Issue(ctx, IssueInput{UserID: env.user.ID, Purpose: enums.OTPPurposePurchaseConfirmation, IssuedBy: &agentID})
	require.NoError(t, err)
	require.NoError(t, env.svc.Verify(ctx, VerifyInput{UserID: env.user.ID, Code: "975310", Purpose: enums.OTPPurposePurchaseConfirmation, AgentID: &agentID}))

	ok, err = env.svc.HasGrant(ctx, agentID, env.user.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 10*time.Minute, env.grants.values[env.grants.OTPGrantKey(agentID.String(), env.user.ID.String())])
}

func TestCleanupExpired(t *testing.T) {
	env := newOTPEnv(t)
	ctx := context.Background()

	_, err := env.svc.Issue(ctx, IssueInput{UserID: env.user.ID, Purpose: enums.OTPPurposeLogin})
	require.NoError(t, err)
	_, err = env.svc.Issue(ctx, IssueInput{UserID: env.user.ID, Purpose: enums.OTPPurposePurchaseConfirmation})
	require.NoError(t, err)

	n, err := env.svc.CleanupExpired(ctx, time.Hour)
	require.NoError(t, err)
	require.Zero(t, n)

	env.clock = env.clock.Add(2 * time.Hour)
	n, err = env.svc.CleanupExpired(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestIssueValidation(t *testing.T) {
	env := newOTPEnv(t)
	_, err := env.svc.Issue(context.Background(), IssueInput{Purpose: enums.OTPPurposeLogin})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = env.svc.Issue(context.Background(), IssueInput{UserID: env.user.ID, Purpose: "reset"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = env.svc.Issue(context.Background(), IssueInput{UserID: uuid.New(), Purpose: enums.OTPPurposeLogin})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

type orderedRepo struct {
	Repository
	log *callLog
}

func (r orderedRepo) WithTx(tx *gorm.DB) Repository {
	return orderedRepo{Repository: r.Repository.WithTx(tx), log: r.log}
}

func (r orderedRepo) LockUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	r.log.add("lock_user")
	return r.Repository.LockUser(ctx, userID)
}

func (r orderedRepo) SupersedeUnused(ctx context.Context, userID uuid.UUID, purpose enums.OTPPurpose) (int64, error) {
	r.log.add("supersede")
	return r.Repository.SupersedeUnused(ctx, userID, purpose)
}

func (r orderedRepo) Create(ctx context.Context, challenge *models.OTPChallenge) error {
	r.log.add("create")
	return r.Repository.Create(ctx, challenge)
}

func TestIssueLocksOwnerBeforeSuperseding(t *testing.T) {
	env := newOTPEnv(t)
	log := &callLog{}
	env.svc.repo = orderedRepo{Repository: env.svc.repo, log: log}

	_, err := env.svc.Issue(context.Background(), IssueInput{UserID: env.user.ID, Purpose: enums.OTPPurposePurchaseConfirmation})
	require.NoError(t, err)
	require.Equal(t, []string{"lock_user", "supersede", "create"}, log.calls)
}

func TestConcurrentIssuesLeaveOneLiveChallenge(t *testing.T) {
	env := newOTPEnv(t)
	env.svc.newCode = func(int) (string, error) { return "864200", nil }
	env.svc.limiter = nil
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Issue(ctx, IssueInput{UserID: env.user.ID, Purpose: enums.OTPPurposePurchaseConfirmation})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, env.unused(t, enums.OTPPurposePurchaseConfirmation), 1)
}

func TestSecondLiveChallengeIsRejectedByIndex(t *testing.T) {
	env := newOTPEnv(t)
	repo := NewRepository(env.db)
	ctx := context.Background()
	row := func() *models.OTPChallenge {
		return &models.OTPChallenge{
			ID:        uuid.New(),
			UserID:    env.user.ID,
			CodeHash:  "hash",
			Purpose:   enums.OTPPurposePurchaseConfirmation,
			ExpiresAt: env.clock.Add(5 * time.Minute),
			CreatedAt: env.clock,
		}
	}

	require.NoError(t, repo.Create(ctx, row()))
	require.Error(t, repo.Create(ctx, row()))

	_, err := repo.SupersedeUnused(ctx, env.user.ID, enums.OTPPurposePurchaseConfirmation)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, row()))
}
