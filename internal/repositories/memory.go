package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"pwanotify/internal/authz"
	"pwanotify/internal/common"
	"pwanotify/internal/models"
)

// memoryState backs the in-memory repositories. A single mutex guards all
// tables so cascades and the OTP consume are atomic.
type memoryState struct {
	mu            sync.Mutex
	seq           int64
	users         map[string]*models.User
	otps          map[string]*models.OtpCode
	subscriptions map[string]*models.Subscription
	notifications map[string]*models.Notification
	order         map[string]int64
}

// NewMemoryStore returns repositories that keep everything in process memory.
func NewMemoryStore() *Store {
	st := &memoryState{
		users:         map[string]*models.User{},
		otps:          map[string]*models.OtpCode{},
		subscriptions: map[string]*models.Subscription{},
		notifications: map[string]*models.Notification{},
		order:         map[string]int64{},
	}
	return &Store{
		Users:         &memoryUsers{st},
		OTPs:          &memoryOtps{st},
		Subscriptions: &memorySubscriptions{st},
		Notifications: &memoryNotifications{st},
	}
}

// track records insertion order; created_at alone can tie.
func (s *memoryState) track(id string) {
	s.seq++
	s.order[id] = s.seq
}

func (s *memoryState) newerFirst(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return s.order[ids[i]] > s.order[ids[j]] })
}

func notFound(op string) error {
	return oops.Code("NOT_FOUND").With("op", op).Wrap(common.ErrNotFound)
}

func conflict(op, field string) error {
	return oops.Code("CONFLICT").With("op", op).With("constraint", field).Wrap(common.ErrConflict)
}

func now() time.Time { return time.Now().UTC() }

// ---- users ----

type memoryUsers struct{ st *memoryState }

func sameString(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func (r *memoryUsers) checkUnique(op string, u *models.User) error {
	for id, other := range r.st.users {
		if id == u.ID {
			continue
		}
		switch {
		case sameString(u.Username, other.Username):
			return conflict(op, "users_username_key")
		case sameString(u.Email, other.Email):
			return conflict(op, "users_email_key")
		case sameString(u.WhatsAppNumber, other.WhatsAppNumber):
			return conflict(op, "users_whatsapp_number_key")
		}
	}
	return nil
}

func (r *memoryUsers) Create(_ context.Context, user *models.User) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if _, ok := r.st.users[user.ID]; ok {
		return conflict("user create", "users_pkey")
	}
	if err := r.checkUnique("user create", user); err != nil {
		return err
	}
	t := now()
	user.CreatedAt, user.UpdatedAt = t, t
	r.st.users[user.ID] = user.Clone()
	r.st.track(user.ID)
	return nil
}

func (r *memoryUsers) find(op string, match func(*models.User) bool) (*models.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, u := range r.st.users {
		if match(u) {
			return u.Clone(), nil
		}
	}
	return nil, notFound(op)
}

func (r *memoryUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	u, ok := r.st.users[id]
	if !ok {
		return nil, notFound("user get by id")
	}
	return u.Clone(), nil
}

func (r *memoryUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return r.find("user get by username", func(u *models.User) bool {
		return u.Username != nil && *u.Username == username
	})
}

func (r *memoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find("user get by email", func(u *models.User) bool {
		return u.Email != nil && *u.Email == email
	})
}

func (r *memoryUsers) GetByWhatsAppNumber(_ context.Context, phone string) (*models.User, error) {
	return r.find("user get by whatsapp", func(u *models.User) bool {
		return u.WhatsAppNumber != nil && *u.WhatsAppNumber == phone
	})
}

func (r *memoryUsers) ListByRole(_ context.Context, role authz.Role) ([]*models.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	ids := make([]string, 0, len(r.st.users))
	for id, u := range r.st.users {
		if u.Role == role {
			ids = append(ids, id)
		}
	}
	r.st.newerFirst(ids)
	res := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		res = append(res, r.st.users[id].Clone())
	}
	return res, nil
}

func (r *memoryUsers) Update(_ context.Context, user *models.User) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	cur, ok := r.st.users[user.ID]
	if !ok {
		return notFound("user update")
	}
	if err := r.checkUnique("user update", user); err != nil {
		return err
	}
	t := now()
	next := user.Clone()
	next.Role = cur.Role
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = t
	next.Verified = cur.Verified || user.Verified
	next.VerifiedAt = cur.VerifiedAt
	if !cur.Verified && user.Verified {
		next.VerifiedAt = &t
	}
	r.st.users[user.ID] = next

	user.Verified, user.VerifiedAt, user.UpdatedAt = next.Verified, cloneTime(next.VerifiedAt), t
	return nil
}

func (r *memoryUsers) MarkVerified(_ context.Context, id string, at time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	u, ok := r.st.users[id]
	if !ok {
		return notFound("user mark verified")
	}
	u.Verified = true
	if u.VerifiedAt == nil {
		t := at
		u.VerifiedAt = &t
	}
	u.UpdatedAt = at
	return nil
}

// Delete cascades like the foreign keys do.
func (r *memoryUsers) Delete(_ context.Context, id string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if _, ok := r.st.users[id]; !ok {
		return notFound("user delete")
	}
	delete(r.st.users, id)
	for oid, o := range r.st.otps {
		if o.UserID == id {
			delete(r.st.otps, oid)
		}
	}
	for sid, s := range r.st.subscriptions {
		if s.ClientID == id {
			delete(r.st.subscriptions, sid)
		}
	}
	for nid, n := range r.st.notifications {
		if n.ClientID == id {
			delete(r.st.notifications, nid)
		}
	}
	return nil
}

func (r *memoryUsers) count(role authz.Role, verifiedOnly bool) int {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	n := 0
	for _, u := range r.st.users {
		if u.Role == role && (!verifiedOnly || u.Verified) {
			n++
		}
	}
	return n
}

func (r *memoryUsers) CountByRole(_ context.Context, role authz.Role) (int, error) {
	return r.count(role, false), nil
}

func (r *memoryUsers) CountVerifiedByRole(_ context.Context, role authz.Role) (int, error) {
	return r.count(role, true), nil
}

// ---- otp codes ----

type memoryOtps struct{ st *memoryState }

func cloneOtp(o *models.OtpCode) *models.OtpCode {
	cp := *o
	if o.UsedAt != nil {
		t := *o.UsedAt
		cp.UsedAt = &t
	}
	return &cp
}

func (r *memoryOtps) Create(_ context.Context, otp *models.OtpCode) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if _, ok := r.st.users[otp.UserID]; !ok {
		return oops.Code("FK_VIOLATION").With("user_id", otp.UserID).Wrap(common.ErrNotFound)
	}
	if otp.ID == "" {
		otp.ID = uuid.NewString()
	}
	if otp.CreatedAt.IsZero() {
		otp.CreatedAt = now()
	}
	otp.Used, otp.UsedAt, otp.Attempts = false, nil, 0
	r.st.otps[otp.ID] = cloneOtp(otp)
	r.st.track(otp.ID)
	return nil
}

// latest returns the newest code of the user satisfying match. Caller holds the lock.
func (r *memoryOtps) latest(userID string, match func(*models.OtpCode) bool) *models.OtpCode {
	var best *models.OtpCode
	for _, o := range r.st.otps {
		if o.UserID != userID || !match(o) {
			continue
		}
		if best == nil || o.CreatedAt.After(best.CreatedAt) ||
			(o.CreatedAt.Equal(best.CreatedAt) && r.st.order[o.ID] > r.st.order[best.ID]) {
			best = o
		}
	}
	return best
}

func (r *memoryOtps) InvalidateActive(_ context.Context, userID string, at time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for _, o := range r.st.otps {
		if o.UserID == userID && o.IsActive(at) {
			o.ExpiresAt = at
			n++
		}
	}
	return n, nil
}

func (r *memoryOtps) Consume(_ context.Context, userID, code string, at time.Time) (*models.OtpCode, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	o := r.latest(userID, func(o *models.OtpCode) bool { return o.Code == code && o.IsActive(at) })
	if o == nil {
		return nil, oops.Code("OTP_INVALID").With("user_id", userID).Wrap(common.ErrInvalidOTP)
	}
	t := at
	o.Used, o.UsedAt = true, &t
	return cloneOtp(o), nil
}

func (r *memoryOtps) LatestActive(_ context.Context, userID string, at time.Time) (*models.OtpCode, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	o := r.latest(userID, func(o *models.OtpCode) bool { return o.IsActive(at) })
	if o == nil {
		return nil, notFound("otp latest active")
	}
	return cloneOtp(o), nil
}

func (r *memoryOtps) IncrementAttempts(_ context.Context, id string) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	o, ok := r.st.otps[id]
	if !ok {
		return 0, notFound("otp increment attempts")
	}
	o.Attempts++
	return o.Attempts, nil
}

func (r *memoryOtps) Expire(_ context.Context, id string, at time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if o, ok := r.st.otps[id]; ok && o.ExpiresAt.After(at) {
		o.ExpiresAt = at
	}
	return nil
}

func (r *memoryOtps) CountIssuedSince(_ context.Context, userID string, since time.Time) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	n := 0
	for _, o := range r.st.otps {
		if o.UserID == userID && !o.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memoryOtps) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for id, o := range r.st.otps {
		if o.ExpiresAt.Before(before) {
			delete(r.st.otps, id)
			n++
		}
	}
	return n, nil
}

// ---- subscriptions ----

type memorySubscriptions struct{ st *memoryState }

func (r *memorySubscriptions) Upsert(_ context.Context, sub *models.Subscription) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if _, ok := r.st.users[sub.ClientID]; !ok {
		return oops.Code("FK_VIOLATION").With("client_id", sub.ClientID).Wrap(common.ErrNotFound)
	}
	for _, s := range r.st.subscriptions {
		if s.Endpoint == sub.Endpoint {
			s.ClientID, s.P256dhKey, s.AuthKey = sub.ClientID, sub.P256dhKey, sub.AuthKey
			sub.ID, sub.CreatedAt = s.ID, s.CreatedAt
			return nil
		}
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.CreatedAt = now()
	cp := *sub
	r.st.subscriptions[sub.ID] = &cp
	r.st.track(sub.ID)
	return nil
}

func (r *memorySubscriptions) GetByID(_ context.Context, id string) (*models.Subscription, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.subscriptions[id]
	if !ok {
		return nil, notFound("subscription get")
	}
	cp := *s
	return &cp, nil
}

func (r *memorySubscriptions) filter(match func(*models.Subscription) bool) []*models.Subscription {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	ids := []string{}
	for id, s := range r.st.subscriptions {
		if match(s) {
			ids = append(ids, id)
		}
	}
	r.st.newerFirst(ids)
	res := make([]*models.Subscription, 0, len(ids))
	for _, id := range ids {
		cp := *r.st.subscriptions[id]
		res = append(res, &cp)
	}
	return res
}

func (r *memorySubscriptions) ListByClient(_ context.Context, clientID string) ([]*models.Subscription, error) {
	return r.filter(func(s *models.Subscription) bool { return s.ClientID == clientID }), nil
}

func (r *memorySubscriptions) ListAll(_ context.Context) ([]*models.Subscription, error) {
	return r.filter(func(*models.Subscription) bool { return true }), nil
}

func (r *memorySubscriptions) Delete(_ context.Context, id string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.subscriptions[id]; !ok {
		return notFound("subscription delete")
	}
	delete(r.st.subscriptions, id)
	return nil
}

func (r *memorySubscriptions) DeleteByEndpoint(_ context.Context, endpoint string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for id, s := range r.st.subscriptions {
		if s.Endpoint == endpoint {
			delete(r.st.subscriptions, id)
		}
	}
	return nil
}

func (r *memorySubscriptions) Count(_ context.Context) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return len(r.st.subscriptions), nil
}

// ---- notifications ----

type memoryNotifications struct{ st *memoryState }

func cloneNotification(n *models.Notification) *models.Notification {
	cp := *n
	cp.IconURL = cloneStr(n.IconURL)
	cp.TargetURL = cloneStr(n.TargetURL)
	cp.ScheduledAt = cloneTime(n.ScheduledAt)
	cp.SentAt = cloneTime(n.SentAt)
	return &cp
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (r *memoryNotifications) Create(_ context.Context, n *models.Notification) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if _, ok := r.st.users[n.ClientID]; !ok {
		return oops.Code("FK_VIOLATION").With("client_id", n.ClientID).Wrap(common.ErrNotFound)
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Type == "" {
		n.Type = models.NotificationTypeInfo
	}
	n.CreatedAt = now()
	r.st.notifications[n.ID] = cloneNotification(n)
	r.st.track(n.ID)
	return nil
}

func (r *memoryNotifications) GetByID(_ context.Context, id string) (*models.Notification, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	n, ok := r.st.notifications[id]
	if !ok {
		return nil, notFound("notification get")
	}
	return cloneNotification(n), nil
}

func (r *memoryNotifications) filter(match func(*models.Notification) bool) []*models.Notification {
	ids := []string{}
	for id, n := range r.st.notifications {
		if match(n) {
			ids = append(ids, id)
		}
	}
	r.st.newerFirst(ids)
	res := make([]*models.Notification, 0, len(ids))
	for _, id := range ids {
		res = append(res, cloneNotification(r.st.notifications[id]))
	}
	return res
}

func (r *memoryNotifications) ListByClient(_ context.Context, clientID string) ([]*models.Notification, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return r.filter(func(n *models.Notification) bool { return n.ClientID == clientID }), nil
}

func (r *memoryNotifications) ListAll(_ context.Context) ([]*models.Notification, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return r.filter(func(*models.Notification) bool { return true }), nil
}

func (r *memoryNotifications) ListDue(_ context.Context, at time.Time, limit int) ([]*models.Notification, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	due := r.filter(func(n *models.Notification) bool { return n.IsDue(at) })
	sort.SliceStable(due, func(i, j int) bool { return due[i].ScheduledAt.Before(*due[j].ScheduledAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *memoryNotifications) Delete(_ context.Context, id string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.notifications[id]; !ok {
		return notFound("notification delete")
	}
	delete(r.st.notifications, id)
	return nil
}

func (r *memoryNotifications) MarkSent(_ context.Context, id string, at time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	n, ok := r.st.notifications[id]
	if !ok || n.SentAt != nil {
		return notFound("notification mark sent")
	}
	t := at
	n.SentAt = &t
	return nil
}

func (r *memoryNotifications) Count(_ context.Context) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return len(r.st.notifications), nil
}
