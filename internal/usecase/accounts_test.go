package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/Kimkangyeon-17/teskflow/internal/domain"
)

type accountFixture struct {
	users    *mockUserRepo
	profiles *mockProfileRepo
	tokens   *mockTokenRepo
	refresh  *mockRefreshRepo
	notifier *mockNotifier
	events   *mockEvents
	accounts AccountService
	verify   VerificationService
}

func newAccountFixture() *accountFixture {
	cfg := testConfig()
	logger := testLogger()
	users := newMockUserRepo()
	profiles := newMockProfileRepo()
	tokens := newMockTokenRepo(users)
	refresh := newMockRefreshRepo()
	notifier := &mockNotifier{}
	events := &mockEvents{}
	verify := NewVerificationService(cfg, logger, tokens, users, notifier, events)
	accounts := NewAccountService(cfg, logger, users, profiles, refresh, verify, events)
	return &accountFixture{
		users: users, profiles: profiles, tokens: tokens, refresh: refresh,
		notifier: notifier, events: events, accounts: accounts, verify: verify,
	}
}

// lastTokenValue pulls the token value out of the most recent verification
// link handed to the notifier.
func (f *accountFixture) lastTokenValue(t *testing.T) string {
	t.Helper()
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	if len(f.notifier.links) == 0 {
		t.Fatal("no verification link captured")
	}
	link := f.notifier.links[len(f.notifier.links)-1]
	return link[strings.LastIndex(link, "/")+1:]
}

func registerInput() RegisterInput {
	return RegisterInput{
		Email:     "User@Example.com",
		Password:  "correct-horse-battery",
		FirstName: "Kim",
		LastName:  "Lee",
	}
}

func TestRegisterCreatesUnverifiedUserWithOneToken(t *testing.T) {
	f := newAccountFixture()

	user, err := f.accounts.Register(context.Background(), "t1", registerInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "user@example.com" {
		t.Fatalf("email not normalized: %s", user.Email)
	}
	if user.EmailVerified {
		t.Fatal("new user must not be verified")
	}
	if user.PasswordHash == "correct-horse-battery" || user.PasswordHash == "" {
		t.Fatal("password stored without hashing")
	}
	if _, err := f.profiles.FindByUserID(context.Background(), user.ID); err != nil {
		t.Fatalf("profile row missing: %v", err)
	}
	count, _ := f.tokens.CountIssued(context.Background(), user.ID, user.CreatedAt)
	if count != 1 {
		t.Fatalf("expected exactly one issued token, got %d", count)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0] != "user@example.com" {
		t.Fatalf("verification mail not sent: %+v", f.notifier.sent)
	}
}

func TestRegisterMalformedEmail(t *testing.T) {
	f := newAccountFixture()
	in := registerInput()
	in.Email = "no-at-sign"
	_, err := f.accounts.Register(context.Background(), "t1", in)
	if !errors.Is(err, domain.ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newAccountFixture()
	if _, err := f.accounts.Register(context.Background(), "t1", registerInput()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := f.accounts.Register(context.Background(), "t2", registerInput())
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestRegisterWeakPasswords(t *testing.T) {
	f := newAccountFixture()
	cases := []struct {
		name     string
		password string
	}{
		{"too short", "abc1"},
		{"numeric only", "84759302817465"},
		{"common", "password123"},
		{"similar to email", "my-user-password"},
	}
	for _, tc := range cases {
		in := registerInput()
		in.Password = tc.password
		_, err := f.accounts.Register(context.Background(), "t1", in)
		if !errors.Is(err, domain.ErrWeakPassword) {
			t.Fatalf("%s: expected ErrWeakPassword, got %v", tc.name, err)
		}
	}
}

func TestRegisterSucceedsWhenMailDeliveryFails(t *testing.T) {
	f := newAccountFixture()
	f.notifier.err = errors.New("gateway down")

	user, err := f.accounts.Register(context.Background(), "t1", registerInput())
	if err != nil {
		t.Fatalf("register must survive delivery failure: %v", err)
	}
	count, _ := f.tokens.CountIssued(context.Background(), user.ID, user.CreatedAt)
	if count != 1 {
		t.Fatalf("token must remain valid for resend, got %d", count)
	}
}

func TestAuthenticateUniformError(t *testing.T) {
	f := newAccountFixture()
	if _, err := f.accounts.Register(context.Background(), "t1", registerInput()); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, wrongPass := f.accounts.Authenticate(context.Background(), "user@example.com", "not-the-password")
	_, noSuchUser := f.accounts.Authenticate(context.Background(), "nobody@example.com", "whatever-pass")

	if !errors.Is(wrongPass, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", wrongPass)
	}
	if !errors.Is(noSuchUser, domain.ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v", noSuchUser)
	}
	if wrongPass.Error() != noSuchUser.Error() {
		t.Fatal("errors must be indistinguishable")
	}
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	f := newAccountFixture()
	user, err := f.accounts.Register(context.Background(), "t1", registerInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.accounts.SoftDelete(context.Background(), "t1", user.ID, "correct-horse-battery"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	// original email no longer resolves at all
	_, err = f.accounts.Authenticate(context.Background(), "user@example.com", "correct-horse-battery")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials after delete, got %v", err)
	}

	deleted, _ := f.users.FindByID(context.Background(), user.ID)
	_, err = f.accounts.Authenticate(context.Background(), deleted.Email, "correct-horse-battery")
	if !errors.Is(err, domain.ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive on tagged email, got %v", err)
	}
}

func TestSoftDeleteFreesEmailForReRegistration(t *testing.T) {
	f := newAccountFixture()
	user, err := f.accounts.Register(context.Background(), "t1", registerInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.accounts.SoftDelete(context.Background(), "t1", user.ID, "correct-horse-battery"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	again, err := f.accounts.Register(context.Background(), "t2", registerInput())
	if err != nil {
		t.Fatalf("re-register with freed email: %v", err)
	}
	if again.ID == user.ID {
		t.Fatal("expected a brand-new account")
	}

	old, _ := f.users.FindByID(context.Background(), user.ID)
	if old.Active {
		t.Fatal("deleted account reverted to active")
	}
	if old.Email == "user@example.com" {
		t.Fatal("deleted account kept the original email")
	}
}

func TestSoftDeleteRequiresPassword(t *testing.T) {
	f := newAccountFixture()
	user, _ := f.accounts.Register(context.Background(), "t1", registerInput())

	err := f.accounts.SoftDelete(context.Background(), "t1", user.ID, "wrong-password")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	kept, _ := f.users.FindByID(context.Background(), user.ID)
	if !kept.Active {
		t.Fatal("account must stay active on failed delete")
	}
}

func TestChangePassword(t *testing.T) {
	f := newAccountFixture()
	user, _ := f.accounts.Register(context.Background(), "t1", registerInput())

	if err := f.accounts.ChangePassword(context.Background(), "t1", user.ID, "wrong", "fresh-new-secret-9"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong current password: got %v", err)
	}
	if err := f.accounts.ChangePassword(context.Background(), "t1", user.ID, "correct-horse-battery", "short"); !errors.Is(err, domain.ErrWeakPassword) {
		t.Fatalf("weak new password: got %v", err)
	}
	if err := f.accounts.ChangePassword(context.Background(), "t1", user.ID, "correct-horse-battery", "fresh-new-secret-9"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	updated, _ := f.users.FindByID(context.Background(), user.ID)
	if err := bcrypt.CompareHashAndPassword([]byte(updated.PasswordHash), []byte("fresh-new-secret-9")); err != nil {
		t.Fatal("new password does not verify")
	}
}

func TestUpdateProfileAppliesOnlyPatchedFields(t *testing.T) {
	f := newAccountFixture()
	user, _ := f.accounts.Register(context.Background(), "t1", registerInput())

	bio := "hello"
	theme := "dark"
	push := false
	updated, err := f.accounts.UpdateProfile(context.Background(), "t1", user.ID, ProfilePatch{
		Bio:               &bio,
		Theme:             &theme,
		PushNotifications: &push,
	})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Bio != "hello" || updated.Theme != "dark" {
		t.Fatalf("patched fields not applied: %+v", updated)
	}
	if updated.FirstName != "Kim" {
		t.Fatal("unpatched field changed")
	}
	if updated.Email != "user@example.com" || updated.EmailVerified {
		t.Fatal("read-only fields must be untouched")
	}
	profile, _ := f.profiles.FindByUserID(context.Background(), user.ID)
	if profile.PushNotifications {
		t.Fatal("profile switch not applied")
	}
	if !profile.EmailNotifications {
		t.Fatal("unpatched profile switch changed")
	}
}

func TestUpdateProfileRecreatesMissingRow(t *testing.T) {
	f := newAccountFixture()
	user, _ := f.accounts.Register(context.Background(), "t1", registerInput())

	f.profiles.mu.Lock()
	delete(f.profiles.profiles, user.ID)
	f.profiles.mu.Unlock()

	phone := "010-1234-5678"
	push := false
	updated, err := f.accounts.UpdateProfile(context.Background(), "t1", user.ID, ProfilePatch{
		PhoneNumber:       &phone,
		PushNotifications: &push,
	})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Profile == nil {
		t.Fatal("profile row not recreated")
	}
	profile, err := f.profiles.FindByUserID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("recreated row missing: %v", err)
	}
	if profile.PhoneNumber != "010-1234-5678" || profile.PushNotifications {
		t.Fatalf("patched fields dropped: %+v", profile)
	}
	if !profile.EmailNotifications {
		t.Fatal("unpatched switch must keep its default")
	}
}

func TestEmailAvailable(t *testing.T) {
	f := newAccountFixture()
	if _, err := f.accounts.Register(context.Background(), "t1", registerInput()); err != nil {
		t.Fatalf("register: %v", err)
	}

	taken, err := f.accounts.EmailAvailable(context.Background(), "USER@example.com")
	if err != nil {
		t.Fatalf("check taken email: %v", err)
	}
	if taken {
		t.Fatal("registered email reported available")
	}
	free, err := f.accounts.EmailAvailable(context.Background(), "other@example.com")
	if err != nil {
		t.Fatalf("check free email: %v", err)
	}
	if !free {
		t.Fatal("unregistered email reported taken")
	}

	if _, err := f.accounts.EmailAvailable(context.Background(), "no-at-sign"); !errors.Is(err, domain.ErrInvalidEmail) {
		t.Fatalf("malformed email: expected ErrInvalidEmail, got %v", err)
	}
}
