package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestService() *Service {
	return NewService(NewMemoryRepository(), WithHashCost(bcrypt.MinCost))
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	user, err := svc.Register(ctx, "0912345678", "secret1", "Lan", "lan@example.com")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Role != RoleUser {
		t.Fatalf("expected role user, got %s", user.Role)
	}
	if string(user.PasswordHash) == "secret1" {
		t.Fatalf("password stored in clear text")
	}

	authed, err := svc.Authenticate(ctx, "0912345678", "secret1")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != user.ID {
		t.Fatalf("expected %s, got %s", user.ID, authed.ID)
	}
}

func TestAuthenticateRejectsBadPassword(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "0912345678", "secret1", "Lan", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "0912345678", "wrong!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "0999999999", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown phone, got %v", err)
	}
}

func TestRegisterDuplicatePhone(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "0912345678", "secret1", "Lan", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.EnsurePhoneAvailable(ctx, "0912345678"); !errors.Is(err, ErrPhoneTaken) {
		t.Fatalf("expected phone taken, got %v", err)
	}
	if _, err := svc.Register(ctx, "0912345678", "secret2", "Mai", ""); !errors.Is(err, ErrPhoneTaken) {
		t.Fatalf("expected phone taken on create, got %v", err)
	}
}

func TestConcurrentRegistrationsOnlyOneWins(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	hash, err := svc.HashPassword("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, Registration{Phone: "0912345678", PasswordHash: hash, Name: "Lan"})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else if !errors.Is(err, ErrPhoneTaken) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("expected exactly one user, got %d", created)
	}
}

func TestChangePassword(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	user, _ := svc.Register(ctx, "0912345678", "secret1", "Lan", "")

	if err := svc.ChangePassword(ctx, user.ID, "nope", "secret2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "secret1", "secret2"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "0912345678", "secret2"); err != nil {
		t.Fatalf("authenticate with new password: %v", err)
	}
}

func TestResetPasswordUnknownPhone(t *testing.T) {
	svc := newTestService()
	if err := svc.ResetPassword(context.Background(), "0900000000", "secret2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestContactChange(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	lan, _ := svc.Register(ctx, "0912345678", "secret1", "Lan", "lan@example.com")
	_, _ = svc.Register(ctx, "0987654321", "secret1", "Mai", "mai@example.com")

	if err := svc.EnsureContactAvailable(ctx, lan.ID, ContactPhone, "0987654321"); !errors.Is(err, ErrPhoneTaken) {
		t.Fatalf("expected phone taken, got %v", err)
	}
	if err := svc.EnsureContactAvailable(ctx, lan.ID, ContactEmail, "mai@example.com"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
	if err := svc.EnsureContactAvailable(ctx, lan.ID, ContactEmail, "lan@example.com"); err != nil {
		t.Fatalf("own email should be available: %v", err)
	}

	if err := svc.ApplyContact(ctx, lan.ID, ContactPhone, "0911111111"); err != nil {
		t.Fatalf("apply phone: %v", err)
	}
	if err := svc.ApplyContact(ctx, lan.ID, ContactEmail, "lan@new.example.com"); err != nil {
		t.Fatalf("apply email: %v", err)
	}
	got, err := svc.Profile(ctx, lan.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if got.Phone != "0911111111" || got.Email != "lan@new.example.com" {
		t.Fatalf("contact not applied: %+v", got)
	}
	if err := svc.EnsurePhoneAvailable(ctx, "0912345678"); err != nil {
		t.Fatalf("old phone should be released: %v", err)
	}
}

func TestListNewestFirstAndDelete(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(NewMemoryRepository(), WithHashCost(bcrypt.MinCost), WithClock(func() time.Time {
		now = now.Add(time.Minute)
		return now
	}))
	ctx := context.Background()
	first, _ := svc.Register(ctx, "0912345678", "secret1", "Lan", "")
	second, _ := svc.Register(ctx, "0987654321", "secret1", "Mai", "")

	users, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 2 || users[0].ID != second.ID || users[1].ID != first.ID {
		t.Fatalf("unexpected order: %+v", users)
	}

	if err := svc.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestParseContactField(t *testing.T) {
	if f, err := ParseContactField("email"); err != nil || f != ContactEmail {
		t.Fatalf("parse email: %v %v", f, err)
	}
	if _, err := ParseContactField("name"); err == nil {
		t.Fatalf("expected error for arbitrary column")
	}
}

func TestGrantRole(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	user, err := svc.Register(ctx, "0912345678", "secret1", "Lan", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	promoted, err := svc.GrantRole(ctx, "0912345678", RoleAdmin)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if promoted.Role != RoleAdmin {
		t.Fatalf("expected admin, got %s", promoted.Role)
	}
	stored, _ := svc.Profile(ctx, user.ID)
	if stored.Role != RoleAdmin {
		t.Fatalf("role not persisted: %s", stored.Role)
	}

	if _, err := svc.GrantRole(ctx, "0999999999", RoleAdmin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.GrantRole(ctx, "0912345678", Role("root")); err == nil {
		t.Fatalf("expected unknown role error")
	}
}

func TestEnsureRegistrable(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "0912345678", "secret1", "Lan", "lan@example.com"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.EnsureRegistrable(ctx, "0912345678", ""); !errors.Is(err, ErrPhoneTaken) {
		t.Fatalf("expected ErrPhoneTaken, got %v", err)
	}
	if err := svc.EnsureRegistrable(ctx, "0987654321", "lan@example.com"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if err := svc.EnsureRegistrable(ctx, "0987654321", ""); err != nil {
		t.Fatalf("expected free phone without email to pass, got %v", err)
	}
	if err := svc.EnsureRegistrable(ctx, "0987654321", "minh@example.com"); err != nil {
		t.Fatalf("expected free contacts to pass, got %v", err)
	}
}
