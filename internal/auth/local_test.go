package auth

import (
	"sync"
	"testing"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	byID  map[string]User
}

func newFakeUserRepo() *fakeUserRepo { return &fakeUserRepo{byID: map[string]User{}} }

func (f *fakeUserRepo) Insert(u User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[u.Email] = u
	return nil
}

func (f *fakeUserRepo) GetByEmail(email string) (User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[email]
	return u, ok
}

func (f *fakeUserRepo) Count() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID), nil
}

func TestSetup_CreatesFirstAdministrator(t *testing.T) {
	repo := newFakeUserRepo()
	b := NewLocalBroker(repo, "test-secret", false)

	p, err := b.Setup("admin@example.com", "hunter22222")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if !p.HasRole("admin") {
		t.Errorf("roles = %v, want admin", p.Roles)
	}
	if p.Token == "" {
		t.Error("expected Setup to return a signed token")
	}
}

func TestSetup_FailsOnceAUserExists(t *testing.T) {
	repo := newFakeUserRepo()
	b := NewLocalBroker(repo, "test-secret", false)
	if _, err := b.Setup("admin@example.com", "hunter22222"); err != nil {
		t.Fatalf("first Setup: %v", err)
	}

	if _, err := b.Setup("other@example.com", "hunter22222"); err == nil {
		t.Fatal("expected second Setup call to fail")
	}
}

func TestLogin_RejectsWrongPassword(t *testing.T) {
	repo := newFakeUserRepo()
	b := NewLocalBroker(repo, "test-secret", false)
	if _, err := b.Setup("admin@example.com", "correct-password"); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	if _, err := b.Login("admin@example.com", "wrong-password"); err == nil {
		t.Fatal("expected Login with a wrong password to fail")
	}
}

func TestValidateLocalToken_RoundTripsThroughLogin(t *testing.T) {
	repo := newFakeUserRepo()
	b := NewLocalBroker(repo, "test-secret", false)
	if _, err := b.Setup("admin@example.com", "correct-password"); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	login, err := b.Login("admin@example.com", "correct-password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	principal, err := b.ValidateLocalToken(login.Token)
	if err != nil {
		t.Fatalf("ValidateLocalToken: %v", err)
	}
	if principal.Email != "admin@example.com" {
		t.Errorf("email = %s, want admin@example.com", principal.Email)
	}
}

func TestValidateLocalToken_RejectsTokenSignedWithDifferentSecret(t *testing.T) {
	repo := newFakeUserRepo()
	b1 := NewLocalBroker(repo, "secret-one", false)
	if _, err := b1.Setup("admin@example.com", "correct-password"); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	login, err := b1.Login("admin@example.com", "correct-password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	b2 := NewLocalBroker(repo, "secret-two", false)
	if _, err := b2.ValidateLocalToken(login.Token); err == nil {
		t.Fatal("expected validation against a different secret to fail")
	}
}

func TestSignup_RejectedWhenDisabled(t *testing.T) {
	repo := newFakeUserRepo()
	b := NewLocalBroker(repo, "test-secret", false)
	if _, err := b.Signup("new@example.com", "hunter22222"); err == nil {
		t.Fatal("expected Signup to fail when sign-ups are disabled")
	}
}
