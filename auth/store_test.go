package auth

import "testing"

func TestLookupOrderAndAdminFirst(t *testing.T) {
	users := []User{
		{Name: "anonymous", Password: ""},
		{Name: "alice", Password: "wonderland"},
		{Name: "root", Password: "userpw"},
	}
	admin := &User{Name: "root", Password: "adminpw"}
	s := NewStore(users, admin)

	acct, ok := s.Lookup("root")
	if !ok || !acct.Admin {
		t.Fatalf("Lookup(root) = %+v ok=%v, want admin account", acct, ok)
	}
	if !acct.Verify("adminpw") || acct.Verify("userpw") {
		t.Error("admin credential not checked before user list")
	}

	acct, ok = s.Lookup("alice")
	if !ok || acct.Admin {
		t.Fatalf("Lookup(alice) = %+v ok=%v", acct, ok)
	}
	if !acct.NeedsPassword() {
		t.Error("alice should need a password")
	}

	if _, ok := s.Lookup("mallory"); ok {
		t.Error("unknown user found")
	}
}

func TestEmptyPasswordMeansNoPassword(t *testing.T) {
	s := NewStore([]User{{Name: "anonymous", Password: ""}}, nil)
	acct, ok := s.Lookup("anonymous")
	if !ok {
		t.Fatal("anonymous not found")
	}
	if acct.NeedsPassword() {
		t.Error("empty password should mean no password required")
	}
	if !acct.Verify("") {
		t.Error("empty password should verify")
	}
}

func TestVerifyBcryptHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	s := NewStore(nil, &User{Name: "admin", Password: hash})
	acct, ok := s.Lookup("admin")
	if !ok {
		t.Fatal("admin not found")
	}
	if !acct.Verify("s3cret") {
		t.Error("correct password rejected against bcrypt hash")
	}
	if acct.Verify("wrong") {
		t.Error("wrong password accepted against bcrypt hash")
	}
}

func TestVerifyPlaintext(t *testing.T) {
	s := NewStore([]User{{Name: "bob", Password: "hunter2"}}, nil)
	acct, _ := s.Lookup("bob")
	if !acct.Verify("hunter2") || acct.Verify("hunter3") {
		t.Error("plaintext comparison wrong")
	}
}

func TestReloadSwapsSnapshot(t *testing.T) {
	s := NewStore([]User{{Name: "old", Password: ""}}, nil)
	s.Reload([]User{{Name: "new", Password: ""}}, &User{Name: "boss", Password: "x"})

	if _, ok := s.Lookup("old"); ok {
		t.Error("stale user survived reload")
	}
	if _, ok := s.Lookup("new"); !ok {
		t.Error("reloaded user missing")
	}
	if acct, ok := s.Lookup("boss"); !ok || !acct.Admin {
		t.Error("reloaded admin missing")
	}
}
