package login

import (
	"context"
	"sync"

	"github.com/sing3demons/oryfm/internal/audit"
	"github.com/sing3demons/oryfm/internal/credential"
	"github.com/sing3demons/oryfm/internal/filemaker"
	"github.com/sing3demons/oryfm/internal/hydra"
)

type fakeHydra struct {
	req       *hydra.LoginRequest
	fetchErr  error
	acceptErr error
	accepted  []hydra.AcceptLoginRequest
	fetches   int
}

func (f *fakeHydra) GetLoginRequest(_ context.Context, challenge string) (*hydra.LoginRequest, error) {
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	r := *f.req
	r.Challenge = challenge
	return &r, nil
}

func (f *fakeHydra) AcceptLoginRequest(_ context.Context, _ string, body hydra.AcceptLoginRequest) (*hydra.CompletedRequest, error) {
	if f.acceptErr != nil {
		return nil, f.acceptErr
	}
	f.accepted = append(f.accepted, body)
	return &hydra.CompletedRequest{RedirectTo: "https://hydra.example/oauth2/auth?login_verifier=v"}, nil
}

type fakeUsers struct {
	byEmail  map[string]*filemaker.User
	authErr  error
	authUser *filemaker.User
	calls    int
	newHash  map[string]string
	notSaved bool
}

func (f *fakeUsers) GetUser(_ context.Context, field filemaker.UserField, value string) (*filemaker.User, error) {
	f.calls++
	if field != filemaker.FieldEmailAddress {
		return nil, filemaker.ErrUserNotFound
	}
	u, ok := f.byEmail[value]
	if !ok {
		return nil, filemaker.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) AuthenticateUser(_ context.Context, _, _ string) (*filemaker.User, error) {
	f.calls++
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.authUser, nil
}

func (f *fakeUsers) SetPasswordHash(_ context.Context, userID, passwordHash string) (bool, error) {
	f.calls++
	if f.newHash == nil {
		f.newHash = map[string]string{}
	}
	f.newHash[userID] = passwordHash
	return !f.notSaved, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (f *fakeRecorder) Record(_ context.Context, e audit.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeRecorder) types() []audit.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]audit.EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

// countingPolicy records the hashes Verify was asked to check.
type countingPolicy struct {
	*credential.Policy
	verified []string
}

func (p *countingPolicy) Verify(password, hash string) bool {
	p.verified = append(p.verified, hash)
	return p.Policy.Verify(password, hash)
}
