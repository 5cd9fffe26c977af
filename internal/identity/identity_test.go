package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		ident   Identity
		wantErr bool
	}{
		{"guest", Guest("abc12xyz"), false},
		{"account with contact", Identity{ID: "u1", Kind: KindAccount, Email: "a@example.com", PhotoURL: "https://cdn.example.com/a.png"}, false},
		{"missing id", Identity{Kind: KindGuest}, true},
		{"missing kind", Identity{ID: "u1"}, true},
		{"bad email", Identity{ID: "u1", Kind: KindAccount, Email: "not-an-email"}, true},
		{"bad photo url", Identity{ID: "u1", Kind: KindAccount, PhotoURL: "::"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ident.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	// "e" followed by a combining acute accent normalises to a single "é"
	in := Identity{ID: " u1 ", Kind: KindAccount, DisplayName: "  Rene\u0301 ", Email: " r@example.com\n"}

	got := Normalize(in)

	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, "Ren\u00e9", got.DisplayName)
	assert.Equal(t, "r@example.com", got.Email)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "guest", KindGuest.String())
	assert.Equal(t, "account", KindAccount.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

func TestMemoryProvider_WatchDeliversCurrentState(t *testing.T) {
	p := NewMemoryProvider()
	var got []*Identity

	stop := p.Watch(context.Background(), func(i *Identity) { got = append(got, i) })
	require.Len(t, got, 1)
	assert.Nil(t, got[0], "nobody signed in yet")

	require.NoError(t, p.SignIn(Guest("g1")))
	p.SignOut()

	require.Len(t, got, 3)
	assert.Equal(t, "g1", got[1].ID)
	assert.True(t, got[1].IsGuest())
	assert.Nil(t, got[2])

	stop()
	require.NoError(t, p.SignIn(Account("u2")))
	assert.Len(t, got, 3, "stopped watchers receive nothing")
}

func TestMemoryProvider_ConcurrentChangesDeliveredInOrder(t *testing.T) {
	p := NewMemoryProvider()
	var mu sync.Mutex
	var last *Identity
	stop := p.Watch(context.Background(), func(i *Identity) {
		mu.Lock()
		last = i
		mu.Unlock()
	})
	defer stop()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if i%3 == 0 {
					p.SignOut()
					continue
				}
				assert.NoError(t, p.SignIn(Account(fmt.Sprintf("u%d-%d", g, i))))
			}
		}(g)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	cur := p.Current()
	if cur == nil {
		assert.Nil(t, last, "watcher saw the final sign-out")
		return
	}
	require.NotNil(t, last)
	assert.Equal(t, cur.ID, last.ID, "watcher saw the final sign-in")
}

func TestMemoryProvider_SignInRejectsInvalid(t *testing.T) {
	p := NewMemoryProvider()

	err := p.SignIn(Identity{Kind: KindAccount})
	assert.Error(t, err)
	assert.Nil(t, p.Current())
}

func TestMemoryProvider_UpdateProfile(t *testing.T) {
	p := NewMemoryProvider()
	require.NoError(t, p.SignIn(Account("u1")))

	require.NoError(t, p.UpdateProfile(context.Background(), "u1", "https://cdn.example.com/2.png"))
	assert.Equal(t, "https://cdn.example.com/2.png", p.Current().PhotoURL)
	assert.Equal(t, []ProfileUpdate{{ID: "u1", PhotoURL: "https://cdn.example.com/2.png"}}, p.Updates())

	boom := errors.New("provider offline")
	p.FailUpdates(boom)
	assert.ErrorIs(t, p.UpdateProfile(context.Background(), "u1", "x"), boom)
	assert.Len(t, p.Updates(), 1)
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}

	a, b := g.Generate(), g.Generate()

	assert.NotEqual(t, a, b)
	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}
