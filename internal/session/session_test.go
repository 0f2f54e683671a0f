package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

var (
	signer = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	eoa    = domain.CredentialScope{Signer: signer, Funder: signer}
	safe   = domain.CredentialScope{Signer: signer, Funder: common.HexToAddress("0x00000000000000000000000000000000000000bb")}
)

func TestGet_IsScopedToFunder(t *testing.T) {
	s := New()
	s.Set(domain.TradingCredentials{Key: "eoa-key", Secret: "s", Passphrase: "p", Scope: eoa})

	_, ok := s.Get(safe)
	assert.False(t, ok, "EOA-scoped credentials must not be reused for the Safe")

	got, ok := s.Get(eoa)
	require.True(t, ok)
	assert.Equal(t, "eoa-key", got.Key)
}

func TestSwap_ReturnsPrevious(t *testing.T) {
	s := New()
	_, had := s.Swap(domain.TradingCredentials{Key: "k1", Scope: safe})
	assert.False(t, had)

	prev, had := s.Swap(domain.TradingCredentials{Key: "k2", Scope: safe})
	assert.True(t, had)
	assert.Equal(t, "k1", prev.Key)

	got, _ := s.Get(safe)
	assert.Equal(t, "k2", got.Key)

	s.Delete(safe)
	assert.Empty(t, s.Scopes())
}

func TestConcurrentReadersSeeWholeValues(t *testing.T) {
	s := New()
	s.Set(domain.TradingCredentials{Key: "k0", Secret: "s0", Scope: safe})

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Swap(domain.TradingCredentials{Key: fmt.Sprintf("k%d", i), Secret: fmt.Sprintf("s%d", i), Scope: safe})
		}(i)
		go func() {
			defer wg.Done()
			c, ok := s.Get(safe)
			if assert.True(t, ok) {
				assert.Equal(t, "s"+c.Key[1:], c.Secret, "key and secret come from the same write")
			}
		}()
	}
	wg.Wait()
}
