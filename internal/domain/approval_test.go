package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func recordFromMask(mask int) ApprovalRecord {
	var r ApprovalRecord
	for i, g := range CanonicalGrants {
		r.Set(g, mask&(1<<i) != 0)
	}
	return r
}

func TestApprovalRecord_AllApprovedOverEveryCombination(t *testing.T) {
	for mask := 0; mask < 1<<len(CanonicalGrants); mask++ {
		r := recordFromMask(mask)

		every := true
		for _, g := range CanonicalGrants {
			every = every && r.Flag(g)
		}

		assert.Equal(t, every, r.AllApproved(), "mask %06b", mask)
		assert.Equal(t, mask == 0b111111, r.AllApproved(), "mask %06b", mask)
	}
}

func TestApprovalRecord_MissingKeepsCanonicalOrder(t *testing.T) {
	r := ApprovalRecord{USDCToExchange: true, CTFToExchange: true}

	assert.Equal(t, []Grant{
		GrantUSDCToCTF,
		GrantUSDCToNegRiskExchange,
		GrantCTFToNegRiskExchange,
		GrantCTFToNegRiskAdapter,
	}, r.Missing())
	assert.Empty(t, recordFromMask(0b111111).Missing())
}

func TestGrant_IsERC20(t *testing.T) {
	erc20 := 0
	for _, g := range CanonicalGrants {
		if g.IsERC20() {
			erc20++
		}
	}
	assert.Equal(t, 3, erc20)
	assert.True(t, GrantUSDCToNegRiskExchange.IsERC20())
	assert.False(t, GrantCTFToExchange.IsERC20())
	assert.Equal(t, "ctfToNegRiskAdapter", GrantCTFToNegRiskAdapter.String())
}
