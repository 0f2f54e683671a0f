package domain

// Grant identifies one of the six on-chain permissions a trading wallet needs
// before the exchange contracts can move its funds and outcome tokens.
type Grant int

const (
	GrantUSDCToCTF Grant = iota
	GrantUSDCToExchange
	GrantUSDCToNegRiskExchange
	GrantCTFToExchange
	GrantCTFToNegRiskExchange
	GrantCTFToNegRiskAdapter
)

// CanonicalGrants lists every grant in plan order: ERC-20 allowances first,
// then ERC-1155 operator approvals.
var CanonicalGrants = [...]Grant{
	GrantUSDCToCTF,
	GrantUSDCToExchange,
	GrantUSDCToNegRiskExchange,
	GrantCTFToExchange,
	GrantCTFToNegRiskExchange,
	GrantCTFToNegRiskAdapter,
}

var grantNames = map[Grant]string{
	GrantUSDCToCTF:             "usdcToCTF",
	GrantUSDCToExchange:        "usdcToExchange",
	GrantUSDCToNegRiskExchange: "usdcToNegRiskExchange",
	GrantCTFToExchange:         "ctfToExchange",
	GrantCTFToNegRiskExchange:  "ctfToNegRiskExchange",
	GrantCTFToNegRiskAdapter:   "ctfToNegRiskAdapter",
}

func (g Grant) String() string {
	if n, ok := grantNames[g]; ok {
		return n
	}
	return "unknown"
}

// IsERC20 reports whether the grant is a USDC allowance rather than a CTF
// operator approval.
func (g Grant) IsERC20() bool {
	return g <= GrantUSDCToNegRiskExchange
}

// ApprovalRecord is the derived approval state of a wallet. It is recomputed
// from chain reads on demand and never stored.
type ApprovalRecord struct {
	USDCToCTF             bool `json:"usdcToCTF"`
	USDCToExchange        bool `json:"usdcToExchange"`
	USDCToNegRiskExchange bool `json:"usdcToNegRiskExchange"`
	CTFToExchange         bool `json:"ctfToExchange"`
	CTFToNegRiskExchange  bool `json:"ctfToNegRiskExchange"`
	CTFToNegRiskAdapter   bool `json:"ctfToNegRiskAdapter"`
}

// AllApproved is true iff every grant is in place.
func (r ApprovalRecord) AllApproved() bool {
	for _, g := range CanonicalGrants {
		if !r.Flag(g) {
			return false
		}
	}
	return true
}

// Flag returns the state of a single grant.
func (r ApprovalRecord) Flag(g Grant) bool {
	switch g {
	case GrantUSDCToCTF:
		return r.USDCToCTF
	case GrantUSDCToExchange:
		return r.USDCToExchange
	case GrantUSDCToNegRiskExchange:
		return r.USDCToNegRiskExchange
	case GrantCTFToExchange:
		return r.CTFToExchange
	case GrantCTFToNegRiskExchange:
		return r.CTFToNegRiskExchange
	case GrantCTFToNegRiskAdapter:
		return r.CTFToNegRiskAdapter
	}
	return false
}

// Set updates a single grant.
func (r *ApprovalRecord) Set(g Grant, v bool) {
	switch g {
	case GrantUSDCToCTF:
		r.USDCToCTF = v
	case GrantUSDCToExchange:
		r.USDCToExchange = v
	case GrantUSDCToNegRiskExchange:
		r.USDCToNegRiskExchange = v
	case GrantCTFToExchange:
		r.CTFToExchange = v
	case GrantCTFToNegRiskExchange:
		r.CTFToNegRiskExchange = v
	case GrantCTFToNegRiskAdapter:
		r.CTFToNegRiskAdapter = v
	}
}

// Missing returns the grants that are not yet in place, in canonical order.
func (r ApprovalRecord) Missing() []Grant {
	var out []Grant
	for _, g := range CanonicalGrants {
		if !r.Flag(g) {
			out = append(out, g)
		}
	}
	return out
}

// ApproveResult is the outcome of an approve-all run. Skipped means every
// grant was already present and nothing was sent to the relayer.
type ApproveResult struct {
	Before          ApprovalRecord `json:"before"`
	Calls           int            `json:"calls"`
	Skipped         bool           `json:"skipped"`
	TransactionID   string         `json:"transactionId,omitempty"`
	TransactionHash string         `json:"transactionHash,omitempty"`
}
