package domain

import "github.com/ethereum/go-ethereum/common"

// SmartWallet is the counterfactual Safe that holds trading funds. Its
// address is known before deployment.
type SmartWallet struct {
	Owner    common.Address `json:"owner"`
	Address  common.Address `json:"address"`
	Deployed bool           `json:"deployed"`
}

// DeployResult is the outcome of a deploy request. AlreadyDeployed means the
// wallet had code on chain and the relayer was not contacted.
type DeployResult struct {
	Wallet          SmartWallet `json:"wallet"`
	AlreadyDeployed bool        `json:"alreadyDeployed"`
	TransactionID   string      `json:"transactionId,omitempty"`
	TransactionHash string      `json:"transactionHash,omitempty"`
}
