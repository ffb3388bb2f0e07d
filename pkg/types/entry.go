package types

import "fmt"

// Entry is the persisted configuration for a single provisioned Greenchoice
// contract. There is at most one Entry per ContractID.
type Entry struct {
	Title    string `json:"title"`
	Username string `json:"username"`
	Password string `json:"password"`
	// ContractID is the overeenkomst id selected during setup.
	ContractID string `json:"overeenkomstID"`

	// Capability flags are fetched once from the products of the contract
	// when the entry is created and are never edited afterwards.
	HasPower bool `json:"hasPower"`
	HasGas   bool `json:"hasGas"`
}

// EntryTitle returns the display title used for a contract's entry.
func EntryTitle(contractID string) string {
	return fmt.Sprintf("Greenchoice (%s)", contractID)
}

// Contract is a single overeenkomst as listed by the account.
type Contract struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Products describes what a contract supplies.
type Products struct {
	HasPower bool `json:"hasPower"`
	HasGas   bool `json:"hasGas"`
}
