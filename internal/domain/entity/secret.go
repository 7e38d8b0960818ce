package entity

// EncryptedSecret is the persisted envelope of the step-up seed.
type EncryptedSecret struct {
	Salt       []byte `json:"salt"`
	IV         []byte `json:"iv"`
	Ciphertext []byte `json:"ciphertext"`
}

// Valuation is one entry of the platform valuation feed.
type Valuation struct {
	ID    int64
	Name  string
	RAP   int64
	Value int64
}
