package model

// Owner is the authenticated caller as asserted by the external identity provider.
type Owner struct {
	ID    string
	Email string
	Plan  string
}
