package model

// AccessToken is the object embedded in the signed session token.
type AccessToken struct {
	ID   string `mapstructure:"id" json:"id"`
	Name string `mapstructure:"name" json:"name"`
}
