package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// User is one entry of the JSON user catalog: HTTP Basic credentials,
// the security definition they map to and the permission patterns of
// that definition.
//
// Example file:
//
//	[
//	  {
//	    "username": "alice",
//	    "password": "secret",
//	    "sec_name": "alice-sec",
//	    "patterns": [
//	      {"pattern": "orders.*", "access": "publisher-subscriber"}
//	    ]
//	  }
//	]
type User struct {
	Username string        `json:"username"`
	Password string        `json:"password"`
	SecName  string        `json:"sec_name"`
	Patterns []UserPattern `json:"patterns"`
}

// UserPattern binds a topic pattern to an access type
// ("publisher", "subscriber" or "publisher-subscriber").
type UserPattern struct {
	Pattern string `json:"pattern"`
	Access  string `json:"access"`
}

// LoadUsers reads the user catalog from path.
func LoadUsers(path string) ([]User, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read users file %s: %w", path, err)
	}

	var users []User
	if err := json.Unmarshal(content, &users); err != nil {
		return nil, fmt.Errorf("failed to parse users file %s: %w", path, err)
	}

	for i, u := range users {
		if u.Username == "" || u.Password == "" || u.SecName == "" {
			return nil, fmt.Errorf("users file %s: entry %d must set username, password and sec_name", path, i)
		}
	}
	return users, nil
}
