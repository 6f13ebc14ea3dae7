package models

import (
	"encoding/json"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is a registered board user. Email is the identity key; every other
// field the client sends is kept in Profile and stored alongside it.
type User struct {
	ID      primitive.ObjectID     `bson:"_id,omitempty"`
	Email   string                 `bson:"email"`
	Profile map[string]interface{} `bson:",inline"`
}

// Validate checks that the user can be keyed by email.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return errors.New("email is required")
	}
	return nil
}

// MarshalJSON flattens Profile next to _id and email.
func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(u.Profile)+2)
	for k, v := range u.Profile {
		out[k] = v
	}
	if !u.ID.IsZero() {
		out["_id"] = u.ID
	}
	out["email"] = u.Email
	return json.Marshal(out)
}

// UnmarshalJSON collects unknown keys into Profile. A client-supplied _id is dropped.
func (u *User) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	u.Email = ""
	if email, ok := raw["email"].(string); ok {
		u.Email = email
	}
	delete(raw, "email")
	delete(raw, "_id")

	if len(raw) > 0 {
		u.Profile = raw
	} else {
		u.Profile = nil
	}
	return nil
}
