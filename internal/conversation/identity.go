package conversation

import (
	"errors"
	"strings"
)

// ErrNoIdentity is returned when an inbound item carries no usable identity.
var ErrNoIdentity = errors.New("external identity is required")

// IdentityKind tags the single populated field of an ExternalIdentity.
type IdentityKind string

const (
	IdentityPhone  IdentityKind = "phone"
	IdentityEmail  IdentityKind = "email"
	IdentitySocial IdentityKind = "social"
)

// ExternalIdentity is the channel-native address of a contact. Exactly one
// of Phone, Email or SocialID must be set; the remaining fields are optional
// enrichment captured at creation time only.
type ExternalIdentity struct {
	Phone    string
	Email    string
	SocialID string

	Name           string
	SocialUsername string
	ProfilePic     string
}

// PhoneIdentity builds a phone-keyed identity.
func PhoneIdentity(phone, name string) ExternalIdentity {
	return ExternalIdentity{Phone: strings.TrimSpace(phone), Name: strings.TrimSpace(name)}
}

// EmailIdentity builds an email-keyed identity.
func EmailIdentity(email, name string) ExternalIdentity {
	return ExternalIdentity{Email: strings.TrimSpace(email), Name: strings.TrimSpace(name)}
}

// SocialIdentity builds a social-id-keyed identity.
func SocialIdentity(socialID, name string) ExternalIdentity {
	return ExternalIdentity{SocialID: strings.TrimSpace(socialID), Name: strings.TrimSpace(name)}
}

// Kind returns the populated identity field, or ErrNoIdentity when none or
// more than one is set.
func (i ExternalIdentity) Kind() (IdentityKind, error) {
	var (
		kind  IdentityKind
		count int
	)
	if strings.TrimSpace(i.Phone) != "" {
		kind, count = IdentityPhone, count+1
	}
	if strings.TrimSpace(i.Email) != "" {
		kind, count = IdentityEmail, count+1
	}
	if strings.TrimSpace(i.SocialID) != "" {
		kind, count = IdentitySocial, count+1
	}
	if count != 1 {
		return "", ErrNoIdentity
	}
	return kind, nil
}
