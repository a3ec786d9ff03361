package account

import (
	"fmt"

	"github.com/ghettovoice/gosip/sip"
	"github.com/google/uuid"
)

// AuthInfo carries the digest credentials used for 401/407 challenges.
type AuthInfo struct {
	AuthUser string
	Realm    string
	Password string
}

// Profile is the identity the phone registers and calls with.
type Profile struct {
	URI         sip.Uri
	DisplayName string
	AuthInfo    *AuthInfo
	Expires     uint32
	InstanceID  string
}

// User returns the user part of the address-of-record.
func (p *Profile) User() string {
	if p.URI == nil || p.URI.User() == nil {
		return ""
	}
	return p.URI.User().String()
}

// Contact builds the Contact header address advertised in REGISTER and INVITE.
// A nil port leaves the port out of the URI.
func (p *Profile) Contact(host string, port *sip.Port, transport string) *sip.Address {
	uri := &sip.SipUri{
		FHost:      host,
		FPort:      port,
		FUriParams: sip.NewParams().Add("transport", sip.String{Str: transport}),
	}
	if p.URI != nil && p.URI.User() != nil {
		uri.FUser = sip.String{Str: p.URI.User().String()}
	}

	contact := &sip.Address{
		Uri:    uri,
		Params: sip.NewParams(),
	}
	if p.DisplayName != "" {
		contact.DisplayName = sip.String{Str: p.DisplayName}
	}
	if p.InstanceID != "" {
		contact.Params.Add("+sip.instance", sip.String{Str: p.InstanceID})
	}
	return contact
}

// NewProfile .
func NewProfile(uri sip.Uri, displayName string, authInfo *AuthInfo, expires uint32) (*Profile, error) {
	p := &Profile{
		URI:         uri,
		DisplayName: displayName,
		AuthInfo:    authInfo,
		Expires:     expires,
	}
	uid, err := uuid.NewUUID()
	if err != nil {
		return nil, fmt.Errorf("could not create UUID: %w", err)
	}
	p.InstanceID = fmt.Sprintf(`"<%s>"`, uid.URN())
	return p, nil
}

// RegisterState .
type RegisterState struct {
	Account    Profile
	StatusCode sip.StatusCode
	Reason     string
	Expiration uint32
	Response   sip.Response
}

// RegisterHandler .
type RegisterHandler func(regState RegisterState)
