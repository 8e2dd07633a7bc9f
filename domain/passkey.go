package domain

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Passkey device types. Backup-eligible credentials are synced, multi-device
// passkeys; the rest are bound to one authenticator.
const (
	PasskeyDeviceSingle = "single_device"
	PasskeyDeviceMulti  = "multi_device"
)

// PasskeyDeviceType maps the WebAuthn backup-eligibility flag onto the
// stored device type.
func PasskeyDeviceType(backupEligible bool) string {
	if backupEligible {
		return PasskeyDeviceMulti
	}
	return PasskeyDeviceSingle
}

// PasskeyCredential is a persisted WebAuthn credential. CredentialID is
// unique across all users; one physical authenticator enrolls at most once
// per user.
type PasskeyCredential struct {
	ID           string `bson:"_id" json:"id"`
	UserID       string `bson:"user_id" json:"user_id"`
	CredentialID []byte `bson:"credential_id" json:"credential_id"`
	PublicKey    []byte `bson:"public_key" json:"-"`
	AAGUID       []byte `bson:"aaguid,omitempty" json:"-"`

	// Counter mirrors the authenticator's signature counter. It must
	// strictly increase on every login; a regression signals a cloned
	// credential.
	Counter uint32 `bson:"counter" json:"counter"`

	DeviceName      string     `bson:"device_name" json:"device_name"`
	DeviceType      string     `bson:"device_type,omitempty" json:"device_type,omitempty"`
	Transports      []string   `bson:"transports,omitempty" json:"transports,omitempty"`
	AttestationType string     `bson:"attestation_type,omitempty" json:"-"`
	BackupEligible  bool       `bson:"backup_eligible" json:"backup_eligible"`
	CreatedAt       time.Time  `bson:"created_at" json:"created_at"`
	LastUsedAt      *time.Time `bson:"last_used_at,omitempty" json:"last_used_at,omitempty"`
}

// ToWebAuthn converts the stored record into the library's credential shape
// for ceremony verification.
func (c *PasskeyCredential) ToWebAuthn() webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
	for _, t := range c.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	cred := webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
		},
	}
	cred.Authenticator.AAGUID = c.AAGUID
	cred.Authenticator.SignCount = c.Counter
	return cred
}
