// Package scan implements the QR identification protocol: the payload a
// parent's code decodes to, local shape validation, and server-side
// resolution to a parent plus linked children.
package scan

import (
	"context"
	"crypto/subtle"
	"encoding/json"

	"kidcheck/internal/apperr"
	"kidcheck/internal/roster"
)

// Payload is the structured content of a parent QR code. Family is the
// household identifier; Secret is the per-parent verification secret.
type Payload struct {
	Family string `json:"family"`
	Secret string `json:"s"`
}

// ParsePayload validates raw scanned text before any network call. A bad
// scan is rejected here with a ValidationError so the caller can tell
// "garbage input" apart from "server rejected the credential".
func ParsePayload(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, &apperr.ValidationError{Field: "qrData", Reason: "not a valid QR payload"}
	}
	if p.Family == "" {
		return Payload{}, &apperr.ValidationError{Field: "family", Reason: "missing family id"}
	}
	if p.Secret == "" {
		return Payload{}, &apperr.ValidationError{Field: "s", Reason: "missing secret"}
	}
	return p, nil
}

// EncodePayload renders the payload for embedding in a QR code.
func EncodePayload(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Result is a resolved scan: the identified parent and the children the
// staff member may check in or out. Identification is not authorization;
// the acting staff id always comes from the authenticated session.
type Result struct {
	Parent   roster.Parent  `json:"parent"`
	Children []roster.Child `json:"children"`
}

// Resolver resolves validated payloads against the roster.
type Resolver struct {
	roster *roster.Repository
}

// NewResolver creates a resolver.
func NewResolver(r *roster.Repository) *Resolver {
	return &Resolver{roster: r}
}

// Resolve looks up the family and verifies the secret. Unknown family ids
// and bad secrets are distinct failures; neither returns partial data.
func (r *Resolver) Resolve(ctx context.Context, p Payload) (Result, error) {
	parent, err := r.roster.GetParent(ctx, p.Family)
	if err != nil {
		return Result{}, err
	}
	if subtle.ConstantTimeCompare([]byte(parent.QRSecret), []byte(p.Secret)) != 1 {
		return Result{}, &apperr.AuthError{Reason: "invalid family secret"}
	}
	children, err := r.roster.ChildrenOf(ctx, parent.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{Parent: parent, Children: children}, nil
}
