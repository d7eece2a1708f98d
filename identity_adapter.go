package credentials

// PrincipalIdentity adapts a Principal into the Identity interface for token
// generation.
type PrincipalIdentity struct {
	principal *Principal
}

var _ Identity = PrincipalIdentity{}

// NewIdentityFromPrincipal returns an Identity adapter for the provided
// principal.
func NewIdentityFromPrincipal(p *Principal) Identity {
	if p == nil {
		return nil
	}
	return PrincipalIdentity{principal: p}
}

// ID returns the principal's ID as a string.
func (i PrincipalIdentity) ID() string {
	if i.principal == nil {
		return ""
	}
	return i.principal.ID.String()
}

// Email returns the principal's normalized email address.
func (i PrincipalIdentity) Email() string {
	if i.principal == nil {
		return ""
	}
	return i.principal.Email
}

func (i PrincipalIdentity) Name() string {
	if i.principal == nil {
		return ""
	}
	return i.principal.Name
}

// Role returns the admin role, empty for users.
func (i PrincipalIdentity) Role() string {
	if i.principal == nil {
		return ""
	}
	return string(i.principal.Role)
}

func (i PrincipalIdentity) Kind() PrincipalKind {
	if i.principal == nil {
		return ""
	}
	return i.principal.Kind
}

// Subject is the authenticated caller passed explicitly into operations that
// need one.
type Subject struct {
	ID   string
	Kind PrincipalKind
}

// SubjectFromClaims builds a Subject out of validated claims. It returns nil
// for nil claims.
func SubjectFromClaims(claims AuthClaims) *Subject {
	if claims == nil {
		return nil
	}
	return &Subject{ID: claims.UserID(), Kind: claims.PrincipalKind()}
}
