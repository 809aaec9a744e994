package common

// AuthorizationHeader carries the access token on outbound requests
// in the form "Bearer <token>".
const (
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "
)

// Token types stored in the "typ" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// User roles.
const (
	RoleCustomer   = "customer"
	RoleCourier    = "courier"
	RoleRestaurant = "restaurant"
	RoleAdmin      = "admin"
)
