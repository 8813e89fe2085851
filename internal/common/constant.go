// Package common contains shared constants and sentinel errors used across
// cabinetsync components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// DefaultPackageTTLHours is the lifetime of a sync package when the caller
// does not ask for one.
const DefaultPackageTTLHours = 24

// MaxPackageTTLHours caps the lifetime a caller may request for a package.
const MaxPackageTTLHours = 30 * 24
