// Package session owns consumer authentication state: the current user, the
// bearer token and a sliding expiry.
//
// States move uninitialized -> authenticated | unauthenticated, then
// authenticated -> expiring_soon -> unauthenticated on expiry, or straight to
// unauthenticated on logout. Expiry is always last renewal + timeout.
// Activity renews the window through a debounced Touch, except while the
// session is expiring soon; only an explicit RefreshSession renews it then.
//
// State is persisted in the credential store and re-derived from it on every
// tick and whenever another client sharing the profile changes the user or
// token keys.
package session
