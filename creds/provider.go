////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package creds

// Provider returns the bearer token used to authenticate with the backend.
// It is called fresh on every connection attempt and every REST request so
// that a token refreshed elsewhere is picked up without re-wiring anything.
type Provider func() (string, error)

// Static returns a Provider that always yields the given token. Useful for
// tests and short-lived sessions.
func Static(token string) Provider {
	return func() (string, error) { return token, nil }
}
