// Package session owns the sign-in state machine.
//
// A Controller drives one session through its states:
//
//	signed_out --SignIn--> signing_in --redirect+exchange--> signed_in
//	signing_in --failure--> error --> signed_out
//	signed_in  --timer/401--> refresh --ok--> signed_in
//	                               \--invalid_grant--> error --> signed_out
//	signed_in  --SignOut--> signed_out
//
// Every transition is reported to the Notifier as an auth.Status, in order,
// from a single dispatch goroutine, so a Notifier may call back into the
// Controller.
//
// Only one sign-in attempt and one bound listener exist at a time: a new
// SignIn cancels the previous attempt and waits for its listener to unbind.
// Refreshes are coalesced so a timer refresh and a 401-triggered refresh
// perform one exchange.
package session
