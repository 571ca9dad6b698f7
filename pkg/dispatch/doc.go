// Package dispatch routes asynchronous signal events to bound consumers.
//
// The [Router] is the single ingress point for the three network callbacks
// (value update, value release, instance overflow) plus readiness changes.
// Each callback looks up the binding set in the registry, takes a snapshot,
// and delivers to every binding that is still live, in insertion order.
//
// # Addressing
//
// Non-ephemeral signals always dispatch to the base set. Ephemeral signals
// dispatch to the set bound to the event's instance; when no consumer is
// bound to that instance the base set receives it instead, with the slot
// attached so base consumers can tell instances apart.
//
// # Drop policy
//
// Events for a handle that is destroyed, or no longer registered, are
// dropped silently and counted in [Stats].
//
// # Overflow
//
// On overflow the router consults [instance.ChooseVictim] with the signal's
// steal policy. A victim is released through the network and consumers hear
// about it through the normal release path; a router without a network
// delivers that release itself. Without a victim, every binding
// in the base set receives an overflow event.
package dispatch
