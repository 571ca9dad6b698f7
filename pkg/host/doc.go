// Package host adapts host-environment objects to device contexts.
//
// An Object is the Go side of one signal object placed in a host patch,
// shaped after the Init/Handle/Free lifecycle of host externals. Creating
// an Object parses its argument list, attaches it to the enclosing device
// context and binds it; Handle turns inlet messages into outbound values,
// releases and instance changes; Free detaches it exactly once.
//
// Errors become console diagnostics through Diagnostic. Transient lookup
// misses stay silent.
package host
