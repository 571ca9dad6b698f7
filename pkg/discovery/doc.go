// Package discovery announces device contexts over mDNS/DNS-SD.
//
// Each device is advertised as an instance of ServiceType named after the
// device. Its TXT record carries the device id and the current input and
// output signal counts:
//
//	id=<uuid> in=<numInputs> out=<numOutputs> ver=<format version>
//
// An Announcer keeps the record current by observing device reports.
package discovery
