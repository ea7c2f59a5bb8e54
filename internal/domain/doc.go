// Package domain models device positions and position errors as delivered by a
// host geolocation capability.
//
// # Host Payloads
//
// Hosts hand results over as loosely typed values rather than Go structs. The
// success payload is an object shaped like the W3C GeolocationPosition:
//
//	{
//	  "coords": {
//	    "latitude": 48.1173, "longitude": 11.5166,   // degrees
//	    "altitude": 545.4,                           // meters above WGS-84
//	    "accuracy": 4.5, "altitudeAccuracy": 10.5,   // meters
//	    "heading": 84.4,                             // degrees clockwise from true north
//	    "speed": 11.52                               // meters per second
//	  },
//	  "timestamp": 1714144200000                     // milliseconds since the Unix epoch
//	}
//
// Every member is optional. A host without an altimeter omits "altitude"; a
// stationary receiver omits "heading". [DecodePosition] therefore decodes
// each member on its own and a missing or mistyped member is simply absent
// from the result.
//
// The failure payload is an object with an integer "code" and a string
// "message". Hosts only ever report codes 1 (permission denied),
// 2 (position unavailable) and 3 (timeout). Codes 4 and 5 are
// synthesized locally: 4 when a payload cannot be decoded, 5 when no host
// capability exists at all.
//
// # Units
//
// Raw host numbers are converted into typed quantities from
// github.com/martinlindhe/unit at decode time so that callers never have to
// remember whether a speed is in knots or meters per second.
package domain
