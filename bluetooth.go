// Package bluetooth provides the GAP layer of a Bluetooth Low Energy host
// stack: advertising data encoding and decoding, advertising sets, scanning,
// connection establishment and LE privacy.
//
// The package talks to the radio through the Controller interface. All
// radio operations are asynchronous: a call only reports whether the request
// was accepted, and the outcome is delivered later to an EventHandler by the
// event pump of the Adapter.
//
//	adapter := bluetooth.NewAdapter(ctrl, bluetooth.WithEventHandler(h))
//	must("enable", adapter.Enable())
//	gap := adapter.Gap()
//	must("start", gap.StartAdvertising(bluetooth.LegacyAdvertisingHandle, 0, 0))
//	adapter.Run(ctx)
package bluetooth // import "tinygo.org/x/blehost"
