// Package espif bridges a host IP stack to a WiFi co-processor attached
// over a UART.
//
// The Bridge owns the operating mode, the transmit channel, the receive
// parser and the scan session of one co-processor. It is driven by three
// kinds of callers: the transport reporting transfer completion and line
// events, the polling loop draining the receive ring and running the
// health tick, and arbitrary goroutines issuing commands and packets.
//
//	loop := framework.NewLoop()
//	bridge := espif.New(port, espif.DefaultOptions())
//	bridge.AddToLoop(loop)
//	bridge.Init(iface)
//	loop.Run(ctx)
package espif
