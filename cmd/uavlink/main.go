// Command uavlink runs the telemetry module against a simulated ground
// station and inspects what it recorded.
package main

func main() {
	Execute()
}
