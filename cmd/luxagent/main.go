// Command luxagent runs the light exposure agent on a Linux host with a
// BH1750 on an i2c-dev bus.
package main

func main() {
	Execute()
}
