//go:build rp2040

package main

import (
	"machine"
)

// InitUSB configures the USB CDC console. TinyGo sets up the descriptors.
func InitUSB() {
	machine.Serial.Configure(machine.UARTConfig{})
}

// USBAvailable returns the number of bytes available to read from USB
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead reads a single byte from USB
func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

// usbWriter sends console output over USB, dropping it while no host is
// listening.
type usbWriter struct {
	failures uint32
}

func (w *usbWriter) Write(p []byte) (int, error) {
	if w.failures > 10 {
		// host gone; resume once it sends something
		if USBAvailable() == 0 {
			return len(p), nil
		}
		w.failures = 0
	}
	n, err := machine.Serial.Write(p)
	if err != nil || n < len(p) {
		w.failures++
		return len(p), nil
	}
	w.failures = 0
	return n, nil
}
