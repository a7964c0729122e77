package transport

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoPort is returned by DetectPort when no USB serial port is present.
var ErrNoPort = errors.New("transport: no USB serial port found")

// DetectPort picks the port to use when none is configured: the only USB
// port, or the only port at all. More than one candidate is an error that
// lists them.
func DetectPort(ports []PortInfo) (string, error) {
	var usb []PortInfo
	for _, p := range ports {
		if p.IsUSB {
			usb = append(usb, p)
		}
	}
	switch {
	case len(usb) == 1:
		return usb[0].Name, nil
	case len(usb) > 1:
		return "", fmt.Errorf("transport: %d USB serial ports, pick one with --port: %s", len(usb), names(usb))
	case len(ports) == 1:
		return ports[0].Name, nil
	case len(ports) > 1:
		return "", fmt.Errorf("transport: %d serial ports, none USB, pick one with --port: %s", len(ports), names(ports))
	default:
		return "", ErrNoPort
	}
}

func names(ports []PortInfo) string {
	ns := make([]string, len(ports))
	for i, p := range ports {
		ns[i] = p.Name
	}
	return strings.Join(ns, ", ")
}
