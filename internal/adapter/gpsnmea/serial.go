package gpsnmea

import (
	"fmt"
	"io"

	"github.com/jacobsa/go-serial/serial"
)

// OpenSerial opens an NMEA receiver on a serial port with 8N1 framing.
func OpenSerial(path string, baudRate uint) (io.ReadWriteCloser, error) {
	dev, err := serial.Open(serial.OpenOptions{
		PortName:        path,
		BaudRate:        baudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 4,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return dev, nil
}
