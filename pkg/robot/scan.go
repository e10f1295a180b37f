package robot

import (
	"context"
	"strings"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"
)

// BaudRate is the bus speed of the tool servos.
const BaudRate = 1_000_000

// FoundTool is a serial port with a complete set of tool servos on it.
type FoundTool struct {
	Port   string
	Servos []feetech.FoundServo
}

// OpenBus opens a servo bus on port.
func OpenBus(port string) (*feetech.Bus, error) {
	return feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
}

// ScanPorts probes every serial port for a tool board (servo IDs 1..len(AllMotors())).
func ScanPorts() ([]FoundTool, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}

	var found []FoundTool
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		servos, err := scanPort(port)
		if err != nil || !IsToolBoard(servos) {
			continue
		}
		found = append(found, FoundTool{Port: port, Servos: servos})
	}
	return found, nil
}

func scanPort(port string) ([]feetech.FoundServo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bus, err := OpenBus(port)
	if err != nil {
		return nil, err
	}
	defer bus.Close()

	return bus.Scan(ctx, 1, len(AllMotors()))
}

// IsToolBoard reports whether servos are exactly the tool servo IDs.
func IsToolBoard(servos []feetech.FoundServo) bool {
	n := len(AllMotors())
	if len(servos) != n {
		return false
	}

	ids := make(map[int]bool)
	for _, s := range servos {
		ids[s.ID] = true
	}
	for i := 1; i <= n; i++ {
		if !ids[i] {
			return false
		}
	}
	return true
}
