// Package scada overlays live field telemetry onto the asset registry.
// A poller reads mapped holding registers from a substation RTU over
// Modbus TCP and writes the decoded values into the matching assets;
// the next tick folds them into the published snapshot.
package scada

import (
	"encoding/json"
	"log"
	"time"

	"github.com/goburrow/modbus"

	"github.com/velridge/substation-twin/internal/pkg/asset"
)

// Point binds one register on the RTU to one telemetry field of one
// asset. Field is a registry overlay key: voltage, current, power or
// temperature.
type Point struct {
	AssetID  string   `json:"AssetID"`
	Field    string   `json:"Field"`
	Register Register `json:"Register"`
}

// Config is the poller configuration format.
type Config struct {
	IPAddr     string  `json:"IPAddr"`
	Port       string  `json:"Port"`
	SlaveID    byte    `json:"SlaveID"`
	TimeoutMs  int     `json:"TimeoutMs"`
	PollRateMs int     `json:"PollRateMs"`
	Points     []Point `json:"Points"`
}

// Poller continuously polls one RTU and overlays the readings.
type Poller struct {
	handler  *modbus.TCPClientHandler
	registry *asset.Registry
	config   Config
	stop     chan chan struct{}
}

// NewPoller is a factory for the Poller struct.
func NewPoller(jsonConfig []byte, registry *asset.Registry) (*Poller, error) {
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return nil, err
	}
	if cfg.PollRateMs <= 0 {
		cfg.PollRateMs = 1000
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 1000
	}

	handler := modbus.NewTCPClientHandler(cfg.IPAddr + ":" + cfg.Port)
	handler.Timeout = time.Millisecond * time.Duration(cfg.TimeoutMs)
	handler.SlaveId = cfg.SlaveID

	return &Poller{
		handler:  handler,
		registry: registry,
		config:   cfg,
		stop:     make(chan chan struct{}),
	}, nil
}

// Start launches the poll loop.
func (p *Poller) Start() {
	go p.run()
	log.Println("[SCADA] poller started")
}

// Stop halts polling and waits for the in-flight poll to complete.
func (p *Poller) Stop() {
	ack := make(chan struct{})
	p.stop <- ack
	<-ack
	log.Println("[SCADA] poller stopped")
}

func (p *Poller) run() {
	ticker := time.NewTicker(time.Duration(p.config.PollRateMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case ack := <-p.stop:
			close(ack)
			return
		case now := <-ticker.C:
			if err := p.poll(now); err != nil {
				log.Printf("[SCADA] poll: %v", err)
			}
		}
	}
}

// poll reads every mapped register and overlays the decoded values.
// A register that fails to read is skipped; the asset keeps its
// previous value for that field.
func (p *Poller) poll(now time.Time) error {
	if err := p.handler.Connect(); err != nil {
		return err
	}
	defer p.handler.Close()

	client := modbus.NewClient(p.handler)
	readings := map[string]map[string]float64{}
	var err error
	for _, pt := range p.config.Points {
		resp, readErr := client.ReadHoldingRegisters(pt.Register.Address, sizeOf(pt.Register.DataType))
		if readErr != nil {
			err = readErr
			continue
		}
		if readings[pt.AssetID] == nil {
			readings[pt.AssetID] = map[string]float64{}
		}
		readings[pt.AssetID][pt.Field] = decode(resp, pt.Register)
	}

	for id, values := range readings {
		if overlayErr := p.registry.OverlayTelemetry(id, values, now); overlayErr != nil {
			err = overlayErr
		}
	}
	return err
}
