// Package natshandler relays twin broadcasts to a NATS server so
// external consumers follow the substation without touching the HTTP
// surface.
package natshandler

import (
	"encoding/json"
	"io/ioutil"
	"log"
	"sync"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"

	"github.com/velridge/substation-twin/internal/pkg/msg"
)

// Handler bridges the twin's update and fault topics onto NATS
// subjects.
type Handler struct {
	mux    *sync.Mutex
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config config
	stop   chan bool
	done   chan struct{}
}

type config struct {
	Server        string `json:"Server"`
	UpdateSubject string `json:"UpdateSubject"`
	FaultSubject  string `json:"FaultSubject"`
}

func (h Handler) PID() uuid.UUID {
	return h.pid
}

func redirectMsg(chIn <-chan msg.Msg, chOut chan<- msg.Msg) {
	for m := range chIn {
		chOut <- m
	}
}

// New subscribes to the twin broadcast and returns a Handler ready for
// Process.
func New(configPath string, system msg.Publisher) (Handler, error) {
	jsonConfig, err := ioutil.ReadFile(configPath)
	if err != nil {
		return Handler{}, err
	}
	cfg := config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Handler{}, err
	}
	if cfg.Server == "" {
		cfg.Server = nats.DefaultURL
	}
	if cfg.UpdateSubject == "" {
		cfg.UpdateSubject = "twin.update"
	}
	if cfg.FaultSubject == "" {
		cfg.FaultSubject = "twin.fault"
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return Handler{}, err
	}

	inbox := make(chan msg.Msg, 50)

	chUpdate, err := system.Subscribe(pid, msg.Update)
	if err != nil {
		return Handler{}, err
	}
	go redirectMsg(chUpdate, inbox)

	chFault, err := system.Subscribe(pid, msg.Fault)
	if err != nil {
		return Handler{}, err
	}
	go redirectMsg(chFault, inbox)

	return Handler{
		mux:    &sync.Mutex{},
		inbox:  inbox,
		pid:    pid,
		config: cfg,
		stop:   make(chan bool),
		done:   make(chan struct{}),
	}, nil
}

// Stop halts Process. Safe to call even when Process already exited on
// a connect error.
func (h *Handler) Stop() {
	select {
	case h.stop <- true:
	case <-h.done:
	}
}

// Process connects to the NATS server and forwards inbox traffic until
// Stop is called. A message that fails to marshal or publish is
// dropped; the stream is periodic, so the next tick supersedes it.
func (h Handler) Process() {
	defer close(h.done)
	log.Println("[NATS client] Process Started")
	nc, err := nats.Connect(h.config.Server)
	if err != nil {
		log.Printf("[NATS client] connect: %v", err)
		return
	}
	defer nc.Close()

loop:
	for {
		select {
		case m := <-h.inbox:
			data, err := json.Marshal(m.Payload())
			if err != nil {
				continue
			}
			if err := nc.Publish(h.subject(m.Topic()), data); err != nil {
				log.Printf("[NATS client] unable to publish: %v", err)
			}
		case <-h.stop:
			break loop
		}
	}
	log.Println("[NATS client] Process Shutdown")
}

func (h Handler) subject(topic msg.Topic) string {
	if topic == msg.Fault {
		return h.config.FaultSubject
	}
	return h.config.UpdateSubject
}
