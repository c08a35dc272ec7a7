// Package mongodb persists the twin's broadcast stream: the latest
// full-state snapshot is upserted per tick and every fault analysis is
// appended to a history collection.
package mongodb

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"log"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/velridge/substation-twin/internal/pkg/msg"
)

// Handler sinks twin broadcasts into a MongoDB database.
type Handler struct {
	mux    *sync.Mutex
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config config
	stop   chan bool
	done   chan struct{}
}

type config struct {
	URI      string `json:"URI"`
	Port     string `json:"Port"`
	Database string `json:"Database"`
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

func snapshotToBSON(m msg.Msg) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.M{
			"pid":  m.PID().String(),
			"data": m.Payload(),
		}},
	}
}

// Process connects to MongoDB and sinks inbox traffic until Stop is
// called. Write errors are logged and the stream continues; the next
// tick supersedes a lost snapshot.
func (h Handler) Process() {
	defer close(h.done)
	client, err := mongo.NewClient(options.Client().ApplyURI(h.config.URI + ":" + h.config.Port))
	if err != nil {
		log.Printf("[Mongo] client: %v", err)
		return
	}

	ctx := context.TODO()
	if err := client.Connect(ctx); err != nil {
		log.Printf("[Mongo] connect: %v", err)
		return
	}
	defer client.Disconnect(ctx)

	db := client.Database(h.config.Database)

loop:
	for {
		select {
		case m := <-h.inbox:
			switch m.Topic() {
			case msg.Update:
				opts := options.Update().SetUpsert(true)
				_, err := db.Collection("substationState").UpdateOne(
					ctx,
					bson.M{"pid": m.PID().String()},
					snapshotToBSON(m),
					opts,
				)
				if err != nil {
					log.Printf("[Mongo] snapshot upsert: %v", err)
				}

			case msg.Fault:
				_, err := db.Collection("faultHistory").InsertOne(ctx, bson.M{
					"pid":  m.PID().String(),
					"data": m.Payload(),
				})
				if err != nil {
					log.Printf("[Mongo] fault insert: %v", err)
				}
			}
		case <-h.stop:
			break loop
		}
	}
	log.Println("[Mongo] Process Shutdown")
}
